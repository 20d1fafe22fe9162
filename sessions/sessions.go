package sessions

import (
	"math/rand/v2"
	"strings"
)

const (
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	TokenLength   = 32
)

// Returns a TokenLength long string of characters drawn uniformly, with replacement, from TokenAlphabet.
// The token is not suitable as a cryptographic credential.
func GenerateToken() string {
	return GenerateTokenFrom(rand.IntN)
}

// Same as GenerateToken but with a caller provided source of indices, intn(n) must return a value in [0, n).
func GenerateTokenFrom(intn func(n int) int) string {
	var sb strings.Builder
	sb.Grow(TokenLength)
	for range TokenLength {
		sb.WriteByte(TokenAlphabet[intn(len(TokenAlphabet))])
	}
	return sb.String()
}

// Reports whether a token has the shape of a session token. Only the length is checked, any
// 32 character string is accepted.
func ValidateToken(token string) bool {
	return token != "" && len(token) == TokenLength
}

// Like ValidateToken, but returns ErrInvalidTokenLength for callers that deal in errors.
func CheckToken(token string) error {
	if !ValidateToken(token) {
		return ErrInvalidTokenLength
	}
	return nil
}
