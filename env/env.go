// Package env implements a small .env parser used to load secrets next to the TOML config. It does not
// account for multi-line values or the following special characters in the key or value: quotation
// mark ("), equals sign (=), and newline (\n)
package env

import (
	"errors"
	"os"
	"strings"
)

var (
	ErrUnexpectedCharacter = errors.New("unexpected character encountered")
	ErrUnexpectedAssign    = errors.New("encountered unexpected assignment operator")
	ErrMissingKey          = errors.New("missing key")
	ErrMissingValue        = errors.New("missing value")
)

type tokenType int

const (
	character tokenType = iota
	whitespace
	assignment
	comment
	newline
	eof
)

type token struct {
	Value     rune
	tokenType tokenType
}

func lex(envData string) []token {
	tokens := make([]token, 0, len(envData)+1)
	for _, char := range envData {
		switch char {
		case '\n':
			tokens = append(tokens, token{tokenType: newline})
		case '\r':
			// CRLF files
		case ' ', '\t':
			tokens = append(tokens, token{tokenType: whitespace})
		case '=':
			tokens = append(tokens, token{tokenType: assignment})
		case '#':
			tokens = append(tokens, token{tokenType: comment})
		default:
			tokens = append(tokens, token{tokenType: character, Value: char})
		}
	}
	return append(tokens, token{tokenType: eof})
}

// parser holds the state of the line being parsed.
type parser struct {
	key, value strings.Builder
	assigned   bool
	valueDone  bool
	inComment  bool
}

func (p *parser) reset() {
	p.key.Reset()
	p.value.Reset()
	p.assigned = false
	p.valueDone = false
	p.inComment = false
}

// endLine stores the finished line in envMap; blank and comment-only lines are skipped.
func (p *parser) endLine(envMap map[string]string) error {
	defer p.reset()
	switch {
	case p.key.Len() == 0 && !p.assigned:
		return nil
	case p.key.Len() == 0:
		return ErrMissingKey
	case !p.assigned || p.value.Len() == 0:
		return ErrMissingValue
	}
	envMap[p.key.String()] = p.value.String()
	return nil
}

func parse(tokens []token) (map[string]string, error) {
	envMap := make(map[string]string)
	var p parser

	for _, tok := range tokens {
		if p.inComment && tok.tokenType != newline && tok.tokenType != eof {
			continue
		}
		switch tok.tokenType {
		case character:
			switch {
			case !p.assigned:
				p.key.WriteRune(tok.Value)
			case p.valueDone:
				return envMap, ErrUnexpectedCharacter
			default:
				p.value.WriteRune(tok.Value)
			}
		case whitespace:
			if p.assigned && p.value.Len() == 0 {
				return envMap, errors.New("expected value but found whitespace")
			}
			if !p.assigned && p.key.Len() > 0 {
				return envMap, errors.New("expected assignment but found whitespace")
			}
			// trailing whitespace ends the value, only a comment may follow
			if p.value.Len() > 0 {
				p.valueDone = true
			}
		case assignment:
			if p.assigned {
				return envMap, ErrUnexpectedAssign
			}
			if p.key.Len() == 0 {
				return envMap, ErrMissingKey
			}
			p.assigned = true
		case comment:
			p.inComment = true
		case newline, eof:
			if err := p.endLine(envMap); err != nil {
				return envMap, err
			}
		}
	}
	return envMap, nil
}

// Parses .env formatted data.
func Parse(data []byte) (map[string]string, error) {
	return parse(lex(string(data)))
}

// Processes a .env file from a given filename.
func ProcessEnv(filename string) (map[string]string, error) {
	envData, err := os.ReadFile(filename)
	if err != nil {
		return make(map[string]string), err
	}
	return Parse(envData)
}

// Returns the value of key from the process environment, falling back to envMap.
func Lookup(envMap map[string]string, key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := envMap[key]
	return v, ok
}
