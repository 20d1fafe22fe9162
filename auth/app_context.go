package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

const DefaultSessionTTL = 24 * time.Hour

// An authentication manager that handles logging in, checking and clearing the admin session
// held in a sessions.Storage, and validating credentials against the stored admin accounts.
//
// Every method holds the same lock, so the three session keys are always written, read and
// removed together with respect to other callers of the same AuthContext.
type AuthContext struct {
	Storage  sessions.Storage
	UI       sessions.UI
	Duration time.Duration

	// injectable for tests
	Now       func() time.Time
	TokenFunc func() string

	mu sync.Mutex
}

// Returns a new AuthContext over the given storage. A nil ui is replaced by sessions.NopUI and a
// non-positive duration by DefaultSessionTTL.
func NewAuthContext(storage sessions.Storage, ui sessions.UI, d time.Duration) *AuthContext {
	if ui == nil {
		ui = sessions.NopUI{}
	}
	if d <= 0 {
		d = DefaultSessionTTL
	}
	return &AuthContext{
		Storage:   storage,
		UI:        ui,
		Duration:  d,
		Now:       time.Now,
		TokenFunc: sessions.GenerateToken,
	}
}

// Seeds the admin accounts if needed and settles the persisted session into a consistent state.
func (ac *AuthContext) Init(ctx context.Context) error {
	if err := ac.InitAdminAccounts(ctx); err != nil {
		return err
	}
	_, err := ac.CheckLoginStatus(ctx)
	return err
}

// Reads the persisted session and returns it if it is complete, unexpired and its token has the
// right shape. In every other case the session is cleared and a logged out status is returned.
func (ac *AuthContext) CheckLoginStatus(ctx context.Context) (sessions.LoginStatus, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.checkLoginStatus(ctx)
}

func (ac *AuthContext) checkLoginStatus(ctx context.Context) (sessions.LoginStatus, error) {
	session, ok, err := ac.loadSession(ctx)
	if err != nil {
		return sessions.LoginStatus{}, err
	}
	if ok {
		token := session.Token
		user := session.User
		return sessions.LoginStatus{IsLoggedIn: true, User: &user, Token: &token}, nil
	}

	if err := ac.logout(ctx); err != nil {
		return sessions.LoginStatus{}, err
	}
	return sessions.LoginStatus{}, nil
}

// loadSession reports ok only for a session that passes every check.
func (ac *AuthContext) loadSession(ctx context.Context) (sessions.Session, bool, error) {
	var session sessions.Session

	token, hasToken, err := ac.Storage.Get(ctx, sessions.TokenKey)
	if err != nil {
		return session, false, fmt.Errorf("load session token: %w", err)
	}
	expires, hasExpires, err := ac.Storage.Get(ctx, sessions.ExpiresKey)
	if err != nil {
		return session, false, fmt.Errorf("load session expiry: %w", err)
	}
	userData, hasUser, err := ac.Storage.Get(ctx, sessions.UserKey)
	if err != nil {
		return session, false, fmt.Errorf("load session user: %w", err)
	}

	if !hasToken || !hasExpires || !hasUser || token == "" || expires == "" || userData == "" {
		return session, false, nil
	}

	expiresAt, err := sessions.ParseTimestamp(expires)
	if err != nil {
		log.Warnf("auth: session expiry [%s] is not a timestamp: %s", expires, err)
		return session, false, nil
	}
	session.ExpiresAt = expiresAt
	if session.Expired(ac.Now()) {
		log.Debugf("auth: session expired at %s", expiresAt)
		return session, false, nil
	}

	if !ac.ValidateToken(token) {
		log.Warnln("auth: session token has an invalid shape")
		return session, false, nil
	}
	session.Token = token

	if err := json.Unmarshal([]byte(userData), &session.User); err != nil {
		log.Warnf("auth: session user snapshot is malformed: %s", err)
		return session, false, nil
	}

	return session, true, nil
}

// Shape check only: the token must be exactly sessions.TokenLength characters long.
func (ac *AuthContext) ValidateToken(token string) bool {
	return sessions.ValidateToken(token)
}

// Looks up the account matching both username and password. On a match a new session is persisted and
// the UI is switched to the logged in state. A mismatch is reported in the result, not as an error,
// and leaves the storage untouched.
func (ac *AuthContext) Login(ctx context.Context, username, password string) (sessions.LoginResult, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	attemptId := ulid.Make().String()
	logger := log.WithFields(log.Fields{"attempt_id": attemptId, "username": username})

	account, ok, err := ac.validateAdminAccount(ctx, username, password)
	if err != nil {
		return sessions.LoginResult{}, err
	}
	if !ok {
		logger.Warnln("auth: login rejected")
		return sessions.LoginResult{Success: false, Message: sessions.InvalidCredentialsMessage}, nil
	}

	token := ac.TokenFunc()
	expiresAt := sessions.NewTimestamp(ac.Now().Add(ac.Duration))
	userData, err := json.Marshal(account)
	if err != nil {
		return sessions.LoginResult{}, fmt.Errorf("encode session user: %w", err)
	}

	writes := []struct{ key, value, what string }{
		{sessions.TokenKey, token, "token"},
		{sessions.ExpiresKey, expiresAt.String(), "expiry"},
		{sessions.UserKey, string(userData), "user"},
	}
	for _, w := range writes {
		if err := ac.Storage.Set(ctx, w.key, w.value); err != nil {
			// don't leave half a session behind
			if cleanupErr := ac.logout(ctx); cleanupErr != nil {
				logger.Errorf("auth: clear partial session: %s", cleanupErr)
			}
			return sessions.LoginResult{}, fmt.Errorf("save session %s: %w", w.what, err)
		}
	}

	ac.UI.Update(true)
	logger.Infof("auth: logged in, session expires at %s", expiresAt)

	return sessions.LoginResult{Success: true, User: &account, Token: token}, nil
}

// Clears every session key and switches the UI to the logged out state. Every key is removed even if
// an earlier removal failed. Calling Logout without a session is a no-op apart from the UI update.
func (ac *AuthContext) Logout(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.logout(ctx)
}

func (ac *AuthContext) logout(ctx context.Context) error {
	var err error
	for _, key := range []string{sessions.TokenKey, sessions.ExpiresKey, sessions.UserKey} {
		if rmErr := ac.Storage.Remove(ctx, key); rmErr != nil {
			err = multierr.Append(err, fmt.Errorf("remove %s: %w", key, rmErr))
		}
	}
	ac.UI.Update(false)
	return err
}

// Reports whether there is a valid admin session. The session is re-validated on every call.
func (ac *AuthContext) HasPermission(ctx context.Context) (bool, error) {
	status, err := ac.CheckLoginStatus(ctx)
	if err != nil {
		return false, err
	}
	return status.IsLoggedIn, nil
}

func (ac *AuthContext) GenerateToken() string {
	return ac.TokenFunc()
}
