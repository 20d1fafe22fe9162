package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cameronmore/go-admin-sessions/sessions"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAdminUsername = "admin"
	DefaultAdminPassword = "admin123456"
)

// Returns the persisted admin accounts. Absent or malformed data yields an empty list, only a storage
// failure is returned as an error.
func (ac *AuthContext) GetAdminAccounts(ctx context.Context) ([]sessions.Account, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.getAdminAccounts(ctx)
}

func (ac *AuthContext) getAdminAccounts(ctx context.Context) ([]sessions.Account, error) {
	accounts, _, err := ac.loadAdminAccounts(ctx)
	return accounts, err
}

// loadAdminAccounts also returns the raw entries of the stored list, including entries that could not
// be decoded as an account. No entries means there is nothing worth keeping.
func (ac *AuthContext) loadAdminAccounts(ctx context.Context) ([]sessions.Account, []json.RawMessage, error) {
	data, ok, err := ac.Storage.Get(ctx, sessions.AccountsKey)
	if err != nil {
		return nil, nil, fmt.Errorf("load admin accounts: %w", err)
	}
	if !ok || strings.TrimSpace(data) == "" {
		return []sessions.Account{}, nil, nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		log.Warnf("auth: stored admin accounts are malformed, treating as empty: %s", err)
		return []sessions.Account{}, nil, nil
	}

	accounts := make([]sessions.Account, 0, len(entries))
	for i, entry := range entries {
		var account sessions.Account
		if err := json.Unmarshal(entry, &account); err != nil {
			log.Warnf("auth: skipping admin account #%d: %s", i, err)
			continue
		}
		accounts = append(accounts, account)
	}
	return accounts, entries, nil
}

func (ac *AuthContext) saveAdminAccounts(ctx context.Context, accounts any) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return fmt.Errorf("encode admin accounts: %w", err)
	}
	if err := ac.Storage.Set(ctx, sessions.AccountsKey, string(data)); err != nil {
		return fmt.Errorf("save admin accounts: %w", err)
	}
	return nil
}

// Returns the first account whose username and password both match exactly.
func (ac *AuthContext) ValidateAdminAccount(ctx context.Context, username, password string) (sessions.Account, bool, error) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.validateAdminAccount(ctx, username, password)
}

func (ac *AuthContext) validateAdminAccount(ctx context.Context, username, password string) (sessions.Account, bool, error) {
	accounts, err := ac.getAdminAccounts(ctx)
	if err != nil {
		return sessions.Account{}, false, err
	}
	for _, account := range accounts {
		if account.Username == username && account.Password == password {
			return account, true, nil
		}
	}
	return sessions.Account{}, false, nil
}

// Seeds the default admin account when the stored list is absent, empty or not a JSON array. Any
// non-empty list is left as is, even if some of its entries cannot be used.
func (ac *AuthContext) InitAdminAccounts(ctx context.Context) error {
	ac.mu.Lock()
	defer ac.mu.Unlock()

	_, entries, err := ac.loadAdminAccounts(ctx)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return nil
	}

	log.Infof("auth: no admin accounts found, creating default account [%s]", DefaultAdminUsername)
	return ac.saveAdminAccounts(ctx, []sessions.Account{{
		Username:  DefaultAdminUsername,
		Password:  DefaultAdminPassword,
		CreatedAt: sessions.NewTimestamp(ac.Now()),
	}})
}

// Appends a new admin account. Usernames must be unique within the stored list.
func (ac *AuthContext) AddAdminAccount(ctx context.Context, username, password string) (sessions.Account, error) {
	if strings.TrimSpace(username) == "" {
		return sessions.Account{}, sessions.ErrUsernameRequired
	}
	if password == "" {
		return sessions.Account{}, sessions.ErrPasswordRequired
	}

	ac.mu.Lock()
	defer ac.mu.Unlock()

	accounts, entries, err := ac.loadAdminAccounts(ctx)
	if err != nil {
		return sessions.Account{}, err
	}
	for _, account := range accounts {
		if account.Username == username {
			return sessions.Account{}, sessions.ErrUsernameExists
		}
	}

	account := sessions.Account{
		Username:  username,
		Password:  password,
		CreatedAt: sessions.NewTimestamp(ac.Now()),
	}
	entry, err := json.Marshal(account)
	if err != nil {
		return sessions.Account{}, fmt.Errorf("encode admin account: %w", err)
	}
	// entries that could not be decoded are written back untouched
	if err := ac.saveAdminAccounts(ctx, append(entries, entry)); err != nil {
		return sessions.Account{}, err
	}

	log.Infof("auth: admin account [%s] added", username)
	return account, nil
}
