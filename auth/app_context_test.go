package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// INFO: https://github.com/go-redis/redis/issues/1029
		goleak.IgnoreTopFunction(
			"github.com/go-redis/redis/v8/internal/pool.(*ConnPool).reaper",
		),
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type recordingUI struct {
	updates []bool
}

func (r *recordingUI) Update(isLoggedIn bool) {
	r.updates = append(r.updates, isLoggedIn)
}

func newTestAuthContext(t *testing.T) (*AuthContext, *MemoryStorage, *recordingUI) {
	t.Helper()
	storage := NewMemoryStorage()
	ui := &recordingUI{}
	ac := NewAuthContext(storage, ui, 0)
	ac.Now = func() time.Time { return testNow }
	require.NoError(t, ac.InitAdminAccounts(context.Background()))
	return ac, storage, ui
}

// failingStorage fails every call once err is set.
type failingStorage struct {
	*MemoryStorage
	err error
	// when set, only Set on this key fails
	failSetKey string
}

func (f *failingStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if f.err != nil {
		return "", false, f.err
	}
	return f.MemoryStorage.Get(ctx, key)
}

func (f *failingStorage) Set(ctx context.Context, key, value string) error {
	if f.failSetKey != "" && key == f.failSetKey {
		return errors.New("write rejected")
	}
	if f.err != nil {
		return f.err
	}
	return f.MemoryStorage.Set(ctx, key, value)
}

func (f *failingStorage) Remove(ctx context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	return f.MemoryStorage.Remove(ctx, key)
}

func TestNewAuthContext_Defaults(t *testing.T) {
	ac := NewAuthContext(NewMemoryStorage(), nil, -time.Hour)
	assert.Equal(t, DefaultSessionTTL, ac.Duration)
	assert.Equal(t, sessions.NopUI{}, ac.UI)
	assert.Len(t, ac.GenerateToken(), sessions.TokenLength)

	ac = NewAuthContext(NewMemoryStorage(), nil, time.Hour)
	assert.Equal(t, time.Hour, ac.Duration)
}

func TestAuthContext_Login(t *testing.T) {
	ac, storage, ui := newTestAuthContext(t)
	ctx := context.Background()

	result, err := ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, result.User)
	assert.Equal(t, DefaultAdminUsername, result.User.Username)
	assert.Empty(t, result.Message)
	require.Len(t, result.Token, sessions.TokenLength)
	for _, c := range result.Token {
		assert.True(t, strings.ContainsRune(sessions.TokenAlphabet, c))
	}
	assert.Equal(t, []bool{true}, ui.updates)

	stored := storage.Snapshot()
	assert.Equal(t, result.Token, stored[sessions.TokenKey])
	assert.Equal(t, "2025-06-02T12:00:00.000Z", stored[sessions.ExpiresKey])
	var user sessions.Account
	require.NoError(t, json.Unmarshal([]byte(stored[sessions.UserKey]), &user))
	assert.Equal(t, *result.User, user)

	status, err := ac.CheckLoginStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsLoggedIn)
	require.NotNil(t, status.Token)
	assert.Equal(t, result.Token, *status.Token)
	require.NotNil(t, status.User)
	assert.Equal(t, DefaultAdminUsername, status.User.Username)
}

func TestAuthContext_Login_WrongCredentials(t *testing.T) {
	ac, storage, ui := newTestAuthContext(t)
	ctx := context.Background()
	before := storage.Snapshot()

	for _, creds := range [][2]string{
		{DefaultAdminUsername, "wrong"},
		{"nobody", DefaultAdminPassword},
		{"", ""},
		{"ADMIN", DefaultAdminPassword},
	} {
		result, err := ac.Login(ctx, creds[0], creds[1])
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, sessions.InvalidCredentialsMessage, result.Message)
		assert.Equal(t, "账号或密码错误", result.Message)
		assert.Nil(t, result.User)
		assert.Empty(t, result.Token)
	}

	assert.Equal(t, before, storage.Snapshot())
	assert.Empty(t, ui.updates)
}

func TestAuthContext_Login_UsesTokenFunc(t *testing.T) {
	ac, _, _ := newTestAuthContext(t)
	ac.TokenFunc = func() string { return strings.Repeat("x", sessions.TokenLength) }

	result, err := ac.Login(context.Background(), DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", sessions.TokenLength), result.Token)
}

func TestAuthContext_Logout(t *testing.T) {
	ac, storage, ui := newTestAuthContext(t)
	ctx := context.Background()

	_, err := ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)

	require.NoError(t, ac.Logout(ctx))
	stored := storage.Snapshot()
	assert.NotContains(t, stored, sessions.TokenKey)
	assert.NotContains(t, stored, sessions.ExpiresKey)
	assert.NotContains(t, stored, sessions.UserKey)
	assert.Contains(t, stored, sessions.AccountsKey)

	// idempotent
	require.NoError(t, ac.Logout(ctx))
	assert.Equal(t, []bool{true, false, false}, ui.updates)

	status, err := ac.CheckLoginStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsLoggedIn)
	assert.Nil(t, status.User)
	assert.Nil(t, status.Token)
}

func TestAuthContext_Logout_RemovesEveryKeyOnError(t *testing.T) {
	storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
	ui := &recordingUI{}
	ac := NewAuthContext(storage, ui, time.Hour)

	storage.err = errors.New("storage down")
	err := ac.Logout(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.err)
	assert.Contains(t, err.Error(), sessions.TokenKey)
	assert.Contains(t, err.Error(), sessions.ExpiresKey)
	assert.Contains(t, err.Error(), sessions.UserKey)
	assert.Equal(t, []bool{false}, ui.updates)
}

func TestAuthContext_Login_PartialWriteIsCleared(t *testing.T) {
	for _, failKey := range []string{sessions.TokenKey, sessions.ExpiresKey, sessions.UserKey} {
		storage := &failingStorage{MemoryStorage: NewMemoryStorage(), failSetKey: failKey}
		ui := &recordingUI{}
		ac := NewAuthContext(storage, ui, time.Hour)
		ctx := context.Background()
		require.NoError(t, ac.InitAdminAccounts(ctx))

		_, err := ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
		require.Error(t, err, failKey)

		stored := storage.Snapshot()
		assert.NotContains(t, stored, sessions.TokenKey, failKey)
		assert.NotContains(t, stored, sessions.ExpiresKey, failKey)
		assert.NotContains(t, stored, sessions.UserKey, failKey)
		assert.Contains(t, stored, sessions.AccountsKey, failKey)
		assert.Equal(t, []bool{false}, ui.updates, failKey)
	}
}

func TestAuthContext_CheckLoginStatus_Expired(t *testing.T) {
	ac, storage, ui := newTestAuthContext(t)
	ctx := context.Background()

	_, err := ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)

	ac.Now = func() time.Time { return testNow.Add(DefaultSessionTTL) }
	status, err := ac.CheckLoginStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.IsLoggedIn)
	assert.Equal(t, []bool{true, false}, ui.updates)

	stored := storage.Snapshot()
	assert.NotContains(t, stored, sessions.TokenKey)
	assert.NotContains(t, stored, sessions.ExpiresKey)
	assert.NotContains(t, stored, sessions.UserKey)

	// one millisecond before expiry the session is still valid
	_, err = ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
	require.NoError(t, err)
	ac.Now = func() time.Time { return testNow.Add(2*DefaultSessionTTL - time.Millisecond) }
	loggedIn, err := ac.HasPermission(ctx)
	require.NoError(t, err)
	assert.True(t, loggedIn)
}

func TestAuthContext_CheckLoginStatus_InvalidSessions(t *testing.T) {
	validToken := strings.Repeat("a", sessions.TokenLength)
	validExpiry := sessions.NewTimestamp(testNow.Add(time.Hour)).String()
	validUser := `{"username":"admin","password":"admin123456","createdAt":"2025-01-01T00:00:00.000Z"}`

	cases := []struct {
		name   string
		values map[string]string
	}{
		{name: "empty storage", values: map[string]string{}},
		{name: "missing token", values: map[string]string{
			sessions.ExpiresKey: validExpiry, sessions.UserKey: validUser,
		}},
		{name: "missing expiry", values: map[string]string{
			sessions.TokenKey: validToken, sessions.UserKey: validUser,
		}},
		{name: "missing user", values: map[string]string{
			sessions.TokenKey: validToken, sessions.ExpiresKey: validExpiry,
		}},
		{name: "empty token", values: map[string]string{
			sessions.TokenKey: "", sessions.ExpiresKey: validExpiry, sessions.UserKey: validUser,
		}},
		{name: "short token", values: map[string]string{
			sessions.TokenKey: "abc", sessions.ExpiresKey: validExpiry, sessions.UserKey: validUser,
		}},
		{name: "unparsable expiry", values: map[string]string{
			sessions.TokenKey: validToken, sessions.ExpiresKey: "tomorrow", sessions.UserKey: validUser,
		}},
		{name: "past expiry", values: map[string]string{
			sessions.TokenKey:   validToken,
			sessions.ExpiresKey: sessions.NewTimestamp(testNow.Add(-time.Second)).String(),
			sessions.UserKey:    validUser,
		}},
		{name: "malformed user", values: map[string]string{
			sessions.TokenKey: validToken, sessions.ExpiresKey: validExpiry, sessions.UserKey: "{not json",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ac, storage, ui := newTestAuthContext(t)
			ctx := context.Background()
			for k, v := range tc.values {
				require.NoError(t, storage.Set(ctx, k, v))
			}

			status, err := ac.CheckLoginStatus(ctx)
			require.NoError(t, err)
			assert.False(t, status.IsLoggedIn)
			assert.Equal(t, []bool{false}, ui.updates)

			stored := storage.Snapshot()
			assert.NotContains(t, stored, sessions.TokenKey)
			assert.NotContains(t, stored, sessions.ExpiresKey)
			assert.NotContains(t, stored, sessions.UserKey)
		})
	}
}

func TestAuthContext_CheckLoginStatus_AnyTokenOfRightLength(t *testing.T) {
	ac, storage, _ := newTestAuthContext(t)
	ctx := context.Background()

	token := strings.Repeat("#", sessions.TokenLength)
	require.NoError(t, storage.Set(ctx, sessions.TokenKey, token))
	require.NoError(t, storage.Set(ctx, sessions.ExpiresKey, "2025-06-01T13:00:00.000Z"))
	require.NoError(t, storage.Set(ctx, sessions.UserKey, `{"username":"someone","password":"x","createdAt":"2025-01-01T00:00:00.000Z"}`))

	status, err := ac.CheckLoginStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsLoggedIn)
	assert.Equal(t, token, *status.Token)
	// the snapshot is not checked against the account list
	assert.Equal(t, "someone", status.User.Username)
}

func TestAuthContext_StorageErrors(t *testing.T) {
	storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
	ac := NewAuthContext(storage, nil, time.Hour)
	ctx := context.Background()
	require.NoError(t, ac.InitAdminAccounts(ctx))

	storage.err = errors.New("connection refused")

	_, err := ac.CheckLoginStatus(ctx)
	assert.ErrorIs(t, err, storage.err)

	_, err = ac.HasPermission(ctx)
	assert.ErrorIs(t, err, storage.err)

	_, err = ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
	assert.ErrorIs(t, err, storage.err)

	_, err = ac.GetAdminAccounts(ctx)
	assert.ErrorIs(t, err, storage.err)

	assert.ErrorIs(t, ac.Init(ctx), storage.err)
}

func TestAuthContext_ValidateToken(t *testing.T) {
	ac, _, _ := newTestAuthContext(t)
	assert.True(t, ac.ValidateToken(strings.Repeat("Z", 32)))
	assert.False(t, ac.ValidateToken(strings.Repeat("Z", 31)))
	assert.False(t, ac.ValidateToken(""))
}

func TestAuthContext_Init(t *testing.T) {
	storage := NewMemoryStorage()
	ui := &recordingUI{}
	ac := NewAuthContext(storage, ui, 0)
	ctx := context.Background()

	require.NoError(t, ac.Init(ctx))
	accounts, err := ac.GetAdminAccounts(ctx)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
	assert.Equal(t, []bool{false}, ui.updates)
}

func TestAuthContext_ConcurrentCallersSeeWholeSessions(t *testing.T) {
	ac, storage, _ := newTestAuthContext(t)
	ac.UI = sessions.NopUI{}
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := range 50 {
				switch (i + j) % 3 {
				case 0:
					_, err := ac.Login(ctx, DefaultAdminUsername, DefaultAdminPassword)
					assert.NoError(t, err)
				case 1:
					assert.NoError(t, ac.Logout(ctx))
				default:
					status, err := ac.CheckLoginStatus(ctx)
					assert.NoError(t, err)
					if status.IsLoggedIn {
						assert.NotNil(t, status.User)
						assert.NotNil(t, status.Token)
					}
				}
			}
		}(i)
	}
	wg.Wait()

	stored := storage.Snapshot()
	_, hasToken := stored[sessions.TokenKey]
	_, hasExpires := stored[sessions.ExpiresKey]
	_, hasUser := stored[sessions.UserKey]
	assert.Equal(t, hasToken, hasExpires)
	assert.Equal(t, hasToken, hasUser)
}
