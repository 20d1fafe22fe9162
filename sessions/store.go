package sessions

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// Keys under which the session and the admin accounts are persisted.
const (
	TokenKey    = "adminToken"
	ExpiresKey  = "adminTokenExpires"
	UserKey     = "currentAdminUser"
	AccountsKey = "adminAccounts"
)

// The expiry and createdAt values are written in the same shape as Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is a time that is always marshalled as a UTC ISO-8601 string with millisecond precision.
// A stored value that is not such a string (a date only, epoch milliseconds) still decodes: the
// original JSON is kept and written back unchanged.
type Timestamp struct {
	time.Time
	raw string
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

func (ts Timestamp) String() string {
	return ts.UTC().Format(TimestampLayout)
}

// Raw returns the stored JSON of a timestamp that could not be read as ISO-8601, or "".
func (ts Timestamp) Raw() string {
	return ts.raw
}

func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return Timestamp{}, err
	}
	return NewTimestamp(t), nil
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.raw != "" {
		return []byte(ts.raw), nil
	}
	return []byte(`"` + ts.String() + `"`), nil
}

// Never fails: anything but an ISO-8601 string is kept raw, with a best-effort time.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" || trimmed == `""` {
		*ts = Timestamp{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if parsed, err := ParseTimestamp(s); err == nil {
			*ts = parsed
			return nil
		}
		*ts = Timestamp{raw: trimmed}
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			ts.Time = t.UTC()
		}
		return nil
	}

	*ts = Timestamp{raw: trimmed}
	var millis float64
	if err := json.Unmarshal(data, &millis); err == nil {
		ts.Time = time.UnixMilli(int64(millis)).UTC()
	}
	return nil
}

// An administrator identity. The password is stored and compared in plaintext.
type Account struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	CreatedAt Timestamp `json:"createdAt"`
}

type Session struct {
	Token     string
	ExpiresAt Timestamp
	User      Account
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt.Time)
}

// The result of a login status check. User and Token are nil when logged out.
type LoginStatus struct {
	IsLoggedIn bool     `json:"isLoggedIn"`
	User       *Account `json:"user"`
	Token      *string  `json:"token"`
}

type LoginResult struct {
	Success bool     `json:"success"`
	User    *Account `json:"user,omitempty"`
	Token   string   `json:"token,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Storage is the string-keyed, string-valued store the session lives in.
// Removing a key that is not present is not an error.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}
