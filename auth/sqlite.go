package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cameronmore/go-admin-sessions/sessions"
	_ "github.com/mattn/go-sqlite3"
)

var _ sessions.Storage = (*SQLiteStorage)(nil)

type SQLiteStorage struct {
	DB *sql.DB
}

// Opens the SQLite database at the given path (":memory:" for a throwaway one) and returns a storage on it.
func OpenSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// every connection to ":memory:" is its own database
	db.SetMaxOpenConns(1)
	store, err := NewSQLiteStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Returns a new SQLite storage and creates the key-value table if it doesn't exist
func NewSQLiteStorage(db *sql.DB) (*SQLiteStorage, error) {
	newKVTableQuery := `
	CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
	);
	`
	_, err := db.Exec(newKVTableQuery)
	if err != nil {
		return nil, err
	}

	return &SQLiteStorage{
		DB: db,
	}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key, value string) error {
	setQuery := `
		INSERT INTO kv (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`
	_, err := s.DB.ExecContext(ctx, setQuery, key, value)
	return err
}

func (s *SQLiteStorage) Remove(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.DB.Close()
}
