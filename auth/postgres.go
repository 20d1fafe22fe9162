package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/cameronmore/go-admin-sessions/sessions"
	_ "github.com/lib/pq"
)

var _ sessions.Storage = (*PostgresStorage)(nil)

type PostgresStorage struct {
	DB *sql.DB
}

// Connects to Postgres with the given DSN and returns a storage on it.
func OpenPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	store, err := NewPostgresStorage(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Returns a new Postgres storage and creates the key-value table if it doesn't exist
func NewPostgresStorage(db *sql.DB) (*PostgresStorage, error) {
	newKVTableQuery := `
	CREATE TABLE IF NOT EXISTS admin_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
	);
	`
	_, err := db.Exec(newKVTableQuery)
	if err != nil {
		return nil, err
	}

	return &PostgresStorage{
		DB: db,
	}, nil
}

func (pg *PostgresStorage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := pg.DB.QueryRowContext(ctx, "SELECT value FROM admin_kv WHERE key = $1", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	} else if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (pg *PostgresStorage) Set(ctx context.Context, key, value string) error {
	setQuery := `
		INSERT INTO admin_kv (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`
	_, err := pg.DB.ExecContext(ctx, setQuery, key, value)
	return err
}

func (pg *PostgresStorage) Remove(ctx context.Context, key string) error {
	_, err := pg.DB.ExecContext(ctx, "DELETE FROM admin_kv WHERE key = $1", key)
	return err
}

func (pg *PostgresStorage) Close() error {
	return pg.DB.Close()
}
