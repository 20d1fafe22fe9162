package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/spf13/afero"
)

var _ sessions.Storage = (*FileStorage)(nil)

// A sessions.Storage persisted as a single JSON object in a file. The whole file is rewritten on every
// mutation, which is fine for the handful of keys an admin session needs.
type FileStorage struct {
	mu     sync.Mutex
	fs     afero.Fs
	path   string
	values map[string]string
}

// Opens (or creates on first write) the JSON file at path on fs.
func NewFileStorage(fs afero.Fs, path string) (*FileStorage, error) {
	dir := filepath.Dir(path)
	if exists, _ := afero.DirExists(fs, dir); !exists {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	fst := &FileStorage{
		fs:     fs,
		path:   path,
		values: make(map[string]string),
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return fst, nil
		}
		return nil, fmt.Errorf("read storage file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fst.values); err != nil {
			return nil, fmt.Errorf("decode storage file %s: %w", path, err)
		}
	}
	// a file holding "null" decodes to a nil map
	if fst.values == nil {
		fst.values = make(map[string]string)
	}
	return fst, nil
}

func (f *FileStorage) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStorage) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.values[key]
	f.values[key] = value
	if err := f.saveLocked(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *FileStorage) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.values[key]
	if !had {
		return nil
	}
	delete(f.values, key)
	if err := f.saveLocked(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

// saveLocked writes to a temp file and renames it over the old one; the caller holds f.mu.
func (f *FileStorage) saveLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}
	return nil
}
