//go:build js && wasm

package auth

import (
	"context"
	"errors"
	"syscall/js"

	"github.com/cameronmore/go-admin-sessions/sessions"
)

var ErrNoLocalStorage = errors.New("window.localStorage is not available")

var _ sessions.Storage = (*LocalStorage)(nil)

// A sessions.Storage on the browser's window.localStorage.
type LocalStorage struct {
	storage js.Value
}

func NewLocalStorage() (*LocalStorage, error) {
	storage := js.Global().Get("localStorage")
	if !storage.Truthy() {
		return nil, ErrNoLocalStorage
	}
	return &LocalStorage{storage: storage}, nil
}

func (l *LocalStorage) Get(_ context.Context, key string) (string, bool, error) {
	v := l.storage.Call("getItem", key)
	if v.IsNull() || v.IsUndefined() {
		return "", false, nil
	}
	return v.String(), true, nil
}

func (l *LocalStorage) Set(_ context.Context, key, value string) error {
	l.storage.Call("setItem", key, value)
	return nil
}

func (l *LocalStorage) Remove(_ context.Context, key string) error {
	l.storage.Call("removeItem", key)
	return nil
}
