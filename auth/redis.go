package auth

import (
	"context"
	"errors"

	"github.com/cameronmore/go-admin-sessions/sessions"
	"github.com/go-redis/redis/v8"
)

const DefaultRedisKeyPrefix = "admin-sessions||"

var _ sessions.Storage = (*RedisStorage)(nil)

// A sessions.Storage on Redis. Every key is stored under Prefix + key.
type RedisStorage struct {
	Client *redis.Client
	Prefix string
}

func NewRedisStorage(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisStorage{
		Client: client,
		Prefix: prefix,
	}
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	cmd := r.Client.Get(ctx, r.Prefix+key)
	if err := cmd.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return cmd.Val(), true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	return r.Client.Set(ctx, r.Prefix+key, value, 0).Err()
}

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	return r.Client.Del(ctx, r.Prefix+key).Err()
}
