package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "storefront:token:"

// RedisStore keeps the credential under a per-session key whose TTL is the
// credential lifetime, so one shell session survives restarts.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a store for sessionID.
func NewRedisStore(client redis.Cmdable, sessionID string) *RedisStore {
	return &RedisStore{client: client, key: redisKeyPrefix + sessionID}
}

// Key returns the redis key backing this session.
func (s *RedisStore) Key() string {
	return s.key
}

// Set overwrites the credential with a 7 or 30 day TTL.
func (s *RedisStore) Set(ctx context.Context, token string, extended bool) error {
	if err := s.client.Set(ctx, s.key, token, TTL(extended)).Err(); err != nil {
		return fmt.Errorf("redis set credential: %w", err)
	}
	return nil
}

// Get returns the credential; redis expiry makes it disappear.
func (s *RedisStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("redis get credential: %w", err)
	}
	return token, nil
}

// Clear deletes the key.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis del credential: %w", err)
	}
	return nil
}

// Ping checks the redis connection; used by readiness.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
