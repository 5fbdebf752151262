package erp

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache stores the ERP bearer token between calls.
type TokenCache interface {
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// RedisTokenCache keeps the token under a single Redis key so every replica shares it.
type RedisTokenCache struct {
	client *redis.Client
	key    string
}

// NewRedisTokenCache builds a cache. An empty key falls back to "erp:token".
func NewRedisTokenCache(client *redis.Client, key string) *RedisTokenCache {
	if key == "" {
		key = "erp:token"
	}
	return &RedisTokenCache{client: client, key: key}
}

func (c *RedisTokenCache) Get(ctx context.Context) (string, bool, error) {
	token, err := c.client.Get(ctx, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return token, token != "", nil
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, c.key, token, ttl).Err()
}

func (c *RedisTokenCache) Delete(ctx context.Context) error {
	return c.client.Del(ctx, c.key).Err()
}
