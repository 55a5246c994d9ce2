package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsCache adapts a redis client to the statsCache interface.
type RedisStatsCache struct {
	client *redis.Client
}

// NewRedisStatsCache wraps the client. A nil client yields a nil cache, which
// the artifact service treats as "no caching".
func NewRedisStatsCache(client *redis.Client) *RedisStatsCache {
	if client == nil {
		return nil
	}
	return &RedisStatsCache{client: client}
}

// Get fetches a cached value; a miss (or absent cache) returns redis.Nil as
// the error. Nil-receiver safe so callers can wire it unconditionally.
func (c *RedisStatsCache) Get(ctx context.Context, key string) (string, error) {
	if c == nil || c.client == nil {
		return "", redis.Nil
	}
	return c.client.Get(ctx, key).Result()
}

// Set writes a value with a TTL. A nil cache silently drops the write.
func (c *RedisStatsCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}
