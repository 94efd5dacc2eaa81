// Package cache holds the short-TTL payload cache for watchtower sources.
// Values are the serialized normalized payload (not raw HTTP bodies), so a
// hit bypasses fetching and parsing entirely. Any failure (unavailable
// backend, corrupt value, schema drift) degrades silently to a live fetch;
// the cache never surfaces an error to the sync path.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the key-value surface the sync engine consults.
type Cache interface {
	// Get returns the cached payload and whether it was a usable hit.
	Get(ctx context.Context, key string) ([]byte, bool)
	// SetEx stores a payload with the given TTL, best effort.
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// RedisCache backs Cache with a Redis instance.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis creates a RedisCache against the given address.
func NewRedis(addr string) *RedisCache {
	return NewRedisWithClient(redis.NewClient(&redis.Options{Addr: addr}))
}

// NewRedisWithClient wraps an existing client (tests inject miniredis).
func NewRedisWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{
		client: client,
		logger: slog.Default().With("component", "watchtower.cache"),
	}
}

// Ping checks backend reachability so callers can fall back to Noop.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return val, true
}

func (c *RedisCache) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", "key", key, "error", err)
	}
}

// Noop is the cache used when no backend is configured: every read misses,
// every write is dropped.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool)                   { return nil, false }
func (Noop) SetEx(ctx context.Context, key string, value []byte, t time.Duration) {}
