package modulecache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "bur:module:"

// RedisCache wraps go-redis exactly as oriys-nova/internal/store.RedisStore
// wraps it: a thin client over a key-prefixed namespace, JSON values,
// TTL-bearing Set, and a Ping health check.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache dials addr and verifies connectivity with Ping.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("modulecache: connecting to redis at %q: %w", addr, err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

// Get returns the cached module for path, or ok=false on a cache miss.
func (c *RedisCache) Get(ctx context.Context, path string) (*CachedModule, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+path).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("modulecache: redis get %q: %w", path, err)
	}
	m, err := decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("modulecache: decoding cached module %q: %w", path, err)
	}
	return m, true, nil
}

// Set stores m under path with the given TTL (0 means no expiry).
func (c *RedisCache) Set(ctx context.Context, path string, m *CachedModule, ttl time.Duration) error {
	data, err := encode(m)
	if err != nil {
		return fmt.Errorf("modulecache: encoding module %q: %w", path, err)
	}
	if err := c.client.Set(ctx, keyPrefix+path, data, ttl).Err(); err != nil {
		return fmt.Errorf("modulecache: redis set %q: %w", path, err)
	}
	return nil
}

// Invalidate drops the cached entry for path, if any.
func (c *RedisCache) Invalidate(ctx context.Context, path string) error {
	if err := c.client.Del(ctx, keyPrefix+path).Err(); err != nil {
		return fmt.Errorf("modulecache: redis del %q: %w", path, err)
	}
	return nil
}
