package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/tenantcore/pkg/cache"
)

// ReportCache stores reports of closed windows. Cached reports are shared and
// must not be modified.
type ReportCache interface {
	Get(ctx context.Context, key string) (*Report, bool, error)
	Set(ctx context.Context, key string, r *Report) error
}

// MemoryCache is a process-local ReportCache.
type MemoryCache struct {
	lru *cache.LRU[string, *Report]
}

// NewMemoryCache creates a cache holding up to capacity reports for ttl
// (zero keeps them until evicted).
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: cache.New[string, *Report](capacity, cache.WithTTL(ttl))}
}

// Get implements ReportCache.
func (c *MemoryCache) Get(_ context.Context, key string) (*Report, bool, error) {
	r, ok := c.lru.Get(key)
	return r, ok, nil
}

// Set implements ReportCache.
func (c *MemoryCache) Set(_ context.Context, key string, r *Report) error {
	c.lru.Put(key, r)
	return nil
}

// RedisCache shares reports across processes through Redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced with prefix.
func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("compliance: redis client cannot be nil")
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Get implements ReportCache.
func (c *RedisCache) Get(ctx context.Context, key string) (*Report, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var r Report
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("decode cached report: %w", err)
	}
	return &r, true, nil
}

// Set implements ReportCache.
func (c *RedisCache) Set(ctx context.Context, key string, r *Report) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return c.client.Set(ctx, c.key(key), raw, c.ttl).Err()
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}
