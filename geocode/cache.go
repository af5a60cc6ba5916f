package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores resolved locations by CacheKey. Failures are logged and
// treated as misses.
type Cache interface {
	Get(ctx context.Context, key string) (Location, bool)
	Set(ctx context.Context, key string, loc Location, ttl time.Duration)
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) (Location, bool) {
	raw, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.S().Warnf("redis get %s failed: %v", key, err)
		}
		return Location{}, false
	}
	var loc Location
	if err := json.Unmarshal([]byte(raw), &loc); err != nil {
		zap.S().Warnf("redis value for %s is not a location: %v", key, err)
		return Location{}, false
	}
	return loc, true
}

func (r *RedisCache) Set(ctx context.Context, key string, loc Location, ttl time.Duration) {
	raw, err := json.Marshal(loc)
	if err != nil {
		zap.S().Warnf("failed to encode location for %s: %v", key, err)
		return
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		zap.S().Warnf("redis set %s failed: %v", key, err)
	}
}

// MemoryCache is an in-process LRU. Entries expire after the TTL given at
// construction; the ttl passed to Set is ignored.
type MemoryCache struct {
	lru *expirable.LRU[string, Location]
}

func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	return &MemoryCache{lru: expirable.NewLRU[string, Location](size, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) (Location, bool) {
	return m.lru.Get(key)
}

func (m *MemoryCache) Set(_ context.Context, key string, loc Location, _ time.Duration) {
	m.lru.Add(key, loc)
}
