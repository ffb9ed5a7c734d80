package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"sitewatch/internal/types"
)

// Cache stores generated alert text keyed by content hash.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

const cacheKeyPrefix = "alert_content:"

// CacheKey hashes the inputs that determine generated text. Targets sharing a
// weather pattern share a key.
func CacheKey(conditions types.TriggeredConditions, currentText, forecastText string) string {
	h := sha256.New()
	h.Write([]byte(conditions.SortedKey()))
	h.Write([]byte{0})
	h.Write([]byte(currentText))
	h.Write([]byte{0})
	h.Write([]byte(forecastText))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// MemoryCache is a process-local expirable LRU. Entries expire after the TTL
// given at construction; the per-call ttl is ignored.
type MemoryCache struct {
	lru *expirable.LRU[string, string]
}

// NewMemoryCache creates a MemoryCache holding at most size entries.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 512
	}
	return &MemoryCache{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.lru.Add(key, value)
	return nil
}

// redisClient is the subset of *redis.Client used by RedisCache.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisCache shares generated text between concurrent runners.
type RedisCache struct {
	client redisClient
}

// NewRedisCache wraps a redis client.
func NewRedisCache(client redisClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

var (
	_ Cache = (*MemoryCache)(nil)
	_ Cache = (*RedisCache)(nil)
)
