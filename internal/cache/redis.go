package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kargig/divemap-sub000/internal/models"
)

// RedisCache implements the persistent tier using redis. Alternative to
// memcached for deployments that already run redis.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache creates a RedisCache and pings the server to ensure it is
// reachable before first use.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

func (c *RedisCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *RedisCache) Get(ctx context.Context, key string) (models.WindSample, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return models.WindSample{}, false, nil
		}
		return models.WindSample{}, false, err
	}
	var sample models.WindSample
	if err := json.Unmarshal(raw, &sample); err != nil {
		return models.WindSample{}, false, err
	}
	return sample, true, nil
}

// GetBatch implements Cache.GetBatch using a single MGET round trip.
func (c *RedisCache) GetBatch(ctx context.Context, keys []string) (map[string]models.WindSample, error) {
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	vals, err := c.rdb.MGet(ctx, prefixed...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.WindSample, len(keys))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var sample models.WindSample
		if err := json.Unmarshal([]byte(s), &sample); err != nil {
			continue
		}
		out[keys[i]] = sample
	}
	return out, nil
}

// Set implements Cache.Set as an idempotent upsert with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value models.WindSample, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	return c.rdb.Set(ctx, c.key(key), raw, ttl).Err()
}

// Ping checks if redis is reachable. Used for health checks.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the redis client. Call during shutdown.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
