package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kargig/divemap-sub000/internal/models"
)

const keyPrefix = "wind:"

// MemcachedCache implements the persistent tier using memcached.
type MemcachedCache struct {
	client *memcache.Client
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Returns false, nil on cache miss; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.WindSample, bool, error) {
	if ctx.Err() != nil {
		return models.WindSample{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.WindSample{}, false, nil
		}
		return models.WindSample{}, false, err
	}
	var sample models.WindSample
	if err := json.Unmarshal(item.Value, &sample); err != nil {
		return models.WindSample{}, false, err
	}
	return sample, true, nil
}

// GetBatch implements Cache.GetBatch using a single GetMulti round trip.
// Missing keys are simply absent from the result map.
func (c *MemcachedCache) GetBatch(ctx context.Context, keys []string) (map[string]models.WindSample, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	items, err := c.client.GetMulti(prefixed)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.WindSample, len(items))
	for _, k := range keys {
		item, ok := items[c.key(k)]
		if !ok {
			continue
		}
		var sample models.WindSample
		if err := json.Unmarshal(item.Value, &sample); err != nil {
			continue
		}
		out[k] = sample
	}
	return out, nil
}

// Set implements Cache.Set. Writes are idempotent upserts keyed by cache key.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.WindSample, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	expSec := int32(ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 900 // fallback to the default TTL if invalid
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
