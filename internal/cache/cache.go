package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kargig/divemap-sub000/internal/models"
	"github.com/kargig/divemap-sub000/internal/observability"
)

// Cache defines the interface for wind sample caching tiers.
// Get returns cached data if present and not expired, Set stores data with TTL,
// GetBatch resolves many keys in one round trip where the backend supports it.
type Cache interface {
	Get(ctx context.Context, key string) (models.WindSample, bool, error)
	Set(ctx context.Context, key string, value models.WindSample, ttl time.Duration) error
	GetBatch(ctx context.Context, keys []string) (map[string]models.WindSample, error)
}

// DefaultMaxEntries caps the in-memory tier. Overflow triggers a cleanup pass.
const DefaultMaxEntries = 500

// InMemoryCache implements Cache using a mutex-guarded map with TTL-based
// expiration and a size cap. Expired entries are removed on access; overflow
// beyond the cap evicts expired entries first, then oldest-written entries.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]memEntry
	maxEntries int
}

// memEntry stores a cached wind sample with its write and expiry timestamps.
type memEntry struct {
	value     models.WindSample
	cachedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache capped at maxEntries.
// maxEntries <= 0 uses DefaultMaxEntries.
func NewInMemoryCache(maxEntries int) *InMemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &InMemoryCache{
		data:       make(map[string]memEntry),
		maxEntries: maxEntries,
	}
}

// Get retrieves the cached sample for key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
// Expired entries are removed on access.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.WindSample, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.WindSample{}, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.WindSample{}, false, nil
	}
	return entry.value, true, nil
}

// GetBatch resolves keys against the map. Only present, unexpired keys appear
// in the result.
func (c *InMemoryCache) GetBatch(ctx context.Context, keys []string) (map[string]models.WindSample, error) {
	out := make(map[string]models.WindSample, len(keys))
	for _, k := range keys {
		if v, ok, _ := c.Get(ctx, k); ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set stores a sample with the given TTL. Writing past the size cap runs a
// cleanup pass so the map never settles above maxEntries.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.WindSample, ttl time.Duration) error {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = memEntry{
		value:     value,
		cachedAt:  now,
		expiresAt: now.Add(ttl),
	}
	if len(c.data) > c.maxEntries {
		c.cleanupLocked(now)
	}
	return nil
}

// Len returns the current entry count.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// cleanupLocked removes expired entries, then oldest-written entries, until
// the map is at or under the cap. Must be called with the mutex held.
func (c *InMemoryCache) cleanupLocked(now time.Time) {
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
			observability.CacheEvictionsTotal.WithLabelValues("expired").Inc()
		}
	}
	if len(c.data) <= c.maxEntries {
		return
	}

	type aged struct {
		key      string
		cachedAt time.Time
	}
	entries := make([]aged, 0, len(c.data))
	for k, e := range c.data {
		entries = append(entries, aged{key: k, cachedAt: e.cachedAt})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].cachedAt.Before(entries[j].cachedAt)
	})
	for _, e := range entries {
		if len(c.data) <= c.maxEntries {
			break
		}
		delete(c.data, e.key)
		observability.CacheEvictionsTotal.WithLabelValues("overflow").Inc()
	}
}
