package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kargig/divemap-sub000/internal/models"
	"github.com/kargig/divemap-sub000/internal/observability"
)

// TwoTier resolves lookups against an in-memory tier backed by a persistent
// store. L2 hits are promoted into L1 so repeated lookups stay in memory.
// Backend errors never escape: they are logged, counted, and treated as misses,
// matching the subsystem-wide "degrade to absent" policy.
type TwoTier struct {
	l1     Cache
	l2     Cache // nil when no persistent backend is configured
	ttl    time.Duration
	logger *zap.Logger
}

// NewTwoTier creates a two-tier cache. l2 may be nil, in which case only the
// in-memory tier is used. ttl applies to L1 promotions and to Set on both tiers.
func NewTwoTier(l1, l2 Cache, ttl time.Duration, logger *zap.Logger) *TwoTier {
	return &TwoTier{l1: l1, l2: l2, ttl: ttl, logger: logger}
}

// Get checks L1, then L2. An expired L1 entry counts as a miss. On an L2 hit
// the value is written back into L1 with a fresh TTL.
func (t *TwoTier) Get(ctx context.Context, key string) (models.WindSample, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		observability.CacheHitsTotal.WithLabelValues("memory").Inc()
		return v, true, nil
	}
	if t.l2 == nil {
		return models.WindSample{}, false, nil
	}
	v, ok, err := t.l2.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", "persistent").Inc()
		if t.logger != nil {
			t.logger.Debug("persistent cache get failed", zap.String("key", key), zap.Error(err))
		}
		return models.WindSample{}, false, nil
	}
	if !ok {
		return models.WindSample{}, false, nil
	}
	observability.CacheHitsTotal.WithLabelValues("persistent").Inc()
	_ = t.l1.Set(ctx, key, v, t.ttl)
	return v, true, nil
}

// GetBatch resolves keys against L1 first, then fetches the remainder from L2
// in a single batched lookup, promoting every L2 hit.
func (t *TwoTier) GetBatch(ctx context.Context, keys []string) (map[string]models.WindSample, error) {
	out := make(map[string]models.WindSample, len(keys))
	var missing []string
	for _, k := range keys {
		if v, ok, err := t.l1.Get(ctx, k); err == nil && ok {
			observability.CacheHitsTotal.WithLabelValues("memory").Inc()
			out[k] = v
		} else {
			missing = append(missing, k)
		}
	}
	if t.l2 == nil || len(missing) == 0 {
		return out, nil
	}
	batch, err := t.l2.GetBatch(ctx, missing)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get_batch", "persistent").Inc()
		if t.logger != nil {
			t.logger.Debug("persistent cache batch get failed", zap.Int("keys", len(missing)), zap.Error(err))
		}
		return out, nil
	}
	for k, v := range batch {
		observability.CacheHitsTotal.WithLabelValues("persistent").Inc()
		out[k] = v
		_ = t.l1.Set(ctx, k, v, t.ttl)
	}
	return out, nil
}

// Set writes through to both tiers. A persistent-tier write failure is logged
// and counted but does not fail the call; the L2 upsert is idempotent and a
// later fetch will retry it.
func (t *TwoTier) Set(ctx context.Context, key string, value models.WindSample, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = t.ttl
	}
	_ = t.l1.Set(ctx, key, value, ttl)
	if t.l2 != nil {
		if err := t.l2.Set(ctx, key, value, ttl); err != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", "persistent").Inc()
			if t.logger != nil {
				t.logger.Warn("persistent cache set failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return nil
}
