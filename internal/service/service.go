package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kargig/divemap-sub000/internal/cache"
	"github.com/kargig/divemap-sub000/internal/client"
	"github.com/kargig/divemap-sub000/internal/grid"
	"github.com/kargig/divemap-sub000/internal/models"
	"github.com/kargig/divemap-sub000/internal/observability"
	"github.com/kargig/divemap-sub000/internal/validation"
)

// WindService orchestrates wind lookups over the two-tier cache with bulk-day
// provider fills. Nothing in this service returns an error to its callers:
// every failure mode degrades to "no data for this point".
type WindService struct {
	client    client.WindClient
	cache     cache.Cache
	ttl       time.Duration
	coalescer *dayCoalescer
	logger    *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	nowFn func() time.Time
}

// NewWindService creates a WindService. ttl is the cache entry lifetime
// (default 900s when zero). coalesceTimeout bounds how long a lookup waits on
// another caller's in-flight fetch for the same cell/day.
func NewWindService(c client.WindClient, ca cache.Cache, ttl, coalesceTimeout time.Duration, logger *zap.Logger) *WindService {
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	if coalesceTimeout <= 0 {
		coalesceTimeout = 15 * time.Second
	}
	return &WindService{
		client:    c,
		cache:     ca,
		ttl:       ttl,
		coalescer: newDayCoalescer(coalesceTimeout),
		logger:    logger,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		nowFn:     time.Now,
	}
}

// loggerFromContext extracts a request-scoped zap.Logger from ctx if the
// middleware put one there, falling back to the service logger.
func (s *WindService) loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return s.logger
}

// FetchPoint resolves wind conditions for one coordinate. With Validated
// strictness an out-of-window target time is clamped and logged, never
// rejected; PreValidated skips the check (grid requests validate once up
// front). Returns (zero, false) when no data could be resolved.
func (s *WindService) FetchPoint(ctx context.Context, lat, lon float64, sel models.TimeSelector, strict models.Strictness) (models.WindSample, bool) {
	logger := s.loggerFromContext(ctx)
	if err := validation.ValidateCoords(lat, lon); err != nil {
		if logger != nil {
			logger.Warn("rejecting out-of-range coordinate", zap.Float64("lat", lat), zap.Float64("lon", lon))
		}
		return models.WindSample{}, false
	}
	if strict == models.Validated {
		sel = s.clampSelector(ctx, sel)
	}
	return s.resolve(ctx, lat, lon, sel)
}

// FetchGrid resolves wind conditions over a bounding box. Base points come
// from the zoom-dependent lattice; jitterFactor > 1 multiplies each base point
// into extra nearby markers that share the base point's data. Points are
// grouped by cache key and each distinct key is resolved once; points whose
// key cannot be resolved are dropped from the output.
func (s *WindService) FetchGrid(ctx context.Context, b models.BoundingBox, zoom, jitterFactor int, sel models.TimeSelector) []models.PointResult {
	logger := s.loggerFromContext(ctx)
	if err := validation.ValidateBounds(b.North, b.South, b.East, b.West); err != nil {
		if logger != nil {
			logger.Warn("invalid bounding box",
				zap.Float64("north", b.North), zap.Float64("south", b.South),
				zap.Float64("east", b.East), zap.Float64("west", b.West),
				zap.Error(err))
		}
		return nil
	}
	// Validate the target time once; per-key resolutions run pre-validated so
	// one bad time does not warn per point.
	sel = s.clampSelector(ctx, sel)

	base := grid.Points(b, zoom)
	observability.GridPointsPerRequest.Observe(float64(len(base)))
	if len(base) == 0 {
		return nil
	}

	spacing := grid.SpacingForZoom(zoom)
	points := s.multiplyPoints(base, b, spacing, jitterFactor)

	groups := make(map[string][]models.GridPoint)
	var keyOrder []string
	for _, p := range points {
		k := cache.Key(p.Lat, p.Lon, sel)
		if _, seen := groups[k]; !seen {
			keyOrder = append(keyOrder, k)
		}
		groups[k] = append(groups[k], p)
	}
	observability.GridKeysPerRequest.Observe(float64(len(groups)))

	resolved := s.resolveKeys(ctx, groups, keyOrder, sel)

	results := make([]models.PointResult, 0, len(points))
	for _, p := range points {
		sample, ok := resolved[cache.Key(p.Lat, p.Lon, sel)]
		if !ok {
			continue
		}
		results = append(results, models.PointResult{Lat: p.Lat, Lon: p.Lon, Sample: sample})
	}
	if logger != nil {
		logger.Debug("grid resolved",
			zap.Int("base_points", len(base)),
			zap.Int("total_points", len(points)),
			zap.Int("distinct_keys", len(groups)),
			zap.Int("results", len(results)))
	}
	return results
}

// multiplyPoints appends jitterFactor-1 perturbed copies after each base
// point. Perturbed points that cannot be placed inside the bounds within the
// attempt budget are dropped.
func (s *WindService) multiplyPoints(base []models.GridPoint, b models.BoundingBox, spacing float64, jitterFactor int) []models.GridPoint {
	if jitterFactor <= 1 {
		return base
	}
	points := make([]models.GridPoint, 0, len(base)*jitterFactor)
	for _, p := range base {
		points = append(points, p)
		for i := 1; i < jitterFactor; i++ {
			s.rngMu.Lock()
			jp, ok := grid.Jitter(p, b, spacing, s.rng)
			s.rngMu.Unlock()
			if ok {
				points = append(points, jp)
			}
		}
	}
	return points
}

// resolveKeys resolves each distinct cache key once, concurrently. The first
// point of each group stands in for the whole cell on the provider side.
func (s *WindService) resolveKeys(ctx context.Context, groups map[string][]models.GridPoint, keyOrder []string, sel models.TimeSelector) map[string]models.WindSample {
	resolved := make(map[string]models.WindSample, len(groups))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, k := range keyOrder {
		rep := groups[k][0]
		wg.Add(1)
		go func(key string, p models.GridPoint) {
			defer wg.Done()
			sample, ok := s.resolve(ctx, p.Lat, p.Lon, sel)
			if !ok {
				return
			}
			mu.Lock()
			resolved[key] = sample
			mu.Unlock()
		}(k, rep)
	}
	wg.Wait()
	return resolved
}

// clampSelector clamps a fixed target time into the allowed forecast window,
// logging a warning when a bound was violated. "Now" selectors pass through.
func (s *WindService) clampSelector(ctx context.Context, sel models.TimeSelector) models.TimeSelector {
	if sel.IsNow() {
		return sel
	}
	now := s.nowFn()
	target := sel.Time(now)
	clamped, reason := validation.ClampTargetTime(target, now)
	if reason == nil {
		return sel
	}
	label := "past"
	if reason == validation.ErrTimeTooFar {
		label = "future"
	}
	observability.TimeClampsTotal.WithLabelValues(label).Inc()
	if logger := s.loggerFromContext(ctx); logger != nil {
		logger.Warn("target time clamped",
			zap.Time("requested", target),
			zap.Time("clamped", clamped),
			zap.String("reason", label))
	}
	return models.At(clamped)
}

// resolve answers one cache key: memory tier, persistent tier, then a
// bulk-day provider fill. Before fetching, the representative hours (00:00
// and 12:00) of the target day are checked; if one is cached the day was
// already bulk-filled and the requested hour should have existed, so the
// re-fetch is logged as a cache inconsistency.
func (s *WindService) resolve(ctx context.Context, lat, lon float64, sel models.TimeSelector) (models.WindSample, bool) {
	logger := s.loggerFromContext(ctx)
	now := s.nowFn()
	target := sel.Time(now)
	primaryKey := cache.Key(lat, lon, sel)
	hourKey := cache.KeyAt(lat, lon, target)

	if v, ok, err := s.cache.Get(ctx, primaryKey); err == nil && ok {
		return v, true
	}
	if sel.IsNow() && hourKey != primaryKey {
		// The bulk-day fill writes hourly keys; a current-conditions lookup
		// can reuse this hour's entry after the timeless key lapsed.
		if v, ok, err := s.cache.Get(ctx, hourKey); err == nil && ok {
			_ = s.cache.Set(ctx, primaryKey, v, s.ttl)
			return v, true
		}
	}

	repKeys := cache.RepresentativeKeys(lat, lon, target)
	if batch, err := s.cache.GetBatch(ctx, repKeys); err == nil && len(batch) > 0 {
		observability.CacheInconsistenciesTotal.Inc()
		if logger != nil {
			logger.Warn("cache inconsistency: bulk-cached day missing requested hour",
				zap.String("key", hourKey))
		}
	}

	sample, err := s.fillDay(ctx, lat, lon, target, sel.IsNow())
	if err != nil {
		if logger != nil {
			logger.Debug("point unresolved",
				zap.Float64("lat", lat), zap.Float64("lon", lon),
				zap.String("kind", string(client.Categorize(err))),
				zap.Error(err))
		}
		return models.WindSample{}, false
	}
	return sample, true
}

// fillDay fetches the full 24-hour series for the cell's calendar day in one
// provider round trip (coalesced across concurrent callers) and writes every
// hour into the cache. Returns the sample for the requested hour.
func (s *WindService) fillDay(ctx context.Context, lat, lon float64, target time.Time, alsoTimeless bool) (models.WindSample, error) {
	day := target.UTC().Truncate(24 * time.Hour)
	coalesceKey := cache.KeyAt(lat, lon, day)

	start := time.Now()
	series, coalesced, err := s.coalescer.GetOrDo(ctx, coalesceKey, func() ([]models.WindSample, error) {
		samples, fetchErr := s.client.FetchDay(ctx, lat, lon, day)
		if fetchErr != nil {
			return nil, fetchErr
		}
		observability.BulkDayFetchesTotal.Inc()
		for _, sample := range samples {
			_ = s.cache.Set(ctx, cache.KeyAt(lat, lon, sample.Time), sample, s.ttl)
		}
		return samples, nil
	})
	if err != nil {
		return models.WindSample{}, err
	}
	if coalesced {
		observability.CoalescingHitsTotal.Inc()
	}
	observability.CoalescingWaitSeconds.Observe(time.Since(start).Seconds())

	result := client.ExtractHour(series, target)
	if alsoTimeless {
		_ = s.cache.Set(ctx, cache.Key(lat, lon, models.Now()), result, s.ttl)
	}
	return result, nil
}
