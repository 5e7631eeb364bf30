package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kargig/divemap-sub000/internal/quota"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Forecast/marine API call rate per endpoint. Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Provider latency per call. Watch for: p95 > 2s (upstream degradation), p99 near the call timeout.
	ProviderCallDuration *prometheus.HistogramVec

	// Retry attempts for provider calls. Watch for: high retries = unstable upstream.
	ProviderRetriesTotal prometheus.Counter

	// Cache hits per tier (memory, persistent).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend failures per operation and tier. These degrade to misses, never errors.
	CacheErrorsTotal *prometheus.CounterVec

	// Evictions from the in-memory tier (expired, overflow).
	CacheEvictionsTotal *prometheus.CounterVec

	// Bulk-day fills: one provider round trip populating 24 hourly entries.
	BulkDayFetchesTotal prometheus.Counter

	// Representative-hour repair firing: a bulk-cached day was missing an hour it should have had.
	CacheInconsistenciesTotal prometheus.Counter

	// Lookups that waited on an in-flight fetch for the same key instead of issuing their own.
	CoalescingHitsTotal prometheus.Counter

	// Time spent waiting on a coalesced fetch.
	CoalescingWaitSeconds prometheus.Histogram

	// Grid points generated per area request, after capping.
	GridPointsPerRequest prometheus.Histogram

	// Distinct cache keys per area request; the fan-out actually resolved.
	GridKeysPerRequest prometheus.Histogram

	// Target times clamped into the allowed window. Watch for: clients asking too far ahead.
	TimeClampsTotal *prometheus.CounterVec

	// Rate limit denials on the HTTP surface.
	RateLimitDeniedTotal prometheus.Counter

	// Circuit breaker transitions for the forecast provider.
	BreakerTransitionsTotal *prometheus.CounterVec

	providerGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of forecast/marine provider calls",
		},
		[]string{"endpoint", "status"},
	)
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerCallDurationSeconds",
			Help:    "Provider call latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "status"},
	)
	ProviderRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "providerRetriesTotal",
			Help: "Total number of retry attempts for provider calls",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits per tier",
		},
		[]string{"tier"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend failures per operation and tier (degraded to misses)",
		},
		[]string{"operation", "tier"},
	)
	CacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheEvictionsTotal",
			Help: "Entries evicted from the in-memory tier (expired, overflow)",
		},
		[]string{"reason"},
	)
	BulkDayFetchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bulkDayFetchesTotal",
			Help: "Bulk-day fills: one provider round trip populating 24 hourly entries",
		},
	)
	CacheInconsistenciesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheInconsistenciesTotal",
			Help: "Representative-hour repairs: bulk-cached day missing an expected hour",
		},
	)
	CoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coalescingHitsTotal",
			Help: "Lookups served by waiting on an in-flight fetch for the same key",
		},
	)
	CoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced fetch",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10},
		},
	)
	GridPointsPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridPointsPerRequest",
			Help:    "Grid points generated per area request, after capping",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)
	GridKeysPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gridKeysPerRequest",
			Help:    "Distinct cache keys resolved per area request",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		},
	)
	TimeClampsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "timeClampsTotal",
			Help: "Target times clamped into the allowed forecast window",
		},
		[]string{"reason"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	BreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "breakerTransitionsTotal",
			Help: "Circuit breaker state transitions for the forecast provider",
		},
		[]string{"from", "to"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderCallDuration, ProviderRetriesTotal,
		CacheHitsTotal, CacheErrorsTotal, CacheEvictionsTotal,
		BulkDayFetchesTotal, CacheInconsistenciesTotal,
		CoalescingHitsTotal, CoalescingWaitSeconds,
		GridPointsPerRequest, GridKeysPerRequest,
		TimeClampsTotal, RateLimitDeniedTotal, BreakerTransitionsTotal,
	)
}

// RegisterProviderWindowGauges registers sliding-window gauges over provider
// call outcomes. Call from main after config load with the configured window.
func RegisterProviderWindowGauges(tracker *quota.Tracker, window time.Duration) {
	providerGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "providerCallsInWindow",
					Help: "Provider calls in the sliding window; budget/capacity planning",
				},
				func() float64 { return float64(tracker.CallCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "providerErrorsInWindow",
					Help: "Failed provider calls in the sliding window; is the upstream healthy",
				},
				func() float64 {
					errs, _ := tracker.ErrorRate(window)
					return float64(errs)
				},
			),
		)
	})
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
