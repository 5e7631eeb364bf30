package service

import (
	"context"
	"sync"
	"time"

	"github.com/kargig/divemap-sub000/internal/models"
)

// inFlightFetch tracks a single bulk-day provider fetch that multiple lookups
// may wait for.
type inFlightFetch struct {
	mu      sync.Mutex
	series  []models.WindSample
	err     error
	done    bool
	waiters []chan struct{}
}

// dayCoalescer collapses concurrent bulk-day fetches for the same grid
// cell/day into one provider round trip. Lookups for different hours of the
// same day share the fetched series and extract their own hour from it.
type dayCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*inFlightFetch
	timeout  time.Duration
}

func newDayCoalescer(timeout time.Duration) *dayCoalescer {
	return &dayCoalescer{
		inFlight: make(map[string]*inFlightFetch),
		timeout:  timeout,
	}
}

// GetOrDo returns the result of an in-flight fetch for key if one exists,
// otherwise runs fn and registers it. The second return value reports whether
// this call waited on another caller's fetch. Respects context cancellation
// and the coalescer timeout.
func (dc *dayCoalescer) GetOrDo(ctx context.Context, key string, fn func() ([]models.WindSample, error)) ([]models.WindSample, bool, error) {
	dc.mu.Lock()
	req, exists := dc.inFlight[key]
	if exists {
		notify := make(chan struct{})
		req.mu.Lock()
		if req.done {
			series, err := req.series, req.err
			req.mu.Unlock()
			dc.mu.Unlock()
			return series, true, err
		}
		req.waiters = append(req.waiters, notify)
		req.mu.Unlock()
		dc.mu.Unlock()
		return dc.wait(ctx, req, notify, true)
	}

	req = &inFlightFetch{waiters: make([]chan struct{}, 0)}
	dc.inFlight[key] = req
	dc.mu.Unlock()

	go func() {
		series, err := fn()

		req.mu.Lock()
		req.series = series
		req.err = err
		req.done = true
		waiters := req.waiters
		req.waiters = nil
		req.mu.Unlock()

		for _, notify := range waiters {
			close(notify)
		}

		dc.mu.Lock()
		delete(dc.inFlight, key)
		dc.mu.Unlock()
	}()

	notify := make(chan struct{})
	req.mu.Lock()
	if req.done {
		series, err := req.series, req.err
		req.mu.Unlock()
		return series, false, err
	}
	req.waiters = append(req.waiters, notify)
	req.mu.Unlock()
	return dc.wait(ctx, req, notify, false)
}

// wait blocks until the in-flight fetch completes, ctx is cancelled, or the
// coalescer timeout elapses.
func (dc *dayCoalescer) wait(ctx context.Context, req *inFlightFetch, notify chan struct{}, coalesced bool) ([]models.WindSample, bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, dc.timeout)
	defer cancel()
	select {
	case <-notify:
		req.mu.Lock()
		series, err := req.series, req.err
		req.mu.Unlock()
		return series, coalesced, err
	case <-waitCtx.Done():
		return nil, coalesced, waitCtx.Err()
	}
}
