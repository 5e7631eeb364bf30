package client

import "errors"

// Failure kinds for provider fetches. The service layer degrades every one of
// these to "no data for this key"; the distinct kinds exist so tests and
// metrics can tell failures apart.
var (
	// ErrTimeout marks a fetch that exceeded the per-call deadline.
	ErrTimeout = errors.New("provider request timeout")

	// ErrConnection marks a transport-level failure before any response.
	ErrConnection = errors.New("provider connection failure")

	// ErrProvider marks a non-2xx provider response or an unparseable body.
	ErrProvider = errors.New("provider error")

	// ErrEmptySeries marks a 200 response whose hourly series is unusable.
	ErrEmptySeries = errors.New("empty hourly series")
)
