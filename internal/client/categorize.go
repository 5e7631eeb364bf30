package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kargig/divemap-sub000/internal/circuitbreaker"
)

// FailureKind is a stable label for fetch failure classification in metrics.
type FailureKind string

// Failure kind constants used as metric labels (providerCallsTotal).
const (
	FailureTimeout     FailureKind = "timeout"
	FailureConnection  FailureKind = "connection"
	FailureProvider    FailureKind = "provider_error"
	FailureEmptySeries FailureKind = "empty_series"
	FailureBreakerOpen FailureKind = "breaker_open"
	FailureUnknown     FailureKind = "unknown"
)

// Categorize maps a fetch error to a stable FailureKind.
func Categorize(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return FailureBreakerOpen
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTimeout
	}
	if errors.Is(err, ErrEmptySeries) {
		return FailureEmptySeries
	}
	if errors.Is(err, ErrConnection) {
		return FailureConnection
	}
	if errors.Is(err, ErrProvider) {
		return FailureProvider
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return FailureTimeout
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return FailureConnection
	}
	return FailureUnknown
}
