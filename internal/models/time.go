package models

import "time"

// TimeSelector picks the forecast hour for a lookup: either "current
// conditions" (Now) or a specific target time (At). The zero value is Now,
// so callers that never set a time get current conditions.
type TimeSelector struct {
	at    time.Time
	fixed bool
}

// Now selects current conditions.
func Now() TimeSelector {
	return TimeSelector{}
}

// At selects a specific target time.
func At(t time.Time) TimeSelector {
	return TimeSelector{at: t, fixed: true}
}

// IsNow reports whether the selector means current conditions.
func (s TimeSelector) IsNow() bool {
	return !s.fixed
}

// Time returns the selected time, resolving Now against the given clock value.
func (s TimeSelector) Time(now time.Time) time.Time {
	if s.fixed {
		return s.at
	}
	return now
}

// Strictness controls whether a lookup re-validates its target time.
// Grid requests validate once up front and run every per-point resolution
// PreValidated so a single out-of-range time does not warn a hundred times.
type Strictness int

const (
	Validated Strictness = iota
	PreValidated
)

func (s Strictness) String() string {
	switch s {
	case Validated:
		return "validated"
	case PreValidated:
		return "pre_validated"
	default:
		return "unknown"
	}
}
