package validation

import (
	"errors"
	"time"
)

// ErrInvalidBounds is returned when a bounding box has north <= south.
var ErrInvalidBounds = errors.New("invalid bounding box")

// ErrOutOfRange is returned when a coordinate is outside valid lat/lon ranges.
var ErrOutOfRange = errors.New("coordinate out of range")

// ErrTimeTooFar marks a target time beyond the forecast horizon. Callers clamp
// and log; it is never surfaced as a hard failure.
var ErrTimeTooFar = errors.New("target time beyond forecast horizon")

// ErrTimeInPast marks a target time before the allowed lookback.
var ErrTimeInPast = errors.New("target time in the past")

// ForecastHorizon is how far ahead a target time may reach before clamping.
const ForecastHorizon = 48 * time.Hour

// PastTolerance is how far back a target time may reach before clamping.
const PastTolerance = time.Hour

// ValidateCoords checks that lat/lon are within valid geographic ranges.
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return ErrOutOfRange
	}
	return nil
}

// ValidateBounds checks the bounding box invariant north > south and that all
// edges are within geographic ranges. East/west date-line wrap is the caller's
// responsibility and is not rejected here.
func ValidateBounds(north, south, east, west float64) error {
	if north <= south {
		return ErrInvalidBounds
	}
	if err := ValidateCoords(north, west); err != nil {
		return err
	}
	return ValidateCoords(south, east)
}

// ClampTargetTime clamps t into [now - PastTolerance, ceilHour(now + ForecastHorizon)].
// Returns the clamped time and a sentinel error naming the violated bound, or
// (t, nil) when t is already inside the window. Callers log the sentinel as a
// warning and proceed with the clamped value; it is not a hard error.
func ClampTargetTime(t, now time.Time) (time.Time, error) {
	max := ceilHour(now.Add(ForecastHorizon))
	if t.After(max) {
		return max, ErrTimeTooFar
	}
	min := now.Add(-PastTolerance)
	if t.Before(min) {
		return min, ErrTimeInPast
	}
	return t, nil
}

// ceilHour rounds up to the next full hour; exact hours are unchanged.
func ceilHour(t time.Time) time.Time {
	truncated := t.Truncate(time.Hour)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Hour)
}
