package cache

import (
	"fmt"
	"math"
	"time"

	"github.com/kargig/divemap-sub000/internal/models"
)

// hourKeyFormat renders the hour component of a cache key. Keys are truncated
// to the hour, so the minute field is a literal.
const hourKeyFormat = "2006-01-02T15:00"

// QuantizeCoord rounds a coordinate to the nearest 0.1 degree. All points in
// the same 0.1-degree cell share cache entries.
func QuantizeCoord(v float64) float64 {
	return math.Round(v*10) / 10
}

// Key derives the cache key for a coordinate and time selector. Current
// conditions use a timeless key, so "what is the wind now" stays a cache hit
// across the whole TTL instead of expiring at each hour boundary.
func Key(lat, lon float64, sel models.TimeSelector) string {
	if sel.IsNow() {
		return fmt.Sprintf("%.1f,%.1f", QuantizeCoord(lat), QuantizeCoord(lon))
	}
	return KeyAt(lat, lon, sel.Time(time.Time{}))
}

// KeyAt derives the hourly cache key for a coordinate and target time. The
// time is rendered in UTC truncated to the hour.
func KeyAt(lat, lon float64, t time.Time) string {
	return fmt.Sprintf("%.1f,%.1f@%s",
		QuantizeCoord(lat), QuantizeCoord(lon),
		t.UTC().Truncate(time.Hour).Format(hourKeyFormat))
}

// RepresentativeKeys returns the anchor-hour keys (00:00 and 12:00 UTC) for
// the day containing target. A bulk-day fill always writes these, so their
// presence implies the day was cached and any missing sibling hour is an
// inconsistency.
func RepresentativeKeys(lat, lon float64, target time.Time) []string {
	day := target.UTC().Truncate(24 * time.Hour)
	return []string{
		KeyAt(lat, lon, day),
		KeyAt(lat, lon, day.Add(12*time.Hour)),
	}
}

// DayKeys returns the 24 hourly keys for the day containing target, midnight
// first.
func DayKeys(lat, lon float64, target time.Time) []string {
	day := target.UTC().Truncate(24 * time.Hour)
	keys := make([]string, 0, 24)
	for h := 0; h < 24; h++ {
		keys = append(keys, KeyAt(lat, lon, day.Add(time.Duration(h)*time.Hour)))
	}
	return keys
}
