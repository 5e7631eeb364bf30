// Package grid samples bounding boxes into bounded sets of wind query points.
package grid

import (
	"math/rand"

	"github.com/kargig/divemap-sub000/internal/models"
)

// MaxPoints caps the lattice output per request. Larger lattices are
// deterministically down-sampled, never truncated randomly.
const MaxPoints = 100

// marginFraction keeps every generated point strictly interior to its
// bounding box by 10% of the active spacing on each edge.
const marginFraction = 0.1

// jitterAttempts bounds the perturb-until-inside retry loop; a point that
// cannot satisfy bounds after this many attempts is dropped.
const jitterAttempts = 10

// jitterFraction is the maximum perturbation per axis, relative to spacing.
const jitterFraction = 0.4

// SpacingForZoom maps a map zoom level to the lattice spacing in degrees.
// Only these bands are pinned; anything else, including an unset zoom of 0,
// uses the 0.05 default.
func SpacingForZoom(zoom int) float64 {
	switch {
	case zoom >= 18:
		return 0.02
	case zoom == 17:
		return 0.03
	case zoom == 13 || zoom == 14:
		return 0.08
	default:
		return 0.05
	}
}

// Points generates a lattice of grid points strictly inside the bounding box,
// spaced per the zoom band with a margin of 10% of the spacing on every edge.
// Output is capped at MaxPoints via a deterministic stride. Degenerate or
// too-small boxes return an empty slice rather than an error.
func Points(b models.BoundingBox, zoom int) []models.GridPoint {
	spacing := SpacingForZoom(zoom)
	margin := spacing * marginFraction

	latStart := b.South + margin
	latEnd := b.North - margin
	lonStart := b.West + margin
	lonEnd := b.East - margin
	if latStart > latEnd || lonStart > lonEnd {
		return nil
	}

	var points []models.GridPoint
	for lat := latStart; lat <= latEnd; lat += spacing {
		for lon := lonStart; lon <= lonEnd; lon += spacing {
			points = append(points, models.GridPoint{Lat: lat, Lon: lon})
		}
	}
	return downsample(points, MaxPoints)
}

// downsample reduces points to at most max by taking every k-th point, where
// k is the smallest stride that fits. Deterministic for identical input.
func downsample(points []models.GridPoint, max int) []models.GridPoint {
	n := len(points)
	if n <= max {
		return points
	}
	stride := (n + max - 1) / max
	out := make([]models.GridPoint, 0, max)
	for i := 0; i < n; i += stride {
		out = append(out, points[i])
	}
	return out
}

// Jitter perturbs base by up to ±jitterFraction of spacing per axis, retrying
// until the result stays inside the bounding box. Returns ok=false when the
// attempt budget is exhausted.
func Jitter(base models.GridPoint, b models.BoundingBox, spacing float64, rng *rand.Rand) (models.GridPoint, bool) {
	for i := 0; i < jitterAttempts; i++ {
		p := models.GridPoint{
			Lat: base.Lat + (rng.Float64()*2-1)*spacing*jitterFraction,
			Lon: base.Lon + (rng.Float64()*2-1)*spacing*jitterFraction,
		}
		if p.Lat > b.South && p.Lat < b.North && p.Lon > b.West && p.Lon < b.East {
			return p, true
		}
	}
	return models.GridPoint{}, false
}
