package models

import "time"

// WindSample is one hour of wind conditions at a grid cell. Immutable once
// produced by the provider client; cached and replicated as-is.
type WindSample struct {
	Speed      float64   `json:"windSpeed"`
	Direction  float64   `json:"windDirection"`
	Gusts      float64   `json:"windGusts"`
	WaveHeight float64   `json:"waveHeight,omitempty"`
	WavePeriod float64   `json:"wavePeriod,omitempty"`
	Time       time.Time `json:"timestamp"`
}

// GridPoint is a sampled coordinate inside a bounding box. Generated per
// request, never persisted.
type GridPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// BoundingBox is a geographic query area. North must be greater than South;
// east/west wrap handling is the caller's responsibility.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// PointResult is one row of a grid response: a point and its resolved sample.
type PointResult struct {
	Lat    float64    `json:"lat"`
	Lon    float64    `json:"lon"`
	Sample WindSample `json:"sample"`
}
