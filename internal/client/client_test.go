package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kargig/divemap-sub000/internal/models"
)

// hourlyPayload builds an Open-Meteo style hourly response for one UTC day
// with hours hourly timestamps and constant per-field values.
func hourlyPayload(date string, hours int, speed, direction, gusts float64) string {
	type hourly struct {
		Time          []string  `json:"time"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		WindDirection []float64 `json:"wind_direction_10m"`
		WindGusts     []float64 `json:"wind_gusts_10m"`
	}
	var h hourly
	for i := 0; i < hours; i++ {
		h.Time = append(h.Time, fmt.Sprintf("%sT%02d:00", date, i))
		h.WindSpeed = append(h.WindSpeed, speed)
		h.WindDirection = append(h.WindDirection, direction)
		h.WindGusts = append(h.WindGusts, gusts)
	}
	body, _ := json.Marshal(map[string]any{"hourly": h})
	return string(body)
}

// TestFetchDay_FullSeries verifies that a single forecast round trip yields
// the full 24-hour series with parsed UTC timestamps, and that the request
// carries the expected query parameters.
func TestFetchDay_FullSeries(t *testing.T) {
	day := time.Date(2025, 6, 10, 9, 30, 0, 0, time.UTC)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		q := r.URL.Query()
		if got := q.Get("windspeed_unit"); got != "kn" {
			t.Errorf("windspeed_unit = %q, want kn", got)
		}
		if q.Get("start_date") != "2025-06-10" || q.Get("end_date") != "2025-06-10" {
			t.Errorf("date range = %q..%q, want single day 2025-06-10", q.Get("start_date"), q.Get("end_date"))
		}
		if got := q.Get("timezone"); got != "UTC" {
			t.Errorf("timezone = %q, want UTC", got)
		}
		fmt.Fprint(w, hourlyPayload("2025-06-10", 24, 5.5, 180, 8.2))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: srv.URL})
	samples, err := c.FetchDay(context.Background(), 37.75, 24.05, day)
	if err != nil {
		t.Fatalf("FetchDay() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
	if len(samples) != 24 {
		t.Fatalf("len(samples) = %d, want 24", len(samples))
	}
	first := samples[0]
	if !first.Time.Equal(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first sample time = %v, want midnight UTC", first.Time)
	}
	if first.Speed != 5.5 || first.Direction != 180 || first.Gusts != 8.2 {
		t.Errorf("first sample = %+v, want speed 5.5 dir 180 gusts 8.2", first)
	}
}

// TestFetchPoint_ExactHour verifies that the sample for the target hour is
// extracted from the day series.
func TestFetchPoint_ExactHour(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyPayload("2025-06-10", 24, 5.5, 90, 7.0))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: srv.URL})
	target := time.Date(2025, 6, 10, 14, 20, 0, 0, time.UTC)
	sample, err := c.FetchPoint(context.Background(), 37.9, 23.7, target)
	if err != nil {
		t.Fatalf("FetchPoint() error = %v", err)
	}
	if sample.Speed != 5.5 {
		t.Errorf("Speed = %v, want 5.5", sample.Speed)
	}
	if !sample.Time.Equal(target.Truncate(time.Hour)) {
		t.Errorf("Time = %v, want %v", sample.Time, target.Truncate(time.Hour))
	}
}

// TestExtractHour_FallbackToFirst verifies that a target hour missing from the
// series degrades to the first available sample.
func TestExtractHour_FallbackToFirst(t *testing.T) {
	samples := []models.WindSample{
		{Time: time.Date(2025, 6, 10, 6, 0, 0, 0, time.UTC), Speed: 3.1},
		{Time: time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC), Speed: 4.2},
	}
	got := ExtractHour(samples, time.Date(2025, 6, 10, 22, 0, 0, 0, time.UTC))
	if got.Speed != 3.1 {
		t.Errorf("ExtractHour() fell back to %+v, want first sample (Speed 3.1)", got)
	}

	got = ExtractHour(samples, time.Date(2025, 6, 10, 7, 45, 0, 0, time.UTC))
	if got.Speed != 4.2 {
		t.Errorf("ExtractHour() = %+v, want exact-hour sample (Speed 4.2)", got)
	}
}

// TestFetchDay_ClientErrorNotRetried verifies that a 4xx response fails fast
// as a provider error without burning retries.
func TestFetchDay_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: srv.URL, RetryAttempts: 3})
	_, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Now())
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no retry on 4xx)", calls)
	}
}

// TestFetchDay_ServerErrorRetried verifies that 5xx responses are retried up
// to the configured attempt budget.
func TestFetchDay_ServerErrorRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{
		ForecastURL:    srv.URL,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	})
	_, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Now())
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("error = %v, want ErrProvider", err)
	}
	if calls != 3 {
		t.Errorf("provider calls = %d, want 3", calls)
	}
}

// TestFetchDay_RecoversAfterTransientFailure verifies that a retry after a
// 5xx succeeds and returns the series.
func TestFetchDay_RecoversAfterTransientFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, hourlyPayload("2025-06-10", 24, 6.0, 45, 9.0))
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{
		ForecastURL:    srv.URL,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
		RetryMaxDelay:  2 * time.Millisecond,
	})
	samples, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("provider calls = %d, want 2", calls)
	}
	if len(samples) != 24 {
		t.Errorf("len(samples) = %d, want 24", len(samples))
	}
}

// TestFetchDay_EmptySeries verifies that a 200 response with no usable hourly
// rows surfaces as ErrEmptySeries without retrying.
func TestFetchDay_EmptySeries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"hourly":{"time":[],"wind_speed_10m":[]}}`)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: srv.URL, RetryAttempts: 3})
	_, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Now())
	if !errors.Is(err, ErrEmptySeries) {
		t.Fatalf("error = %v, want ErrEmptySeries", err)
	}
	if calls != 1 {
		t.Errorf("provider calls = %d, want 1", calls)
	}
}

// TestFetchDay_Timeout verifies that a provider hanging past the deadline
// maps to ErrTimeout.
func TestFetchDay_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewOpenMeteoClient(Config{
		ForecastURL:   srv.URL,
		Timeout:       30 * time.Millisecond,
		RetryAttempts: 1,
	})
	_, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Now())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

// TestFetchDay_MarineMerge verifies that wave data for matching hours is
// merged into the wind series.
func TestFetchDay_MarineMerge(t *testing.T) {
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyPayload("2025-06-10", 3, 5.0, 270, 7.5))
	}))
	defer forecast.Close()
	marine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("hourly"); got != "wave_height,wave_period" {
			t.Errorf("marine hourly = %q, want wave fields", got)
		}
		fmt.Fprint(w, `{"hourly":{
			"time":["2025-06-10T00:00","2025-06-10T01:00","2025-06-10T02:00"],
			"wave_height":[0.5,0.6,0.7],
			"wave_period":[4.0,4.1,4.2]}}`)
	}))
	defer marine.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: forecast.URL, MarineURL: marine.URL})
	samples, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay() error = %v", err)
	}
	if samples[1].WaveHeight != 0.6 || samples[1].WavePeriod != 4.1 {
		t.Errorf("sample 1 waves = (%v, %v), want (0.6, 4.1)", samples[1].WaveHeight, samples[1].WavePeriod)
	}
}

// TestFetchDay_MarineFailureTolerated verifies that a failing marine endpoint
// still yields wind-only data.
func TestFetchDay_MarineFailureTolerated(t *testing.T) {
	forecast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, hourlyPayload("2025-06-10", 24, 5.0, 270, 7.5))
	}))
	defer forecast.Close()
	marine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer marine.Close()

	c := NewOpenMeteoClient(Config{ForecastURL: forecast.URL, MarineURL: marine.URL})
	samples, err := c.FetchDay(context.Background(), 37.9, 23.7, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchDay() error = %v, want wind-only success", err)
	}
	if len(samples) != 24 {
		t.Fatalf("len(samples) = %d, want 24", len(samples))
	}
	if samples[0].WaveHeight != 0 {
		t.Errorf("WaveHeight = %v, want 0 when marine data is unavailable", samples[0].WaveHeight)
	}
}

// TestIsRetryable covers the retry classification across failure kinds.
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", fmt.Errorf("%w: deadline", ErrTimeout), true},
		{"connection", fmt.Errorf("%w: refused", ErrConnection), true},
		{"rate limited", fmt.Errorf("%w: HTTP 429", ErrProvider), true},
		{"server error", fmt.Errorf("%w: HTTP 502", ErrProvider), true},
		{"client error", fmt.Errorf("%w: HTTP 404", ErrProvider), false},
		{"empty series", ErrEmptySeries, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryable(tt.err); got != tt.want {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
