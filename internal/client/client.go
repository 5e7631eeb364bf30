package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kargig/divemap-sub000/internal/circuitbreaker"
	"github.com/kargig/divemap-sub000/internal/models"
	"github.com/kargig/divemap-sub000/internal/observability"
	"github.com/kargig/divemap-sub000/internal/quota"
)

// hourlyTimeFormat is the timestamp layout in Open-Meteo hourly series.
const hourlyTimeFormat = "2006-01-02T15:04"

// WindClient fetches hourly wind data for a coordinate from the forecast
// provider. FetchDay is the bulk-day path: one round trip for a full 24-hour
// series. FetchPoint extracts a single hour, falling back to the first
// available hour when the exact one is missing.
type WindClient interface {
	FetchPoint(ctx context.Context, lat, lon float64, target time.Time) (models.WindSample, error)
	FetchDay(ctx context.Context, lat, lon float64, day time.Time) ([]models.WindSample, error)
}

// Config holds the provider client parameters.
type Config struct {
	ForecastURL    string
	MarineURL      string // empty disables the marine call
	WindSpeedUnit  string // provider unit parameter, e.g. "kn" or "ms"
	Timeout        time.Duration
	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Limiter        *rate.Limiter // optional provider-budget pacing
	Breaker        *circuitbreaker.CircuitBreaker
	Tracker        *quota.Tracker
	Logger         *zap.Logger
}

// OpenMeteoClient implements WindClient against the Open-Meteo forecast and
// marine endpoints. The marine endpoint is consumed defensively: its absence
// or failure never fails a fetch.
type OpenMeteoClient struct {
	cfg    Config
	client *http.Client
}

// NewOpenMeteoClient creates an OpenMeteoClient, applying defaults for unset
// retry and timeout parameters.
func NewOpenMeteoClient(cfg Config) *OpenMeteoClient {
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if cfg.WindSpeedUnit == "" {
		cfg.WindSpeedUnit = "kn"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 12 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	return &OpenMeteoClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// forecastResponse is the hourly payload shape shared by both endpoints;
// unrequested fields decode to empty slices.
type forecastResponse struct {
	Hourly struct {
		Time          []string  `json:"time"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		WindDirection []float64 `json:"wind_direction_10m"`
		WindGusts     []float64 `json:"wind_gusts_10m"`
		WaveHeight    []float64 `json:"wave_height"`
		WavePeriod    []float64 `json:"wave_period"`
	} `json:"hourly"`
}

// FetchDay fetches the full 24-hour wind series for the calendar day (UTC)
// containing day, in a single forecast round trip. Marine data for the same
// day is fetched best-effort and merged by hour when present.
func (c *OpenMeteoClient) FetchDay(ctx context.Context, lat, lon float64, day time.Time) ([]models.WindSample, error) {
	date := day.UTC().Format("2006-01-02")

	forecast, err := c.callForecastWithRetry(ctx, lat, lon, date)
	if err != nil {
		if c.cfg.Tracker != nil {
			c.cfg.Tracker.RecordError()
		}
		return nil, err
	}
	samples := parseHourly(forecast)
	if len(samples) == 0 {
		if c.cfg.Tracker != nil {
			c.cfg.Tracker.RecordError()
		}
		return nil, ErrEmptySeries
	}
	if c.cfg.Tracker != nil {
		c.cfg.Tracker.RecordSuccess()
	}

	c.mergeMarine(ctx, lat, lon, date, samples)
	return samples, nil
}

// FetchPoint fetches the sample for the hour containing target. If the exact
// hour is missing from the returned series, the first available hour is used.
func (c *OpenMeteoClient) FetchPoint(ctx context.Context, lat, lon float64, target time.Time) (models.WindSample, error) {
	samples, err := c.FetchDay(ctx, lat, lon, target)
	if err != nil {
		return models.WindSample{}, err
	}
	return ExtractHour(samples, target), nil
}

// ExtractHour returns the sample matching target's hour, or the first sample
// in the series when the exact hour is absent. Callers guarantee a non-empty
// series.
func ExtractHour(samples []models.WindSample, target time.Time) models.WindSample {
	want := target.UTC().Truncate(time.Hour)
	for _, s := range samples {
		if s.Time.Equal(want) {
			return s
		}
	}
	return samples[0]
}

// callForecastWithRetry runs the forecast call through the rate limiter,
// circuit breaker and retry loop. Only transient failures are retried.
func (c *OpenMeteoClient) callForecastWithRetry(ctx context.Context, lat, lon float64, date string) (*forecastResponse, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.Inc()
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
			case <-time.After(c.backoff(attempt)):
			}
		}

		var resp *forecastResponse
		err := c.breakerCall(ctx, func() error {
			var callErr error
			resp, callErr = c.callForecast(ctx, lat, lon, date)
			return callErr
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenMeteoClient) breakerCall(ctx context.Context, fn func() error) error {
	if c.cfg.Breaker == nil {
		return fn()
	}
	return c.cfg.Breaker.Call(ctx, fn)
}

// callForecast performs one physical forecast request.
func (c *OpenMeteoClient) callForecast(ctx context.Context, lat, lon float64, date string) (*forecastResponse, error) {
	params := url.Values{}
	params.Set("hourly", "wind_speed_10m,wind_direction_10m,wind_gusts_10m")
	params.Set("windspeed_unit", c.cfg.WindSpeedUnit)

	body, err := c.doRequest(ctx, "forecast", c.cfg.ForecastURL, lat, lon, date, params)
	if err != nil {
		return nil, err
	}
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrProvider, err)
	}
	return &resp, nil
}

// mergeMarine fetches wave data for the same cell/day and merges it into the
// samples by hour. Any failure here degrades to wind-only data.
func (c *OpenMeteoClient) mergeMarine(ctx context.Context, lat, lon float64, date string, samples []models.WindSample) {
	if c.cfg.MarineURL == "" {
		return
	}
	params := url.Values{}
	params.Set("hourly", "wave_height,wave_period")

	body, err := c.doRequest(ctx, "marine", c.cfg.MarineURL, lat, lon, date, params)
	if err != nil {
		if c.cfg.Logger != nil {
			c.cfg.Logger.Debug("marine data unavailable", zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Error(err))
		}
		return
	}
	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return
	}

	byHour := make(map[time.Time]int, len(resp.Hourly.Time))
	for i, ts := range resp.Hourly.Time {
		t, err := time.ParseInLocation(hourlyTimeFormat, ts, time.UTC)
		if err != nil {
			continue
		}
		byHour[t] = i
	}
	for i := range samples {
		idx, ok := byHour[samples[i].Time]
		if !ok {
			continue
		}
		if idx < len(resp.Hourly.WaveHeight) {
			samples[i].WaveHeight = resp.Hourly.WaveHeight[idx]
		}
		if idx < len(resp.Hourly.WavePeriod) {
			samples[i].WavePeriod = resp.Hourly.WavePeriod[idx]
		}
	}
}

// doRequest performs one HTTP round trip against a provider endpoint and maps
// transport and status failures to the client's typed errors.
func (c *OpenMeteoClient) doRequest(ctx context.Context, endpoint, baseURL string, lat, lon float64, date string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(reqCtx); err != nil {
			return nil, fmt.Errorf("%w: limiter: %v", ErrTimeout, err)
		}
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrProvider, err)
	}
	params.Set("latitude", fmt.Sprintf("%.4f", lat))
	params.Set("longitude", fmt.Sprintf("%.4f", lon))
	params.Set("start_date", date)
	params.Set("end_date", date)
	params.Set("timezone", "UTC")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrProvider, err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.ProviderCallsTotal.WithLabelValues(endpoint, "error").Inc()
		observability.ProviderCallDuration.WithLabelValues(endpoint, "error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.ProviderCallsTotal.WithLabelValues(endpoint, status).Inc()
	observability.ProviderCallDuration.WithLabelValues(endpoint, status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %v", ErrConnection, err)
	}
	return body, nil
}

// parseHourly flattens the provider's parallel hourly arrays into samples,
// skipping rows with unparseable timestamps.
func parseHourly(resp *forecastResponse) []models.WindSample {
	h := resp.Hourly
	samples := make([]models.WindSample, 0, len(h.Time))
	for i, ts := range h.Time {
		t, err := time.ParseInLocation(hourlyTimeFormat, ts, time.UTC)
		if err != nil {
			continue
		}
		s := models.WindSample{Time: t}
		if i < len(h.WindSpeed) {
			s.Speed = h.WindSpeed[i]
		}
		if i < len(h.WindDirection) {
			s.Direction = h.WindDirection[i]
		}
		if i < len(h.WindGusts) {
			s.Gusts = h.WindGusts[i]
		}
		samples = append(samples, s)
	}
	return samples
}

// isRetryable reports whether a failure is worth another attempt. Provider
// errors retry only on 429/5xx; an open breaker and empty series do not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, ErrEmptySeries) {
		return false
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection) {
		return true
	}
	if errors.Is(err, ErrProvider) {
		var code int
		if _, scanErr := fmt.Sscanf(err.Error(), "provider error: HTTP %d", &code); scanErr == nil {
			return code == http.StatusTooManyRequests || code >= 500
		}
	}
	return false
}

func (c *OpenMeteoClient) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.cfg.RetryMaxDelay) {
		delay = float64(c.cfg.RetryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
