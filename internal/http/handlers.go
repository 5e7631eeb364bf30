package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kargig/divemap-sub000/internal/models"
	"github.com/kargig/divemap-sub000/internal/observability"
	"github.com/kargig/divemap-sub000/internal/service"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	windService *service.WindService
	logger      *zap.Logger
	rateLimiter *rate.Limiter
	// CachePing, when set, is called by the health handler to check
	// persistent-tier reachability.
	cachePing func() error
	// BreakerState, when set, reports the forecast breaker state for health.
	breakerState func() string
	startTime    time.Time
}

// NewHandler returns a new Handler. cachePing and breakerState may be nil.
func NewHandler(windService *service.WindService, logger *zap.Logger, rateLimiter *rate.Limiter, cachePing func() error, breakerState func() string) *Handler {
	return &Handler{
		windService:  windService,
		logger:       logger,
		rateLimiter:  rateLimiter,
		cachePing:    cachePing,
		breakerState: breakerState,
		startTime:    time.Now(),
	}
}

// NewRouter builds the service router with middleware applied.
func NewRouter(h *Handler, logger *zap.Logger, requestTimeout time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(logger))
	r.Use(MetricsMiddleware)

	wind := r.PathPrefix("/wind").Subrouter()
	wind.Use(RateLimitMiddleware(h.rateLimiter))
	wind.Use(TimeoutMiddleware(requestTimeout))
	wind.HandleFunc("/point", h.GetWindPoint).Methods(http.MethodGet)
	wind.HandleFunc("/grid", h.GetWindGrid).Methods(http.MethodGet)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)
	return r
}

// GetWindPoint handles GET /wind/point?lat=&lon=&at=.
// at is optional RFC 3339; absent means current conditions.
func (h *Handler) GetWindPoint(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lon are required numbers")
		return
	}
	sel, ok := parseTimeSelector(q.Get("at"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_TIME", "at must be RFC 3339")
		return
	}

	sample, found := h.windService.FetchPoint(r.Context(), lat, lon, sel, models.Validated)
	if !found {
		writeError(w, r, http.StatusNotFound, "NO_DATA", "No wind data available for this point")
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

// GetWindGrid handles GET /wind/grid?north=&south=&east=&west=&zoom=&jitter=&at=.
// Unresolvable points are dropped; the response is always 200 with whatever
// subset resolved.
func (h *Handler) GetWindGrid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	north, nErr := strconv.ParseFloat(q.Get("north"), 64)
	south, sErr := strconv.ParseFloat(q.Get("south"), 64)
	east, eErr := strconv.ParseFloat(q.Get("east"), 64)
	west, wErr := strconv.ParseFloat(q.Get("west"), 64)
	if nErr != nil || sErr != nil || eErr != nil || wErr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BOUNDS", "north, south, east and west are required numbers")
		return
	}
	zoom, _ := strconv.Atoi(q.Get("zoom"))
	jitter, _ := strconv.Atoi(q.Get("jitter"))
	if jitter < 1 {
		jitter = 1
	}
	sel, ok := parseTimeSelector(q.Get("at"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "INVALID_TIME", "at must be RFC 3339")
		return
	}

	bounds := models.BoundingBox{North: north, South: south, East: east, West: west}
	results := h.windService.FetchGrid(r.Context(), bounds, zoom, jitter, sel)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(results),
		"points": results,
	})
}

// GetHealth handles GET /health. Reports persistent-tier reachability and the
// forecast breaker state; an open breaker means the upstream is failing and
// the service is serving from cache only.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if h.breakerState != nil {
		state := h.breakerState()
		checks["forecastProvider"] = state
		if state == "open" {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}
	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["persistentCache"] = "healthy"
		} else {
			checks["persistentCache"] = "unhealthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "windcached",
		"checks":    checks,
		"uptime":    time.Since(h.startTime).Truncate(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// parseTimeSelector parses the optional "at" query parameter. Empty means
// current conditions; anything else must be RFC 3339.
func parseTimeSelector(s string) (models.TimeSelector, bool) {
	if s == "" {
		return models.Now(), true
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return models.TimeSelector{}, false
	}
	return models.At(t), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
