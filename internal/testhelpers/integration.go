//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kargig/divemap-sub000/internal/cache"
	"github.com/kargig/divemap-sub000/internal/client"
	"github.com/kargig/divemap-sub000/internal/observability"
	"github.com/kargig/divemap-sub000/internal/service"
)

// IntegrationConfig holds configuration for integration tests.
type IntegrationConfig struct {
	ForecastURL   string
	MarineURL     string
	CacheBackend  string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless WINDCACHED_INTEGRATION is set; the forecast provider
// is keyless but tests should not hit it by default.
func GetIntegrationConfig(t *testing.T) IntegrationConfig {
	if os.Getenv("WINDCACHED_INTEGRATION") == "" {
		t.Skip("WINDCACHED_INTEGRATION not set, skipping integration test")
	}

	cfg := IntegrationConfig{
		ForecastURL:   os.Getenv("FORECAST_URL"),
		MarineURL:     os.Getenv("MARINE_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
	if cfg.ForecastURL == "" {
		cfg.ForecastURL = "https://api.open-meteo.com/v1/forecast"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// SetupIntegrationService creates a fully configured wind service for
// integration tests. Returns the service, the in-memory tier (for inspecting
// cache state), and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationConfig) (*service.WindService, *cache.InMemoryCache, func()) {
	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	windClient := client.NewOpenMeteoClient(client.Config{
		ForecastURL: cfg.ForecastURL,
		MarineURL:   cfg.MarineURL,
		Timeout:     10 * time.Second,
		Logger:      logger,
	})

	memTier := cache.NewInMemoryCache(0)
	var persistent cache.Cache
	cleanup := func() {}

	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			persistent = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using memcached tier at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), running memory-only", err)
		}
	}

	twoTier := cache.NewTwoTier(memTier, persistent, 900*time.Second, logger)
	svc := service.NewWindService(windClient, twoTier, 900*time.Second, 15*time.Second, logger)
	return svc, memTier, cleanup
}
