package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kargig/divemap-sub000/internal/cache"
	"github.com/kargig/divemap-sub000/internal/circuitbreaker"
	"github.com/kargig/divemap-sub000/internal/client"
	"github.com/kargig/divemap-sub000/internal/config"
	httphandler "github.com/kargig/divemap-sub000/internal/http"
	"github.com/kargig/divemap-sub000/internal/observability"
	"github.com/kargig/divemap-sub000/internal/quota"
	"github.com/kargig/divemap-sub000/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	tracker := quota.NewTracker()
	observability.RegisterProviderWindowGauges(tracker, cfg.ProviderWindow)

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		SuccessThreshold: cfg.BreakerSuccessThreshold,
		Cooldown:         cfg.BreakerCooldown,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
			logger.Warn("forecast breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	windClient := client.NewOpenMeteoClient(client.Config{
		ForecastURL:    cfg.ForecastURL,
		MarineURL:      cfg.MarineURL,
		WindSpeedUnit:  cfg.WindSpeedUnit,
		Timeout:        cfg.ProviderTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
		RetryMaxDelay:  cfg.RetryMaxDelay,
		Limiter:        rate.NewLimiter(rate.Limit(cfg.ProviderRPS), cfg.ProviderBurst),
		Breaker:        breaker,
		Tracker:        tracker,
		Logger:         logger,
	})

	memTier := cache.NewInMemoryCache(cfg.CacheMaxEntries)
	var persistent cache.Cache
	var cachePing func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		defer func() { _ = mc.Close() }()
		persistent = mc
		cachePing = mc.Ping
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc, err := cache.NewRedisCache(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("redis cache", zap.Error(err))
		}
		defer func() { _ = rc.Close() }()
		persistent = rc
		cachePing = func() error { return rc.Ping(context.Background()) }
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		logger.Info("cache backend: in_memory only")
	}
	twoTier := cache.NewTwoTier(memTier, persistent, cfg.CacheTTL, logger)

	windService := service.NewWindService(windClient, twoTier, cfg.CacheTTL, cfg.CoalesceTimeout, logger)

	// Startup probe against a fixed coordinate; a failure is logged, not
	// fatal: the service can still serve from the persistent tier.
	probeCtx, probeCancel := context.WithTimeout(context.Background(), cfg.ProviderTimeout)
	if _, err := windClient.FetchPoint(probeCtx, 37.9, 23.7, time.Now()); err != nil {
		logger.Warn("startup provider probe failed", zap.Error(err))
	}
	probeCancel()

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	handler := httphandler.NewHandler(windService, logger, limiter, cachePing, func() string { return breaker.State().String() })
	router := httphandler.NewRouter(handler, logger, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	if inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		waitCancel()
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
