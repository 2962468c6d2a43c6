package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/client"
	"github.com/kjstillabower/skyweather/internal/config"
	"github.com/kjstillabower/skyweather/internal/dashboard"
	httphandler "github.com/kjstillabower/skyweather/internal/http"
	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/observability"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/search"
	"github.com/kjstillabower/skyweather/internal/state"
	"github.com/kjstillabower/skyweather/internal/traffic"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	bootLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal("config", zap.Error(err))
	}

	logger, err := observability.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		bootLogger.Fatal("logger", zap.Error(err))
	}
	_ = bootLogger.Sync()
	defer func() { _ = logger.Sync() }()

	checks := map[string]func(ctx context.Context) error{}

	backend, err := openStorage(context.Background(), cfg)
	if err != nil {
		logger.Fatal("storage backend", zap.Error(err), zap.String("backend", cfg.StorageBackend))
	}
	if p, ok := backend.(interface{ Ping(context.Context) error }); ok {
		checks["storage"] = p.Ping
	}
	logger.Info("storage backend", zap.String("backend", cfg.StorageBackend))

	cacheSvc, err := openCache(cfg)
	if err != nil {
		logger.Fatal("memcached cache", zap.Error(err))
	}
	if mc, ok := cacheSvc.(*cache.MemcachedCache); ok {
		checks["cache"] = func(context.Context) error { return mc.Ping() }
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	} else {
		logger.Info("cache backend: in_memory")
	}

	upstream := traffic.NewTracker(cfg.UpstreamWindow, nil)
	checks["upstream"] = upstream.Probe(cfg.UpstreamWindow, cfg.UpstreamMinSamples, cfg.UpstreamErrorPct)

	weatherClient, err := client.NewWeatherClient(cfg.OpenWeatherAPIKey, clientOptions(cfg, upstream, cfg.OpenWeatherURL, cfg.OpenWeatherTimeout))
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	forecastClient, err := client.NewForecastClient(clientOptions(cfg, upstream, cfg.OpenMeteoURL, cfg.OpenMeteoTimeout))
	if err != nil {
		logger.Fatal("forecast client", zap.Error(err))
	}
	geocodingClient, err := client.NewGeocodingClient(clientOptions(cfg, upstream, cfg.GeocodingURL, cfg.GeocodingTimeout))
	if err != nil {
		logger.Fatal("geocoding client", zap.Error(err))
	}

	validateCtx, validateCancel := context.WithTimeout(context.Background(), cfg.OpenWeatherTimeout)
	logAPIKeyCheck(logger, weatherClient.ValidateAPIKey(validateCtx))
	validateCancel()

	kv := kvstore.New(backend, logger)
	st := state.New(kv, state.Options{
		ColorScheme: state.StaticColorScheme(cfg.PrefersDark),
		Logger:      logger,
	})
	queries := query.NewQueries(weatherClient, forecastClient, cacheSvc, query.Config{
		TTLs:         queryTTLs(cfg.QueryTTLs),
		FetchTimeout: cfg.QueryFetchTimeout,
	}, logger)
	searchCtl := search.NewController(geocodingClient, st, search.Options{
		Debounce:  cfg.SearchDebounce,
		MinLength: cfg.SearchMinLength,
		Timeout:   cfg.SearchTimeout,
		Logger:    logger,
	})
	dash := dashboard.New(st, queries, searchCtl, weatherClient, logger)

	handler := httphandler.NewHandler(dash, &httphandler.HealthConfig{
		Version:   version,
		StartTime: time.Now(),
		Checks:    checks,
	}, logger, cfg.SearchMaxQueryLength)

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, logger, httphandler.RouterConfig{
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.SetDraining(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	dash.Close()

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if c, ok := backend.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("storage close", zap.Error(err))
		}
	}
	if c, ok := cacheSvc.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Error("cache close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// openStorage builds the persistence backend named by cfg.StorageBackend.
func openStorage(ctx context.Context, cfg *config.Config) (kvstore.Backend, error) {
	switch cfg.StorageBackend {
	case "memory":
		return kvstore.NewMemoryBackend(), nil
	case "sqlite":
		return kvstore.NewSQLiteBackend(cfg.SQLitePath)
	case "redis":
		return kvstore.NewRedisBackend(ctx, kvstore.RedisConfig{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		})
	case "file":
		return kvstore.NewFileBackend(cfg.StorageFile)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// openCache builds the query cache named by cfg.CacheBackend.
func openCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.CacheBackend == "memcached" {
		return cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
	}
	return cache.NewInMemoryCache(), nil
}

// logAPIKeyCheck reports a rejected OpenWeatherMap key. Open-Meteo endpoints keep working.
func logAPIKeyCheck(logger *zap.Logger, err error) {
	if err == nil {
		return
	}
	logger.Warn("OpenWeatherMap API key check failed; current weather, hourly forecast and air quality will report errors", zap.Error(err))
}

func clientOptions(cfg *config.Config, outcomes client.OutcomeRecorder, baseURL string, timeout time.Duration) client.Options {
	return client.Options{
		BaseURL:         baseURL,
		Timeout:         timeout,
		RetryAttempts:   cfg.RetryAttempts,
		RetryBaseDelay:  cfg.RetryBaseDelay,
		RetryMaxDelay:   cfg.RetryMaxDelay,
		BreakerFailures: cfg.BreakerFailures,
		BreakerTimeout:  cfg.BreakerTimeout,
		Outcomes:        outcomes,
	}
}

func queryTTLs(byName map[string]time.Duration) map[query.Endpoint]time.Duration {
	ttls := make(map[query.Endpoint]time.Duration, len(byName))
	for name, d := range byName {
		if e := query.Endpoint(name); e.Valid() {
			ttls[e] = d
		}
	}
	return ttls
}
