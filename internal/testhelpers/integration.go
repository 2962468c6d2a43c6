//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/client"
	"github.com/kjstillabower/skyweather/internal/dashboard"
	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/search"
	"github.com/kjstillabower/skyweather/internal/state"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if OPENWEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiKey := os.Getenv("OPENWEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIKey:        apiKey,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationDashboard wires the live providers into a dashboard backed by
// in-memory persistence. Returns the dashboard, the query cache, and a cleanup function.
func SetupIntegrationDashboard(t *testing.T, cfg IntegrationTestConfig) (*dashboard.Dashboard, cache.Cache, func()) {
	t.Helper()
	opts := client.Options{Timeout: 5 * time.Second}

	weather, err := client.NewWeatherClient(cfg.APIKey, opts)
	if err != nil {
		t.Fatalf("NewWeatherClient() error = %v", err)
	}
	forecast, err := client.NewForecastClient(opts)
	if err != nil {
		t.Fatalf("NewForecastClient() error = %v", err)
	}
	geocoder, err := client.NewGeocodingClient(opts)
	if err != nil {
		t.Fatalf("NewGeocodingClient() error = %v", err)
	}

	var cacheSvc cache.Cache
	cleanup := func() {}
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			cacheSvc = mc
			cleanup = func() { _ = mc.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
		}
	}
	if cacheSvc == nil {
		cacheSvc = cache.NewInMemoryCache()
	}

	logger := zap.NewNop()
	st := state.New(kvstore.New(kvstore.NewMemoryBackend(), logger), state.Options{Logger: logger})
	queries := query.NewQueries(weather, forecast, cacheSvc, query.Config{}, logger)
	sc := search.NewController(geocoder, st, search.Options{Logger: logger})
	d := dashboard.New(st, queries, sc, weather, logger)

	return d, cacheSvc, func() {
		d.Close()
		cleanup()
	}
}
