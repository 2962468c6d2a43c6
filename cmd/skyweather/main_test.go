package main

import (
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/config"
	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/traffic"
)

func TestOpenStorage_Backends(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{StorageBackend: "memory"}},
		{"file", config.Config{StorageBackend: "file", StorageFile: filepath.Join(dir, "nested", "state.json")}},
		{"sqlite", config.Config{StorageBackend: "sqlite", SQLitePath: filepath.Join(dir, "nested", "state.db")}},
		{"redis", config.Config{StorageBackend: "redis", RedisAddr: mr.Addr()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := openStorage(t.Context(), &tt.cfg)
			require.NoError(t, err)
			if c, ok := backend.(io.Closer); ok {
				t.Cleanup(func() { _ = c.Close() })
			}

			require.NoError(t, backend.Set(t.Context(), kvstore.KeyTheme, []byte(`"dark"`)))
			got, ok, err := backend.Get(t.Context(), kvstore.KeyTheme)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `"dark"`, string(got))
		})
	}
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	_, err := openStorage(t.Context(), &config.Config{StorageBackend: "s3"})
	assert.Error(t, err)
}

func TestOpenStorage_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := openStorage(t.Context(), &config.Config{StorageBackend: "redis", RedisAddr: addr})
	assert.Error(t, err)
}

func TestOpenCache_InMemoryByDefault(t *testing.T) {
	c, err := openCache(&config.Config{CacheBackend: "in_memory"})
	require.NoError(t, err)
	assert.IsType(t, &cache.InMemoryCache{}, c)
}

func TestClientOptions_CarriesReliabilitySettings(t *testing.T) {
	cfg := &config.Config{
		RetryAttempts:   4,
		RetryBaseDelay:  50 * time.Millisecond,
		RetryMaxDelay:   time.Second,
		BreakerFailures: 7,
		BreakerTimeout:  time.Minute,
	}

	tracker := traffic.NewTracker(0, nil)
	opts := clientOptions(cfg, tracker, "http://upstream.local", 3*time.Second)

	assert.Equal(t, "http://upstream.local", opts.BaseURL)
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.Equal(t, 4, opts.RetryAttempts)
	assert.Equal(t, 50*time.Millisecond, opts.RetryBaseDelay)
	assert.Equal(t, time.Second, opts.RetryMaxDelay)
	assert.Equal(t, uint32(7), opts.BreakerFailures)
	assert.Equal(t, time.Minute, opts.BreakerTimeout)
	assert.Same(t, tracker, opts.Outcomes)
}

func TestQueryTTLs_DropsUnknownEndpoints(t *testing.T) {
	got := queryTTLs(map[string]time.Duration{
		"current": time.Minute,
		"uv":      2 * time.Hour,
		"pollen":  time.Hour,
	})

	assert.Equal(t, map[query.Endpoint]time.Duration{
		query.EndpointCurrent: time.Minute,
		query.EndpointUV:      2 * time.Hour,
	}, got)
}

func TestLogAPIKeyCheck_NamesOpenWeatherEndpointsOnly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	logAPIKeyCheck(logger, nil)
	assert.Zero(t, logs.Len(), "a valid key logs nothing")

	logAPIKeyCheck(logger, errors.New("401 unauthorized"))
	require.Equal(t, 1, logs.Len())
	msg := logs.All()[0].Message
	assert.Contains(t, msg, "current weather")
	assert.Contains(t, msg, "hourly forecast")
	assert.Contains(t, msg, "air quality")
	assert.NotContains(t, msg, "UV")
}
