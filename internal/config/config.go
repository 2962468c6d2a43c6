package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string
	LogLevel   string

	RequestTimeout time.Duration

	OpenWeatherAPIKey  string
	OpenWeatherURL     string
	OpenWeatherTimeout time.Duration
	OpenMeteoURL       string
	OpenMeteoTimeout   time.Duration
	GeocodingURL       string
	GeocodingTimeout   time.Duration

	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// QueryTTLs is keyed by endpoint name. Missing entries use the query defaults.
	QueryTTLs         map[string]time.Duration
	QueryFetchTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	StorageBackend string // "file", "redis", "sqlite" or "memory"
	StorageFile    string
	SQLitePath     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	SearchDebounce       time.Duration
	SearchMinLength      int
	SearchTimeout        time.Duration
	SearchMaxQueryLength int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout         time.Duration
	ShutdownInFlightTimeout time.Duration

	// Upstream health: /health reports degraded while a provider's error percentage
	// over UpstreamWindow exceeds UpstreamErrorPct.
	UpstreamWindow     time.Duration
	UpstreamErrorPct   int
	UpstreamMinSamples int

	PrefersDark bool
}

type fileConfig struct {
	Server struct {
		Port           string `yaml:"port"`
		RequestTimeout string `yaml:"request_timeout"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Providers struct {
		OpenWeather providerConfig `yaml:"openweather"`
		OpenMeteo   providerConfig `yaml:"openmeteo"`
		Geocoding   providerConfig `yaml:"geocoding"`
	} `yaml:"providers"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		BreakerFailures  uint32 `yaml:"breaker_failures"`
		BreakerTimeout   string `yaml:"breaker_timeout"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Query struct {
		FetchTimeout string            `yaml:"fetch_timeout"`
		TTLs         map[string]string `yaml:"ttls"`
	} `yaml:"query"`

	Cache struct {
		Backend   string `yaml:"backend"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Storage struct {
		Backend string `yaml:"backend"`
		File    struct {
			Path string `yaml:"path"`
		} `yaml:"file"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"storage"`

	Search struct {
		Debounce       string `yaml:"debounce"`
		MinLength      int    `yaml:"min_length"`
		Timeout        string `yaml:"timeout"`
		MaxQueryLength int    `yaml:"max_query_length"`
	} `yaml:"search"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		UpstreamWindow     string `yaml:"upstream_window"`
		UpstreamErrorPct   int    `yaml:"upstream_error_pct"`
		UpstreamMinSamples int    `yaml:"upstream_min_samples"`
	} `yaml:"health"`

	Appearance struct {
		PrefersDark bool `yaml:"prefers_dark"`
	} `yaml:"appearance"`
}

type providerConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type secretsFile struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
	RedisPassword     string `yaml:"redis_password"`
}

// envOverlay lists the variables that override the YAML file. Empty values leave the
// file setting in place.
type envOverlay struct {
	EnvName           string `envconfig:"ENV_NAME" default:"dev"`
	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY"`
	StorageBackend    string `envconfig:"STORAGE_BACKEND"`
	CacheBackend      string `envconfig:"CACHE_BACKEND"`
	RedisAddr         string `envconfig:"REDIS_ADDR"`
	RedisPassword     string `envconfig:"REDIS_PASSWORD"`
	MemcachedAddrs    string `envconfig:"MEMCACHED_ADDRS"`
	ServerPort        string `envconfig:"SERVER_PORT"`
	LogLevel          string `envconfig:"LOG_LEVEL"`
}

// Load reads .env (optional), config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml,
// then applies the environment overlay. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var env envOverlay
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	configPath := filepath.Join(cwd, "config", env.EnvName+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	cfg.ServerPort = firstNonEmpty(env.ServerPort, fc.Server.Port, "8080")
	cfg.LogLevel = strings.ToLower(firstNonEmpty(env.LogLevel, fc.Log.Level, "info"))
	cfg.RequestTimeout = parseDuration(fc.Server.RequestTimeout, 10*time.Second)

	cfg.OpenWeatherAPIKey = firstNonEmpty(env.OpenWeatherAPIKey, sec.OpenWeatherAPIKey)
	if cfg.OpenWeatherAPIKey == "" {
		return nil, fmt.Errorf("OPENWEATHER_API_KEY required (set env, .env or config/secrets.yaml openweather_api_key)")
	}
	cfg.OpenWeatherURL = strings.TrimSpace(fc.Providers.OpenWeather.URL)
	cfg.OpenWeatherTimeout = parseDurationOrZero(fc.Providers.OpenWeather.Timeout, 5*time.Second)
	cfg.OpenMeteoURL = strings.TrimSpace(fc.Providers.OpenMeteo.URL)
	cfg.OpenMeteoTimeout = parseDurationOrZero(fc.Providers.OpenMeteo.Timeout, 5*time.Second)
	cfg.GeocodingURL = strings.TrimSpace(fc.Providers.Geocoding.URL)
	cfg.GeocodingTimeout = parseDurationOrZero(fc.Providers.Geocoding.Timeout, 5*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.BreakerFailures = fc.Reliability.BreakerFailures
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cfg.QueryFetchTimeout = parseDuration(fc.Query.FetchTimeout, 15*time.Second)
	cfg.QueryTTLs = make(map[string]time.Duration, len(fc.Query.TTLs))
	for name, raw := range fc.Query.TTLs {
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("query.ttls.%s: invalid duration %q", name, raw)
		}
		cfg.QueryTTLs[strings.ToLower(name)] = d
	}

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(env.CacheBackend, fc.Cache.Backend, "in_memory")))
	cfg.MemcachedAddrs = strings.TrimSpace(firstNonEmpty(env.MemcachedAddrs, fc.Cache.Memcached.Addrs, "localhost:11211"))
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.StorageBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(env.StorageBackend, fc.Storage.Backend, "file")))
	cfg.StorageFile = firstNonEmpty(fc.Storage.File.Path, filepath.Join("data", "skyweather.json"))
	cfg.SQLitePath = firstNonEmpty(fc.Storage.SQLite.Path, filepath.Join("data", "skyweather.db"))
	cfg.RedisAddr = strings.TrimSpace(firstNonEmpty(env.RedisAddr, fc.Storage.Redis.Addr, "localhost:6379"))
	cfg.RedisPassword = firstNonEmpty(env.RedisPassword, sec.RedisPassword, fc.Storage.Redis.Password)
	cfg.RedisDB = fc.Storage.Redis.DB

	cfg.SearchDebounce = parseDuration(fc.Search.Debounce, 300*time.Millisecond)
	cfg.SearchMinLength = fc.Search.MinLength
	if cfg.SearchMinLength <= 0 {
		cfg.SearchMinLength = 2
	}
	cfg.SearchTimeout = parseDuration(fc.Search.Timeout, 5*time.Second)
	cfg.SearchMaxQueryLength = fc.Search.MaxQueryLength
	if cfg.SearchMaxQueryLength <= 0 {
		cfg.SearchMaxQueryLength = 100
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 5*time.Second)

	cfg.UpstreamWindow = parseDuration(fc.Health.UpstreamWindow, time.Minute)
	cfg.UpstreamErrorPct = fc.Health.UpstreamErrorPct
	if cfg.UpstreamErrorPct <= 0 {
		cfg.UpstreamErrorPct = 50
	}
	cfg.UpstreamMinSamples = fc.Health.UpstreamMinSamples
	if cfg.UpstreamMinSamples <= 0 {
		cfg.UpstreamMinSamples = 10
	}

	cfg.PrefersDark = fc.Appearance.PrefersDark

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

var queryEndpoints = map[string]bool{
	"current": true, "hourly": true, "daily": true, "air_quality": true, "uv": true,
}

// validate performs post-load validation of configuration values.
// Provider timeouts must be positive and RequestTimeout is raised above the slowest of them.
func validate(cfg *Config) error {
	for name, d := range map[string]time.Duration{
		"providers.openweather.timeout": cfg.OpenWeatherTimeout,
		"providers.openmeteo.timeout":   cfg.OpenMeteoTimeout,
		"providers.geocoding.timeout":   cfg.GeocodingTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
		if cfg.RequestTimeout <= d {
			cfg.RequestTimeout = d + time.Second
		}
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return fmt.Errorf("reliability.retry_max_delay (%s) must not be below retry_base_delay (%s)", cfg.RetryMaxDelay, cfg.RetryBaseDelay)
	}
	for name := range cfg.QueryTTLs {
		if !queryEndpoints[name] {
			return fmt.Errorf("query.ttls: unknown endpoint %q", name)
		}
	}
	if cfg.UpstreamErrorPct > 100 {
		return fmt.Errorf("health.upstream_error_pct must be at most 100, got %d", cfg.UpstreamErrorPct)
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.StorageBackend {
	case "file", "redis", "sqlite", "memory":
		// valid
	default:
		return fmt.Errorf("storage.backend must be file, redis, sqlite or memory, got %q", cfg.StorageBackend)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.LogLevel)
	}
	return nil
}
