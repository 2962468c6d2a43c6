package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template and status class.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight.
	HTTPRequestsInFlight prometheus.Gauge

	// Rate limit denials (429).
	RateLimitDeniedTotal prometheus.Counter

	// Upstream provider calls by provider, endpoint and status class. Watch for: error ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// Upstream provider latency. Watch for: p95 > 2s means the provider is degrading.
	ProviderDuration *prometheus.HistogramVec

	// Retry attempts per provider. Zero unless retries are enabled in config.
	ProviderRetriesTotal *prometheus.CounterVec

	// Circuit breaker state per provider (0 closed, 1 half-open, 2 open).
	CircuitBreakerState *prometheus.GaugeVec

	// Query cache outcomes per endpoint.
	QueryHitsTotal      *prometheus.CounterVec
	QueryMissesTotal    *prometheus.CounterVec
	QueryCoalescedTotal *prometheus.CounterVec
	QueryErrorsTotal    *prometheus.CounterVec

	// Cache backend failures by operation (get, set, delete).
	CacheErrorsTotal *prometheus.CounterVec

	// Persistence failures by operation. Never surfaced to users.
	PersistenceErrorsTotal *prometheus.CounterVec

	// State store mutations by operation name.
	StateMutationsTotal *prometheus.CounterVec

	// Geocoding lookups issued by the search controller.
	SearchGeocodeTotal prometheus.Counter

	// Geocoding responses dropped because newer input superseded them.
	SearchStaleResponsesTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of upstream weather provider calls",
		},
		[]string{"provider", "endpoint", "status"},
	)
	ProviderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerDurationSeconds",
			Help:    "Upstream provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "endpoint"},
	)
	ProviderRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerRetriesTotal",
			Help: "Total number of retry attempts for provider calls",
		},
		[]string{"provider"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Provider circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"provider"},
	)
	QueryHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryCacheHitsTotal",
			Help: "Query cache reads served from a fresh entry",
		},
		[]string{"endpoint"},
	)
	QueryMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryCacheMissesTotal",
			Help: "Query cache reads that required a fetch",
		},
		[]string{"endpoint"},
	)
	QueryCoalescedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryCacheCoalescedTotal",
			Help: "Query cache reads that joined an in-flight fetch",
		},
		[]string{"endpoint"},
	)
	QueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queryCacheErrorsTotal",
			Help: "Query cache fetches that failed, by error category",
		},
		[]string{"endpoint", "category"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation",
		},
		[]string{"operation"},
	)
	PersistenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "persistenceErrorsTotal",
			Help: "Persistent key-value store failures by operation",
		},
		[]string{"operation"},
	)
	StateMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stateMutationsTotal",
			Help: "Application state mutations by operation",
		},
		[]string{"operation"},
	)
	SearchGeocodeTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchGeocodeTotal",
			Help: "Geocoding lookups issued after the debounce window",
		},
	)
	SearchStaleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "searchStaleResponsesTotal",
			Help: "Geocoding responses discarded because newer input superseded them",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight, RateLimitDeniedTotal,
		ProviderCallsTotal, ProviderDuration, ProviderRetriesTotal, CircuitBreakerState,
		QueryHitsTotal, QueryMissesTotal, QueryCoalescedTotal, QueryErrorsTotal,
		CacheErrorsTotal, PersistenceErrorsTotal, StateMutationsTotal,
		SearchGeocodeTotal, SearchStaleResponsesTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
