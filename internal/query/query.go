package query

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/client"
	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/observability"
)

// Endpoint names a cached remote data category.
type Endpoint string

const (
	EndpointCurrent    Endpoint = "current"
	EndpointHourly     Endpoint = "hourly"
	EndpointDaily      Endpoint = "daily"
	EndpointAirQuality Endpoint = "air_quality"
	EndpointUV         Endpoint = "uv"
)

// Endpoints lists every endpoint in display order.
var Endpoints = []Endpoint{EndpointCurrent, EndpointHourly, EndpointDaily, EndpointAirQuality, EndpointUV}

// DefaultTTLs are the freshness windows per endpoint.
var DefaultTTLs = map[Endpoint]time.Duration{
	EndpointCurrent:    5 * time.Minute,
	EndpointHourly:     30 * time.Minute,
	EndpointDaily:      30 * time.Minute,
	EndpointAirQuality: 30 * time.Minute,
	EndpointUV:         60 * time.Minute,
}

// Valid reports whether e is a known endpoint.
func (e Endpoint) Valid() bool {
	_, ok := DefaultTTLs[e]
	return ok
}

// Key identifies what a query fetches. Units only matter for endpoints whose
// provider responds in the requested unit system.
type Key struct {
	Coordinates models.Coordinates
	Units       models.Units
}

// Result is what subscribers see for one endpoint and key.
type Result[T any] struct {
	Data      *T        `json:"data"`
	IsLoading bool      `json:"isLoading"`
	IsError   bool      `json:"isError"`
	Err       error     `json:"-"`
	Error     string    `json:"error,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	FetchedAt time.Time `json:"fetchedAt,omitempty"`
}

func (r *Result[T]) fail(err error) {
	r.IsError = true
	r.Err = err
	r.Error = err.Error()
	r.Retryable = client.Retryable(err)
}

// FetchFunc performs the network call for a key.
type FetchFunc[T any] func(ctx context.Context, k Key) (T, error)

// Options configures a Query. Zero values fall back to defaults.
type Options struct {
	TTL          time.Duration
	// UnitsInKey separates cache entries by unit system.
	UnitsInKey   bool
	FetchTimeout time.Duration
	Now          func() time.Time
	Logger       *zap.Logger
}

type entry[T any] struct {
	Data      T         `json:"data"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Query caches one endpoint's responses by key with a fixed TTL and shares in-flight
// fetches. Stale entries are refetched lazily on the next Get; nothing runs in the background.
type Query[T any] struct {
	endpoint   Endpoint
	ttl        time.Duration
	unitsInKey bool
	fetch      FetchFunc[T]
	cache      cache.Cache
	coalescer  *coalescer[entry[T]]
	now        func() time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	errors map[string]error
}

// New creates a Query for endpoint backed by c.
func New[T any](endpoint Endpoint, c cache.Cache, fetch FetchFunc[T], opts Options) *Query[T] {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTLs[endpoint]
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Query[T]{
		endpoint:   endpoint,
		ttl:        opts.TTL,
		unitsInKey: opts.UnitsInKey,
		fetch:      fetch,
		cache:      c,
		coalescer:  newCoalescer[entry[T]](opts.FetchTimeout),
		now:        opts.Now,
		logger:     opts.Logger,
		errors:     make(map[string]error),
	}
}

// Endpoint returns the endpoint name.
func (q *Query[T]) Endpoint() Endpoint { return q.endpoint }

// TTL returns the freshness window.
func (q *Query[T]) TTL() time.Duration { return q.ttl }

// CacheKey renders endpoint:lat:lng, plus :units when units are part of the key.
// Coordinates are compared exactly, so 50.45 and 50.450001 are different keys.
func (q *Query[T]) CacheKey(k Key) string {
	var b strings.Builder
	b.WriteString(string(q.endpoint))
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(k.Coordinates.Lat, 'f', -1, 64))
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(k.Coordinates.Lng, 'f', -1, 64))
	if q.unitsInKey {
		units := k.Units
		if units == "" {
			units = models.UnitsMetric
		}
		b.WriteByte(':')
		b.WriteString(string(units))
	}
	return b.String()
}

// Get returns fresh cached data or fetches it. Concurrent callers for the same key share
// one fetch. A failed fetch returns the error and a Result with IsError set, carrying
// any previously cached data.
func (q *Query[T]) Get(ctx context.Context, k Key) (Result[T], error) {
	ck := q.CacheKey(k)
	logger := observability.LoggerFromContext(ctx, q.logger)

	cached, ok := q.load(ctx, ck)
	if ok && q.fresh(cached) {
		observability.QueryHitsTotal.WithLabelValues(string(q.endpoint)).Inc()
		logger.Debug("query cache hit", zap.String("key", ck))
		return Result[T]{Data: &cached.Data, FetchedAt: cached.FetchedAt}, nil
	}

	observability.QueryMissesTotal.WithLabelValues(string(q.endpoint)).Inc()
	e, shared, err := q.coalescer.Do(ctx, ck, func(fetchCtx context.Context) (entry[T], error) {
		return q.fetchAndStore(fetchCtx, k, ck)
	})
	if shared {
		observability.QueryCoalescedTotal.WithLabelValues(string(q.endpoint)).Inc()
	}
	if err != nil {
		var res Result[T]
		if ok {
			res.Data, res.FetchedAt = &cached.Data, cached.FetchedAt
		}
		res.fail(err)
		return res, err
	}
	return Result[T]{Data: &e.Data, FetchedAt: e.FetchedAt}, nil
}

// Peek reports the current state for k without fetching.
func (q *Query[T]) Peek(ctx context.Context, k Key) Result[T] {
	ck := q.CacheKey(k)
	var res Result[T]
	if cached, ok := q.load(ctx, ck); ok {
		res.Data, res.FetchedAt = &cached.Data, cached.FetchedAt
	}
	res.IsLoading = q.coalescer.Pending(ck)

	q.mu.Lock()
	err := q.errors[ck]
	q.mu.Unlock()
	if err != nil {
		res.fail(err)
	}
	return res
}

// Refetch drops the cached entry for k and fetches again. It backs the manual retry
// offered after a failed fetch.
func (q *Query[T]) Refetch(ctx context.Context, k Key) (Result[T], error) {
	ck := q.CacheKey(k)
	if err := q.cache.Delete(ctx, ck); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("delete").Inc()
		observability.LoggerFromContext(ctx, q.logger).Warn("query cache delete failed", zap.String("key", ck), zap.Error(err))
	}
	return q.Get(ctx, k)
}

func (q *Query[T]) fetchAndStore(ctx context.Context, k Key, ck string) (entry[T], error) {
	data, err := q.fetch(ctx, k)
	if err != nil {
		category := client.CategorizeError(err)
		observability.QueryErrorsTotal.WithLabelValues(string(q.endpoint), string(category)).Inc()
		q.logger.Warn("query fetch failed",
			zap.String("endpoint", string(q.endpoint)),
			zap.String("key", ck),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		q.mu.Lock()
		q.errors[ck] = err
		q.mu.Unlock()
		return entry[T]{}, err
	}

	e := entry[T]{Data: data, FetchedAt: q.now()}
	q.mu.Lock()
	delete(q.errors, ck)
	q.mu.Unlock()

	raw, err := json.Marshal(e)
	if err != nil {
		q.logger.Warn("query cache encode failed", zap.String("key", ck), zap.Error(err))
		return e, nil
	}
	if err := q.cache.Set(ctx, ck, raw, q.ttl); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		q.logger.Warn("query cache set failed", zap.String("key", ck), zap.Error(err))
	}
	return e, nil
}

// load reads and decodes an entry. Backend errors and undecodable entries count as misses.
func (q *Query[T]) load(ctx context.Context, ck string) (entry[T], bool) {
	raw, ok, err := q.cache.Get(ctx, ck)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		q.logger.Warn("query cache get failed", zap.String("key", ck), zap.Error(err))
		return entry[T]{}, false
	}
	if !ok {
		return entry[T]{}, false
	}
	var e entry[T]
	if err := json.Unmarshal(raw, &e); err != nil {
		q.logger.Debug("query cache entry undecodable", zap.String("key", ck), zap.Error(err))
		return entry[T]{}, false
	}
	return e, true
}

func (q *Query[T]) fresh(e entry[T]) bool {
	return q.now().Sub(e.FetchedAt) < q.ttl
}
