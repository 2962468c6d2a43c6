package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/client"
	"github.com/kjstillabower/skyweather/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var kyiv = Key{Coordinates: models.Coordinates{Lat: 50.4501, Lng: 30.5234}, Units: models.UnitsMetric}

func newCurrentQuery(clock *fakeClock, fetch FetchFunc[models.CurrentWeather]) *Query[models.CurrentWeather] {
	c := cache.NewInMemoryCache().WithClock(clock.Now)
	return New(EndpointCurrent, c, fetch, Options{UnitsInKey: true, Now: clock.Now})
}

func TestQuery_TTLWindow(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		n := atomic.AddInt32(&calls, 1)
		return models.CurrentWeather{Name: "Kyiv", Temperature: float64(n)}, nil
	})
	ctx := context.Background()

	first, err := q.Get(ctx, kyiv)
	require.NoError(t, err)
	require.NotNil(t, first.Data)
	assert.Equal(t, 1.0, first.Data.Temperature)

	clock.Advance(4*time.Minute + 59*time.Second)
	second, err := q.Get(ctx, kyiv)
	require.NoError(t, err)
	assert.Equal(t, 1.0, second.Data.Temperature)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "read within TTL must not fetch")

	clock.Advance(time.Second)
	third, err := q.Get(ctx, kyiv)
	require.NoError(t, err)
	assert.Equal(t, 2.0, third.Data.Temperature)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "read after TTL must fetch again")
	assert.Equal(t, clock.Now(), third.FetchedAt)
}

func TestQuery_ConcurrentReadsShareOneFetch(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	release := make(chan struct{})
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.CurrentWeather{Name: "Kyiv"}, nil
	})

	const readers = 10
	var wg sync.WaitGroup
	results := make([]Result[models.CurrentWeather], readers)
	errs := make([]error, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = q.Get(context.Background(), kyiv)
		}(i)
	}

	require.Eventually(t, func() bool {
		return q.Peek(context.Background(), kyiv).IsLoading
	}, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < readers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i].Data)
		assert.Equal(t, "Kyiv", results[i].Data.Name)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.False(t, q.Peek(context.Background(), kyiv).IsLoading)
}

func TestQuery_FetchErrorSetsErrorFlag(t *testing.T) {
	clock := newFakeClock()
	fail := true
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		if fail {
			return models.CurrentWeather{}, &client.FetchError{Provider: "openweather", Endpoint: "current", StatusCode: 503, Err: client.ErrUpstream}
		}
		return models.CurrentWeather{Name: "Kyiv"}, nil
	})
	ctx := context.Background()

	res, err := q.Get(ctx, kyiv)
	require.Error(t, err)
	assert.True(t, errors.Is(err, client.ErrNetwork))
	assert.True(t, res.IsError)
	assert.True(t, res.Retryable)
	assert.Nil(t, res.Data)
	assert.NotEmpty(t, res.Error)

	peek := q.Peek(ctx, kyiv)
	assert.True(t, peek.IsError)
	assert.False(t, peek.IsLoading)

	fail = false
	res, err = q.Refetch(ctx, kyiv)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Kyiv", res.Data.Name)
	assert.False(t, q.Peek(ctx, kyiv).IsError)
}

func TestQuery_ErrorKeepsPreviousData(t *testing.T) {
	clock := newFakeClock()
	fail := false
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		if fail {
			return models.CurrentWeather{}, errors.New("connection refused")
		}
		return models.CurrentWeather{Name: "Kyiv"}, nil
	})
	// A backend with a real clock keeps the entry after the query's TTL elapses.
	q.cache = cache.NewInMemoryCache()
	ctx := context.Background()

	_, err := q.Get(ctx, kyiv)
	require.NoError(t, err)

	fail = true
	clock.Advance(6 * time.Minute)
	res, err := q.Get(ctx, kyiv)
	require.Error(t, err)
	assert.True(t, res.IsError)
	require.NotNil(t, res.Data)
	assert.Equal(t, "Kyiv", res.Data.Name)
}

func TestQuery_RefetchBypassesFreshEntry(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		atomic.AddInt32(&calls, 1)
		return models.CurrentWeather{}, nil
	})
	ctx := context.Background()

	_, _ = q.Get(ctx, kyiv)
	_, err := q.Refetch(ctx, kyiv)
	require.NoError(t, err)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestQuery_CacheKey(t *testing.T) {
	withUnits := New[int](EndpointCurrent, cache.NewInMemoryCache(), nil, Options{UnitsInKey: true})
	withoutUnits := New[int](EndpointUV, cache.NewInMemoryCache(), nil, Options{})

	assert.Equal(t, "current:50.4501:30.5234:metric", withUnits.CacheKey(kyiv))
	assert.Equal(t, "current:50.4501:30.5234:imperial", withUnits.CacheKey(Key{Coordinates: kyiv.Coordinates, Units: models.UnitsImperial}))
	assert.Equal(t, "current:-33.8688:151.2093:metric", withUnits.CacheKey(Key{Coordinates: models.Coordinates{Lat: -33.8688, Lng: 151.2093}}))
	assert.Equal(t, "uv:50.4501:30.5234", withoutUnits.CacheKey(kyiv))
	assert.NotEqual(t, withoutUnits.CacheKey(kyiv), withoutUnits.CacheKey(Key{Coordinates: models.Coordinates{Lat: 50.45010001, Lng: 30.5234}}))
	assert.Equal(t, 60*time.Minute, withoutUnits.TTL())
}

func TestQuery_DifferentCoordinatesFetchSeparately(t *testing.T) {
	clock := newFakeClock()
	var calls int32
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		atomic.AddInt32(&calls, 1)
		return models.CurrentWeather{Coordinates: k.Coordinates}, nil
	})
	ctx := context.Background()

	london := Key{Coordinates: models.Coordinates{Lat: 51.5074, Lng: -0.1278}}
	a, err := q.Get(ctx, kyiv)
	require.NoError(t, err)
	b, err := q.Get(ctx, london)
	require.NoError(t, err)
	assert.Equal(t, kyiv.Coordinates, a.Data.Coordinates)
	assert.Equal(t, london.Coordinates, b.Data.Coordinates)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestQuery_CallerCancellationDoesNotAbortSharedFetch(t *testing.T) {
	clock := newFakeClock()
	release := make(chan struct{})
	q := newCurrentQuery(clock, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
		<-release
		return models.CurrentWeather{Name: "Kyiv"}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx, kyiv)
		done <- err
	}()
	require.Eventually(t, func() bool { return q.Peek(context.Background(), kyiv).IsLoading }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		res := q.Peek(context.Background(), kyiv)
		return !res.IsLoading && res.Data != nil
	}, time.Second, time.Millisecond)
}
