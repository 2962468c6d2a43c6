package dashboard

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
	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/search"
	"github.com/kjstillabower/skyweather/internal/state"
)

type stubSources struct {
	currentCalls atomic.Int32
	failDaily    atomic.Bool
	lastUnits    atomic.Value
}

func (s *stubSources) GetCurrentWeather(ctx context.Context, c models.Coordinates, u models.Units) (models.CurrentWeather, error) {
	s.currentCalls.Add(1)
	s.lastUnits.Store(u)
	return models.CurrentWeather{Coordinates: c, Name: "Kyiv", Temperature: 12, WindDeg: 90}, nil
}

func (s *stubSources) GetHourlyForecast(ctx context.Context, c models.Coordinates, u models.Units) (models.HourlyForecast, error) {
	return models.HourlyForecast{City: "Kyiv", Coordinates: c, Samples: []models.HourlySample{{Temperature: 14}}}, nil
}

func (s *stubSources) GetAirPollution(ctx context.Context, c models.Coordinates) (models.AirQuality, error) {
	return models.AirQuality{Coordinates: c, AQI: 2}, nil
}

func (s *stubSources) GetDailyForecast(ctx context.Context, c models.Coordinates) (models.DailyForecast, error) {
	if s.failDaily.Load() {
		return models.DailyForecast{}, &client.FetchError{Provider: "openmeteo", Endpoint: "daily", StatusCode: 502, Err: client.ErrUpstream}
	}
	return models.DailyForecast{Coordinates: c, Days: []models.DailyForecastDay{{Date: "2026-10-16"}}}, nil
}

func (s *stubSources) GetUVIndex(ctx context.Context, c models.Coordinates) (models.UVIndex, error) {
	return models.UVIndex{Coordinates: c, Days: []models.UVIndexDay{{Date: "2026-10-16", Max: 6.2}}}, nil
}

type stubTiles struct{}

func (stubTiles) MapTileURL(layer string) (string, error) {
	if layer == "bogus" {
		return "", client.ErrUnknownLayer
	}
	return "https://tiles.test/map/" + layer + "/{z}/{x}/{y}.png", nil
}

type recordingGeocoder struct {
	mu    sync.Mutex
	langs []models.Language
}

func (g *recordingGeocoder) Search(ctx context.Context, q string, lang models.Language) ([]models.GeocodingResult, error) {
	g.mu.Lock()
	g.langs = append(g.langs, lang)
	g.mu.Unlock()
	return []models.GeocodingResult{{Name: "London", Country: "United Kingdom"}}, nil
}

func (g *recordingGeocoder) languages() []models.Language {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Language{}, g.langs...)
}

func newDashboard(t *testing.T) (*Dashboard, *stubSources, *recordingGeocoder) {
	t.Helper()
	src := &stubSources{}
	geo := &recordingGeocoder{}
	st := state.New(kvstore.New(kvstore.NewMemoryBackend(), nil), state.Options{ColorScheme: state.StaticColorScheme(false)})
	qs := query.NewQueries(src, src, cache.NewInMemoryCache(), query.Config{}, nil)
	sc := search.NewController(geo, st, search.Options{Debounce: 10 * time.Millisecond})
	d := New(st, qs, sc, stubTiles{}, nil)
	t.Cleanup(d.Close)
	return d, src, geo
}

func TestWeather_AllEndpoints(t *testing.T) {
	d, _, _ := newDashboard(t)

	view := d.Weather(context.Background())

	assert.Equal(t, models.DefaultLocation, view.Location)
	assert.Equal(t, models.UnitsMetric, view.Units)
	require.NotNil(t, view.Current.Data)
	require.NotNil(t, view.Hourly.Data)
	require.NotNil(t, view.Daily.Data)
	require.NotNil(t, view.AirQuality.Data)
	require.NotNil(t, view.UV.Data)
	assert.Equal(t, models.DefaultLocation.Coordinates, view.Current.Data.Coordinates)
	assert.False(t, view.Selected)

	require.NotNil(t, view.Levels)
	require.NotNil(t, view.Levels.UV)
	assert.Equal(t, "High", view.Levels.UV.Label)
	require.NotNil(t, view.Levels.AirQuality)
	assert.Equal(t, "Fair", view.Levels.AirQuality.Label)
	assert.Equal(t, "E", view.Levels.WindDirection)
}

func TestWeather_UsesStoreUnitsAndCaches(t *testing.T) {
	d, src, _ := newDashboard(t)
	require.NoError(t, d.State.SetUnits(models.UnitsImperial))

	d.Weather(context.Background())
	d.Weather(context.Background())

	assert.EqualValues(t, 1, src.currentCalls.Load())
	assert.Equal(t, models.UnitsImperial, src.lastUnits.Load())
}

func TestWeather_SelectedOverridesCurrent(t *testing.T) {
	d, _, _ := newDashboard(t)
	d.State.SetSelectedWeather(&models.CurrentWeather{Name: "Kyiv", Temperature: -4})

	view := d.Weather(context.Background())

	assert.True(t, view.Selected)
	require.NotNil(t, view.Current.Data)
	assert.Equal(t, -4.0, view.Current.Data.Temperature)
}

func TestWeather_FailedEndpointDoesNotFailView(t *testing.T) {
	d, src, _ := newDashboard(t)
	src.failDaily.Store(true)

	view := d.Weather(context.Background())

	assert.True(t, view.Daily.IsError)
	assert.True(t, view.Daily.Retryable)
	assert.NotNil(t, view.Current.Data)

	src.failDaily.Store(false)
	require.NoError(t, d.Retry(context.Background(), query.EndpointDaily))
	assert.False(t, d.Weather(context.Background()).Daily.IsError)
}

func TestRetry_UnknownEndpoint(t *testing.T) {
	d, _, _ := newDashboard(t)

	err := d.Retry(context.Background(), "pollen")

	assert.True(t, errors.Is(err, query.ErrUnknownEndpoint))
}

func TestPopularLocations_ReturnsCopy(t *testing.T) {
	d, _, _ := newDashboard(t)

	locs := d.PopularLocations()
	require.Len(t, locs, 6)
	locs[0].City = "mutated"

	assert.Equal(t, "New York", d.PopularLocations()[0].City)
}

func TestMapTileURL(t *testing.T) {
	d, _, _ := newDashboard(t)

	url, err := d.MapTileURL("clouds")
	require.NoError(t, err)
	assert.Contains(t, url, "/map/clouds/")

	_, err = d.MapTileURL("bogus")
	assert.ErrorIs(t, err, client.ErrUnknownLayer)
}

func TestLanguageChange_RefreshesActiveSearch(t *testing.T) {
	d, _, geo := newDashboard(t)

	d.Search.Input("London")
	require.Eventually(t, func() bool { return d.Search.Snapshot().Phase == search.PhaseResults }, time.Second, time.Millisecond)

	require.NoError(t, d.State.SetLanguage(models.LanguageUkrainian))

	require.Eventually(t, func() bool {
		langs := geo.languages()
		return len(langs) == 2 && langs[1] == models.LanguageUkrainian
	}, time.Second, time.Millisecond)
}

func TestLanguageChange_IdleSearchStaysIdle(t *testing.T) {
	d, _, geo := newDashboard(t)

	require.NoError(t, d.State.SetLanguage(models.LanguageUkrainian))
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, geo.languages())
	assert.Equal(t, search.PhaseIdle, d.Search.Snapshot().Phase)
}

func TestSelectHourly(t *testing.T) {
	d, _, _ := newDashboard(t)
	ctx := context.Background()

	_, err := d.SelectHourly(ctx, 0)
	require.ErrorIs(t, err, ErrNoForecast)

	d.Weather(ctx)
	_, err = d.SelectHourly(ctx, 1)
	require.ErrorIs(t, err, ErrSampleOutOfRange)

	w, err := d.SelectHourly(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 14.0, w.Temperature)
	assert.Equal(t, "Kyiv", w.Name)

	view := d.Weather(ctx)
	assert.True(t, view.Selected)
	assert.Equal(t, 14.0, view.Current.Data.Temperature)
}
