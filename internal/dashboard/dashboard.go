// Package dashboard is the application context: it owns the state store, the query
// bundle, the search controller and the clients, and composes them into the views the
// HTTP layer serves.
package dashboard

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/search"
	"github.com/kjstillabower/skyweather/internal/state"
)

var (
	// ErrNoForecast is returned when no hourly forecast is cached for the current coordinates.
	ErrNoForecast = errors.New("no hourly forecast loaded")
	// ErrSampleOutOfRange is returned for an hourly index outside the loaded forecast.
	ErrSampleOutOfRange = errors.New("hourly sample out of range")
)

// TileSource builds map tile URL templates.
type TileSource interface {
	MapTileURL(layer string) (string, error)
}

// Dashboard wires the core modules together. Construct it once in main.
type Dashboard struct {
	State   *state.Store
	Queries *query.Queries
	Search  *search.Controller
	Tiles   TileSource
	logger  *zap.Logger

	unsubscribe func()
}

// New builds the dashboard and re-runs an active search when the language changes.
func New(st *state.Store, queries *query.Queries, sc *search.Controller, tiles TileSource, logger *zap.Logger) *Dashboard {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dashboard{State: st, Queries: queries, Search: sc, Tiles: tiles, logger: logger}

	lang := st.Language()
	var mu sync.Mutex
	d.unsubscribe = st.Subscribe(func(s state.State) {
		mu.Lock()
		changed := s.Settings.Language != lang
		lang = s.Settings.Language
		mu.Unlock()
		if changed {
			go sc.Refresh()
		}
	})
	return d
}

// WeatherView is the consolidated dashboard payload for the current coordinates.
type WeatherView struct {
	Location    models.Location                     `json:"location"`
	Coordinates models.Coordinates                  `json:"coordinates"`
	Units       models.Units                        `json:"units"`
	Current     query.Result[models.CurrentWeather] `json:"current"`
	Selected    bool                                `json:"selected"`
	Hourly      query.Result[models.HourlyForecast] `json:"hourly"`
	Daily       query.Result[models.DailyForecast]  `json:"daily"`
	AirQuality  query.Result[models.AirQuality]     `json:"airQuality"`
	UV          query.Result[models.UVIndex]        `json:"uv"`
	Levels      *Levels                             `json:"levels,omitempty"`
}

// Levels are the derived classifications shown next to the raw readings.
type Levels struct {
	UV            *models.Level `json:"uv,omitempty"`
	AirQuality    *models.Level `json:"airQuality,omitempty"`
	WindDirection string        `json:"windDirection,omitempty"`
}

// Weather reads all five endpoints for the store's current coordinates concurrently.
// Per-endpoint failures are reported inside each Result; the view itself never fails.
// A selected hourly sample replaces current conditions.
func (d *Dashboard) Weather(ctx context.Context) WeatherView {
	snap := d.State.Snapshot()
	key := query.Key{Coordinates: snap.Location.Coordinates, Units: snap.Settings.Units}
	view := WeatherView{
		Location:    snap.Location.Current,
		Coordinates: snap.Location.Coordinates,
		Units:       snap.Settings.Units,
	}

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { view.Current, _ = d.Queries.Current.Get(ctx, key) })
	run(func() { view.Hourly, _ = d.Queries.Hourly.Get(ctx, key) })
	run(func() { view.Daily, _ = d.Queries.Daily.Get(ctx, key) })
	run(func() { view.AirQuality, _ = d.Queries.AirQuality.Get(ctx, key) })
	run(func() { view.UV, _ = d.Queries.UV.Get(ctx, key) })
	wg.Wait()

	if snap.SelectedWeather != nil {
		view.Current = query.Result[models.CurrentWeather]{Data: snap.SelectedWeather}
		view.Selected = true
	}
	view.Levels = levels(view)

	failed := 0
	for _, isErr := range []bool{view.Current.IsError, view.Hourly.IsError, view.Daily.IsError, view.AirQuality.IsError, view.UV.IsError} {
		if isErr {
			failed++
		}
	}
	if failed > 0 {
		d.logger.Warn("dashboard served with failed endpoints", zap.Int("failed", failed))
	}
	return view
}

func levels(v WeatherView) *Levels {
	out := &Levels{}
	if v.UV.Data != nil && len(v.UV.Data.Days) > 0 {
		l := models.UVLevel(v.UV.Data.Days[0].Max)
		out.UV = &l
	}
	if v.AirQuality.Data != nil && v.AirQuality.Data.AQI > 0 {
		l := models.AQILevel(v.AirQuality.Data.AQI)
		out.AirQuality = &l
	}
	if v.Current.Data != nil {
		out.WindDirection = models.WindDirection(float64(v.Current.Data.WindDeg))
	}
	return out
}

// Retry refetches one endpoint for the current coordinates.
func (d *Dashboard) Retry(ctx context.Context, endpoint query.Endpoint) error {
	snap := d.State.Snapshot()
	return d.Queries.Refetch(ctx, endpoint, query.Key{Coordinates: snap.Location.Coordinates, Units: snap.Settings.Units})
}

// SelectHourly replaces current conditions with hourly sample index of the cached
// forecast. It never fetches; the forecast must already be loaded.
func (d *Dashboard) SelectHourly(ctx context.Context, index int) (models.CurrentWeather, error) {
	snap := d.State.Snapshot()
	res := d.Queries.Hourly.Peek(ctx, query.Key{Coordinates: snap.Location.Coordinates, Units: snap.Settings.Units})
	if res.Data == nil {
		return models.CurrentWeather{}, ErrNoForecast
	}
	if index < 0 || index >= len(res.Data.Samples) {
		return models.CurrentWeather{}, ErrSampleOutOfRange
	}
	w := res.Data.Samples[index].AsCurrent(*res.Data)
	d.State.SetSelectedWeather(&w)
	return w, nil
}

// PopularLocations are the one-click shortcuts offered on the dashboard.
func (d *Dashboard) PopularLocations() []models.Location {
	return append([]models.Location{}, models.PopularLocations...)
}

// MapTileURL returns the tile template for layer.
func (d *Dashboard) MapTileURL(layer string) (string, error) {
	return d.Tiles.MapTileURL(layer)
}

// Close stops background listeners and the search controller.
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
	d.Search.Close()
}
