package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/cache"
	"github.com/kjstillabower/skyweather/internal/models"
)

// ErrUnknownEndpoint is returned for an endpoint name outside Endpoints.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// WeatherSource is the OpenWeatherMap side of the remote data clients.
type WeatherSource interface {
	GetCurrentWeather(ctx context.Context, coords models.Coordinates, units models.Units) (models.CurrentWeather, error)
	GetHourlyForecast(ctx context.Context, coords models.Coordinates, units models.Units) (models.HourlyForecast, error)
	GetAirPollution(ctx context.Context, coords models.Coordinates) (models.AirQuality, error)
}

// ForecastSource is the Open-Meteo side of the remote data clients.
type ForecastSource interface {
	GetDailyForecast(ctx context.Context, coords models.Coordinates) (models.DailyForecast, error)
	GetUVIndex(ctx context.Context, coords models.Coordinates) (models.UVIndex, error)
}

// Config tunes the query bundle. Missing TTLs fall back to DefaultTTLs.
type Config struct {
	TTLs         map[Endpoint]time.Duration
	FetchTimeout time.Duration
	Now          func() time.Time
}

// Queries bundles the five dashboard endpoints over one cache backend.
type Queries struct {
	Current    *Query[models.CurrentWeather]
	Hourly     *Query[models.HourlyForecast]
	Daily      *Query[models.DailyForecast]
	AirQuality *Query[models.AirQuality]
	UV         *Query[models.UVIndex]
}

// NewQueries wires each endpoint to its client call.
func NewQueries(weather WeatherSource, forecast ForecastSource, c cache.Cache, cfg Config, logger *zap.Logger) *Queries {
	opts := func(e Endpoint, unitsInKey bool) Options {
		return Options{
			TTL:          cfg.TTLs[e],
			UnitsInKey:   unitsInKey,
			FetchTimeout: cfg.FetchTimeout,
			Now:          cfg.Now,
			Logger:       logger,
		}
	}
	return &Queries{
		Current: New(EndpointCurrent, c, func(ctx context.Context, k Key) (models.CurrentWeather, error) {
			return weather.GetCurrentWeather(ctx, k.Coordinates, k.Units)
		}, opts(EndpointCurrent, true)),
		Hourly: New(EndpointHourly, c, func(ctx context.Context, k Key) (models.HourlyForecast, error) {
			return weather.GetHourlyForecast(ctx, k.Coordinates, k.Units)
		}, opts(EndpointHourly, true)),
		Daily: New(EndpointDaily, c, func(ctx context.Context, k Key) (models.DailyForecast, error) {
			return forecast.GetDailyForecast(ctx, k.Coordinates)
		}, opts(EndpointDaily, false)),
		AirQuality: New(EndpointAirQuality, c, func(ctx context.Context, k Key) (models.AirQuality, error) {
			return weather.GetAirPollution(ctx, k.Coordinates)
		}, opts(EndpointAirQuality, false)),
		UV: New(EndpointUV, c, func(ctx context.Context, k Key) (models.UVIndex, error) {
			return forecast.GetUVIndex(ctx, k.Coordinates)
		}, opts(EndpointUV, false)),
	}
}

// Refetch retries one endpoint for k. The refreshed data is read back through Get.
func (q *Queries) Refetch(ctx context.Context, endpoint Endpoint, k Key) error {
	var err error
	switch endpoint {
	case EndpointCurrent:
		_, err = q.Current.Refetch(ctx, k)
	case EndpointHourly:
		_, err = q.Hourly.Refetch(ctx, k)
	case EndpointDaily:
		_, err = q.Daily.Refetch(ctx, k)
	case EndpointAirQuality:
		_, err = q.AirQuality.Refetch(ctx, k)
	case EndpointUV:
		_, err = q.UV.Refetch(ctx, k)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEndpoint, endpoint)
	}
	return err
}
