package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/skyweather/internal/models"
)

const (
	DefaultOpenWeatherURL = "https://api.openweathermap.org"
	DefaultTileURL        = "https://tile.openweathermap.org"

	providerOpenWeather = "openweather"
)

// Map layers offered by the tile server.
const (
	LayerPrecipitation = "precipitation"
	LayerTemperature   = "temperature"
	LayerClouds        = "clouds"
)

var tileLayers = map[string]string{
	LayerPrecipitation: "precipitation_new",
	LayerTemperature:   "temp_new",
	LayerClouds:        "clouds_new",
}

// WeatherClient reads current conditions, the 3-hour forecast and air pollution from OpenWeatherMap.
type WeatherClient struct {
	*provider
	apiKey  string
	tileURL string
}

// NewWeatherClient requires a plausible API key; the key is sent as appid on every call.
func NewWeatherClient(apiKey string, opts Options) (*WeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	p, err := newProvider(providerOpenWeather, DefaultOpenWeatherURL, opts)
	if err != nil {
		return nil, err
	}
	return &WeatherClient{provider: p, apiKey: apiKey, tileURL: DefaultTileURL}, nil
}

type owCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type owWind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
	Gust  float64 `json:"gust"`
}

type owCoord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type currentResponse struct {
	Coord      owCoord       `json:"coord"`
	Weather    []owCondition `json:"weather"`
	Main       owMain        `json:"main"`
	Visibility int           `json:"visibility"`
	Wind       owWind        `json:"wind"`
	Clouds     struct {
		All int `json:"all"`
	} `json:"clouds"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Timezone int    `json:"timezone"`
	Name     string `json:"name"`
}

type forecastResponse struct {
	List []struct {
		Dt         int64         `json:"dt"`
		Main       owMain        `json:"main"`
		Weather    []owCondition `json:"weather"`
		Visibility int           `json:"visibility"`
		Wind       owWind        `json:"wind"`
		Clouds     struct {
			All int `json:"all"`
		} `json:"clouds"`
		Pop float64 `json:"pop"`
	} `json:"list"`
	City struct {
		Name    string  `json:"name"`
		Country string  `json:"country"`
		Coord   owCoord `json:"coord"`
		Sunrise int64   `json:"sunrise"`
		Sunset  int64   `json:"sunset"`
	} `json:"city"`
}

type airPollutionResponse struct {
	Coord owCoord `json:"coord"`
	List  []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components map[string]float64 `json:"components"`
	} `json:"list"`
}

// GetCurrentWeather fetches current conditions at coords in the given unit system.
func (c *WeatherClient) GetCurrentWeather(ctx context.Context, coords models.Coordinates, units models.Units) (models.CurrentWeather, error) {
	var resp currentResponse
	if err := c.getJSON(ctx, "current", "/data/2.5/weather", c.params(coords, units), &resp); err != nil {
		return models.CurrentWeather{}, err
	}
	return models.CurrentWeather{
		Coordinates:   models.Coordinates{Lat: resp.Coord.Lat, Lng: resp.Coord.Lon},
		Name:          resp.Name,
		Country:       resp.Sys.Country,
		Conditions:    mapConditions(resp.Weather),
		Temperature:   resp.Main.Temp,
		FeelsLike:     resp.Main.FeelsLike,
		TempMin:       resp.Main.TempMin,
		TempMax:       resp.Main.TempMax,
		Pressure:      resp.Main.Pressure,
		Humidity:      resp.Main.Humidity,
		Visibility:    resp.Visibility,
		WindSpeed:     resp.Wind.Speed,
		WindDeg:       resp.Wind.Deg,
		WindGust:      resp.Wind.Gust,
		Clouds:        resp.Clouds.All,
		Sunrise:       unixTime(resp.Sys.Sunrise),
		Sunset:        unixTime(resp.Sys.Sunset),
		TimezoneShift: resp.Timezone,
		ObservedAt:    unixTime(resp.Dt),
	}, nil
}

// GetHourlyForecast fetches the 5-day forecast in 3-hour steps.
func (c *WeatherClient) GetHourlyForecast(ctx context.Context, coords models.Coordinates, units models.Units) (models.HourlyForecast, error) {
	var resp forecastResponse
	if err := c.getJSON(ctx, "hourly", "/data/2.5/forecast", c.params(coords, units), &resp); err != nil {
		return models.HourlyForecast{}, err
	}
	out := models.HourlyForecast{
		City:        resp.City.Name,
		Country:     resp.City.Country,
		Coordinates: models.Coordinates{Lat: resp.City.Coord.Lat, Lng: resp.City.Coord.Lon},
		Sunrise:     unixTime(resp.City.Sunrise),
		Sunset:      unixTime(resp.City.Sunset),
		Samples:     make([]models.HourlySample, 0, len(resp.List)),
	}
	for _, item := range resp.List {
		out.Samples = append(out.Samples, models.HourlySample{
			Time:        unixTime(item.Dt),
			Temperature: item.Main.Temp,
			FeelsLike:   item.Main.FeelsLike,
			Pressure:    item.Main.Pressure,
			Humidity:    item.Main.Humidity,
			Visibility:  item.Visibility,
			WindSpeed:   item.Wind.Speed,
			WindDeg:     item.Wind.Deg,
			Clouds:      item.Clouds.All,
			PrecipProb:  item.Pop,
			Conditions:  mapConditions(item.Weather),
		})
	}
	return out, nil
}

// GetAirPollution fetches the current air-quality reading. An empty list from the
// provider yields AQI 0.
func (c *WeatherClient) GetAirPollution(ctx context.Context, coords models.Coordinates) (models.AirQuality, error) {
	params := url.Values{}
	params.Set("lat", formatCoord(coords.Lat))
	params.Set("lon", formatCoord(coords.Lng))
	params.Set("appid", c.apiKey)

	var resp airPollutionResponse
	if err := c.getJSON(ctx, "air_quality", "/data/2.5/air_pollution", params, &resp); err != nil {
		return models.AirQuality{}, err
	}
	out := models.AirQuality{Coordinates: models.Coordinates{Lat: resp.Coord.Lat, Lng: resp.Coord.Lon}}
	if len(resp.List) > 0 {
		out.AQI = resp.List[0].Main.AQI
		out.Components = resp.List[0].Components
		out.MeasuredAt = unixTime(resp.List[0].Dt)
	}
	return out, nil
}

// MapTileURL returns the {z}/{x}/{y} tile template for a map layer. An empty layer
// means precipitation.
func (c *WeatherClient) MapTileURL(layer string) (string, error) {
	if layer == "" {
		layer = LayerPrecipitation
	}
	name, ok := tileLayers[layer]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLayer, layer)
	}
	return c.tileURL + "/map/" + name + "/{z}/{x}/{y}.png?appid=" + url.QueryEscape(c.apiKey), nil
}

// ValidateAPIKey probes the current-weather endpoint once. Used at startup only to warn.
func (c *WeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.GetCurrentWeather(ctx, models.DefaultLocation.Coordinates, models.UnitsMetric)
	if err == nil {
		return nil
	}
	if CategorizeError(err) == ErrorCategoryUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}
	return fmt.Errorf("validation failed: %w", err)
}

func (c *WeatherClient) params(coords models.Coordinates, units models.Units) url.Values {
	if units == "" {
		units = models.UnitsMetric
	}
	params := url.Values{}
	params.Set("lat", formatCoord(coords.Lat))
	params.Set("lon", formatCoord(coords.Lng))
	params.Set("units", string(units))
	params.Set("appid", c.apiKey)
	return params
}

func mapConditions(in []owCondition) []models.WeatherCondition {
	out := make([]models.WeatherCondition, 0, len(in))
	for _, w := range in {
		out = append(out, models.WeatherCondition{ID: w.ID, Main: w.Main, Description: w.Description, Icon: w.Icon})
	}
	return out
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
