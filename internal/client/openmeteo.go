package client

import (
	"context"
	"net/url"

	"github.com/kjstillabower/skyweather/internal/models"
)

const (
	DefaultOpenMeteoURL = "https://api.open-meteo.com"

	providerOpenMeteo = "openmeteo"

	dailyFields = "temperature_2m_max,temperature_2m_min,apparent_temperature_max," +
		"precipitation_probability_max,weathercode,sunrise,sunset,windspeed_10m_max," +
		"winddirection_10m_dominant,uv_index_max,relative_humidity_2m_mean,surface_pressure_mean"
	forecastDays = "14"
)

// ForecastClient reads the daily forecast and UV series from Open-Meteo. No key is needed.
type ForecastClient struct {
	*provider
}

func NewForecastClient(opts Options) (*ForecastClient, error) {
	p, err := newProvider(providerOpenMeteo, DefaultOpenMeteoURL, opts)
	if err != nil {
		return nil, err
	}
	return &ForecastClient{provider: p}, nil
}

type dailyResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timezone  string  `json:"timezone"`
	Daily     struct {
		Time                        []string  `json:"time"`
		Temperature2mMax            []float64 `json:"temperature_2m_max"`
		Temperature2mMin            []float64 `json:"temperature_2m_min"`
		ApparentTemperatureMax      []float64 `json:"apparent_temperature_max"`
		PrecipitationProbabilityMax []float64 `json:"precipitation_probability_max"`
		WeatherCode                 []int     `json:"weathercode"`
		Sunrise                     []string  `json:"sunrise"`
		Sunset                      []string  `json:"sunset"`
		WindSpeed10mMax             []float64 `json:"windspeed_10m_max"`
		WindDirection10mDominant    []int     `json:"winddirection_10m_dominant"`
		UVIndexMax                  []float64 `json:"uv_index_max"`
		RelativeHumidity2mMean      []float64 `json:"relative_humidity_2m_mean"`
		SurfacePressureMean         []float64 `json:"surface_pressure_mean"`
		UVIndexClearSkyMax          []float64 `json:"uv_index_clear_sky_max"`
	} `json:"daily"`
}

// GetDailyForecast fetches 14 days of daily aggregates. Each day gets an icon and
// description derived from its weather code.
func (c *ForecastClient) GetDailyForecast(ctx context.Context, coords models.Coordinates) (models.DailyForecast, error) {
	params := coordParams(coords)
	params.Set("daily", dailyFields)
	params.Set("timezone", "auto")
	params.Set("forecast_days", forecastDays)

	var resp dailyResponse
	if err := c.getJSON(ctx, "daily", "/v1/forecast", params, &resp); err != nil {
		return models.DailyForecast{}, err
	}

	d := resp.Daily
	out := models.DailyForecast{
		Coordinates: models.Coordinates{Lat: resp.Latitude, Lng: resp.Longitude},
		Timezone:    resp.Timezone,
		Days:        make([]models.DailyForecastDay, 0, len(d.Time)),
	}
	for i, date := range d.Time {
		code := at(d.WeatherCode, i)
		out.Days = append(out.Days, models.DailyForecastDay{
			Date:                  date,
			TempMax:               at(d.Temperature2mMax, i),
			TempMin:               at(d.Temperature2mMin, i),
			ApparentTempMax:       at(d.ApparentTemperatureMax, i),
			PrecipProbMax:         at(d.PrecipitationProbabilityMax, i),
			WeatherCode:           code,
			Icon:                  WeatherIconFromCode(code),
			Description:           WeatherDescriptionFromCode(code),
			Sunrise:               at(d.Sunrise, i),
			Sunset:                at(d.Sunset, i),
			WindSpeedMax:          at(d.WindSpeed10mMax, i),
			WindDirectionDominant: at(d.WindDirection10mDominant, i),
			UVIndexMax:            at(d.UVIndexMax, i),
			HumidityMean:          at(d.RelativeHumidity2mMean, i),
			PressureMean:          at(d.SurfacePressureMean, i),
		})
	}
	return out, nil
}

// GetUVIndex fetches the daily UV maximum and clear-sky maximum.
func (c *ForecastClient) GetUVIndex(ctx context.Context, coords models.Coordinates) (models.UVIndex, error) {
	params := coordParams(coords)
	params.Set("daily", "uv_index_max,uv_index_clear_sky_max")
	params.Set("timezone", "auto")

	var resp dailyResponse
	if err := c.getJSON(ctx, "uv", "/v1/forecast", params, &resp); err != nil {
		return models.UVIndex{}, err
	}
	out := models.UVIndex{
		Coordinates: models.Coordinates{Lat: resp.Latitude, Lng: resp.Longitude},
		Timezone:    resp.Timezone,
		Days:        make([]models.UVIndexDay, 0, len(resp.Daily.Time)),
	}
	for i, date := range resp.Daily.Time {
		out.Days = append(out.Days, models.UVIndexDay{
			Date:        date,
			Max:         at(resp.Daily.UVIndexMax, i),
			ClearSkyMax: at(resp.Daily.UVIndexClearSkyMax, i),
		})
	}
	return out, nil
}

// WeatherIconFromCode maps a WMO weather code to an icon id. Unknown codes get the clear-sky icon.
func WeatherIconFromCode(code int) string {
	switch {
	case code < 0:
		return "01d"
	case code == 0:
		return "01d"
	case code <= 3:
		return "02d"
	case code <= 48:
		return "50d"
	case code <= 55:
		return "09d"
	case code <= 65:
		return "10d"
	case code <= 77:
		return "13d"
	case code <= 82:
		return "09d"
	case code <= 99:
		return "11d"
	}
	return "01d"
}

var weatherDescriptions = map[int]string{
	0:  "Clear sky",
	1:  "Mainly clear",
	2:  "Partly cloudy",
	3:  "Overcast",
	45: "Foggy",
	48: "Rime fog",
	51: "Light drizzle",
	53: "Moderate drizzle",
	55: "Dense drizzle",
	61: "Slight rain",
	63: "Moderate rain",
	65: "Heavy rain",
	71: "Slight snow",
	73: "Moderate snow",
	75: "Heavy snow",
	77: "Snow grains",
	80: "Slight rain showers",
	81: "Moderate rain showers",
	82: "Violent rain showers",
	95: "Thunderstorm",
	96: "Thunderstorm with hail",
	99: "Thunderstorm with heavy hail",
}

// WeatherDescriptionFromCode returns the English description of a WMO weather code, or "Unknown".
func WeatherDescriptionFromCode(code int) string {
	if d, ok := weatherDescriptions[code]; ok {
		return d
	}
	return "Unknown"
}

func coordParams(coords models.Coordinates) url.Values {
	params := url.Values{}
	params.Set("latitude", formatCoord(coords.Lat))
	params.Set("longitude", formatCoord(coords.Lng))
	return params
}

// at tolerates ragged daily arrays.
func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}
