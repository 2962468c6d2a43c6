package models

import "time"

// Coordinates identifies a geographic point. Equality is exact float comparison.
type Coordinates struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lng float64 `json:"lng" validate:"longitude"`
}

// Equal reports whether both coordinates match exactly.
func (c Coordinates) Equal(o Coordinates) bool {
	return c.Lat == o.Lat && c.Lng == o.Lng
}

// Location is the user's currently selected place.
type Location struct {
	City        string      `json:"city" validate:"required,max=120"`
	Country     string      `json:"country" validate:"max=120"`
	Coordinates Coordinates `json:"coordinates"`
}

// FavoriteCity is an entry of the favorites list.
type FavoriteCity struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
	AddedAt     int64       `json:"addedAt"` // unix millis
}

// RecentSearch is a geocoding selection remembered for quick re-use.
type RecentSearch struct {
	ID        string   `json:"id"`
	Query     string   `json:"query"`
	Location  Location `json:"location"`
	Timestamp int64    `json:"timestamp"` // unix millis
}

// WeatherCondition is a provider condition code with its text and icon id.
type WeatherCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// CurrentWeather holds current conditions. A picked hourly sample uses the same shape.
type CurrentWeather struct {
	Coordinates   Coordinates        `json:"coordinates"`
	Name          string             `json:"name"`
	Country       string             `json:"country"`
	Conditions    []WeatherCondition `json:"conditions"`
	Temperature   float64            `json:"temperature"`
	FeelsLike     float64            `json:"feelsLike"`
	TempMin       float64            `json:"tempMin"`
	TempMax       float64            `json:"tempMax"`
	Pressure      float64            `json:"pressure"`
	Humidity      int                `json:"humidity"`
	Visibility    int                `json:"visibility"`
	WindSpeed     float64            `json:"windSpeed"`
	WindDeg       int                `json:"windDeg"`
	WindGust      float64            `json:"windGust,omitempty"`
	Clouds        int                `json:"clouds"`
	PrecipProb    float64            `json:"precipProbability,omitempty"`
	Sunrise       time.Time          `json:"sunrise"`
	Sunset        time.Time          `json:"sunset"`
	TimezoneShift int                `json:"timezoneOffset"` // seconds from UTC
	ObservedAt    time.Time          `json:"observedAt"`
}

// HourlySample is one step of the multi-step hourly forecast.
type HourlySample struct {
	Time        time.Time          `json:"time"`
	Temperature float64            `json:"temperature"`
	FeelsLike   float64            `json:"feelsLike"`
	Pressure    float64            `json:"pressure"`
	Humidity    int                `json:"humidity"`
	Visibility  int                `json:"visibility"`
	WindSpeed   float64            `json:"windSpeed"`
	WindDeg     int                `json:"windDeg"`
	Clouds      int                `json:"clouds"`
	PrecipProb  float64            `json:"precipProbability"`
	Conditions  []WeatherCondition `json:"conditions"`
}

// HourlyForecast is the 5-day/3-hour forecast for a place.
type HourlyForecast struct {
	City        string         `json:"city"`
	Country     string         `json:"country"`
	Coordinates Coordinates    `json:"coordinates"`
	Sunrise     time.Time      `json:"sunrise"`
	Sunset      time.Time      `json:"sunset"`
	Samples     []HourlySample `json:"samples"`
}

// AsCurrent converts an hourly sample into the current-conditions shape so it can
// be used as a selected weather override.
func (h HourlySample) AsCurrent(f HourlyForecast) CurrentWeather {
	return CurrentWeather{
		Coordinates: f.Coordinates,
		Name:        f.City,
		Country:     f.Country,
		Conditions:  h.Conditions,
		Temperature: h.Temperature,
		FeelsLike:   h.FeelsLike,
		Pressure:    h.Pressure,
		Humidity:    h.Humidity,
		Visibility:  h.Visibility,
		WindSpeed:   h.WindSpeed,
		WindDeg:     h.WindDeg,
		Clouds:      h.Clouds,
		PrecipProb:  h.PrecipProb,
		Sunrise:     f.Sunrise,
		Sunset:      f.Sunset,
		ObservedAt:  h.Time,
	}
}

// DailyForecastDay is one day of the daily forecast.
type DailyForecastDay struct {
	Date                  string  `json:"date"`
	TempMax               float64 `json:"tempMax"`
	TempMin               float64 `json:"tempMin"`
	ApparentTempMax       float64 `json:"apparentTempMax"`
	PrecipProbMax         float64 `json:"precipProbabilityMax"`
	WeatherCode           int     `json:"weatherCode"`
	Icon                  string  `json:"icon"`
	Description           string  `json:"description"`
	Sunrise               string  `json:"sunrise"`
	Sunset                string  `json:"sunset"`
	WindSpeedMax          float64 `json:"windSpeedMax"`
	WindDirectionDominant int     `json:"windDirectionDominant"`
	UVIndexMax            float64 `json:"uvIndexMax"`
	HumidityMean          float64 `json:"humidityMean"`
	PressureMean          float64 `json:"pressureMean"`
}

// DailyForecast is the 14-day forecast.
type DailyForecast struct {
	Coordinates Coordinates        `json:"coordinates"`
	Timezone    string             `json:"timezone"`
	Days        []DailyForecastDay `json:"days"`
}

// UVIndexDay is the UV maximum for one day.
type UVIndexDay struct {
	Date        string  `json:"date"`
	Max         float64 `json:"max"`
	ClearSkyMax float64 `json:"clearSkyMax"`
}

// UVIndex is the daily UV series for a place.
type UVIndex struct {
	Coordinates Coordinates  `json:"coordinates"`
	Timezone    string       `json:"timezone"`
	Days        []UVIndexDay `json:"days"`
}

// AirQuality is the air-pollution reading. AQI is 1 (good) to 5 (very poor).
type AirQuality struct {
	Coordinates Coordinates        `json:"coordinates"`
	AQI         int                `json:"aqi"`
	Components  map[string]float64 `json:"components"`
	MeasuredAt  time.Time          `json:"measuredAt"`
}

// GeocodingResult is one candidate place returned by the geocoding provider.
type GeocodingResult struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Admin1      string      `json:"admin1,omitempty"`
	Admin2      string      `json:"admin2,omitempty"`
	Country     string      `json:"country"`
	CountryCode string      `json:"countryCode"`
	Coordinates Coordinates `json:"coordinates"`
	Timezone    string      `json:"timezone,omitempty"`
	Population  int64       `json:"population,omitempty"`
}

// Description renders "name, admin1, country", skipping an empty region.
func (g GeocodingResult) Description() string {
	s := g.Name + ", "
	if g.Admin1 != "" {
		s += g.Admin1 + ", "
	}
	return s + g.Country
}

// Location converts the candidate into a selectable Location.
func (g GeocodingResult) Location() Location {
	return Location{City: g.Name, Country: g.Country, Coordinates: g.Coordinates}
}
