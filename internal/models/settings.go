package models

// Theme is the UI color theme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Valid reports whether t is a known theme.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// Language is the UI language.
type Language string

const (
	LanguageEnglish   Language = "en"
	LanguageUkrainian Language = "uk"
)

func (l Language) Valid() bool {
	return l == LanguageEnglish || l == LanguageUkrainian
}

// Units is the measurement system used for provider requests and display.
type Units string

const (
	UnitsMetric   Units = "metric"
	UnitsImperial Units = "imperial"
)

func (u Units) Valid() bool {
	return u == UnitsMetric || u == UnitsImperial
}

// Settings is the persisted UI preferences singleton.
type Settings struct {
	Theme         Theme    `json:"theme"`
	Language      Language `json:"language"`
	Units         Units    `json:"units"`
	Notifications bool     `json:"notifications"`
}

// DefaultSettings returns the settings used when nothing valid is stored.
func DefaultSettings() Settings {
	return Settings{
		Theme:         ThemeSystem,
		Language:      LanguageEnglish,
		Units:         UnitsMetric,
		Notifications: true,
	}
}

// DefaultLocation is Kyiv, used when no location has been persisted.
var DefaultLocation = Location{
	City:        "Kyiv",
	Country:     "Ukraine",
	Coordinates: Coordinates{Lat: 50.4501, Lng: 30.5234},
}

// PopularLocations are offered as one-click shortcuts.
var PopularLocations = []Location{
	{City: "New York", Country: "USA", Coordinates: Coordinates{Lat: 40.7128, Lng: -74.006}},
	{City: "London", Country: "UK", Coordinates: Coordinates{Lat: 51.5074, Lng: -0.1278}},
	{City: "Tokyo", Country: "Japan", Coordinates: Coordinates{Lat: 35.6895, Lng: 139.6917}},
	{City: "Paris", Country: "France", Coordinates: Coordinates{Lat: 48.8566, Lng: 2.3522}},
	{City: "Sydney", Country: "Australia", Coordinates: Coordinates{Lat: -33.8688, Lng: 151.2093}},
	{City: "Dubai", Country: "UAE", Coordinates: Coordinates{Lat: 25.2048, Lng: 55.2708}},
}
