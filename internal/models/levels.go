package models

import "math"

// Level is a severity bucket with a display color and short advice.
type Level struct {
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// UVLevel classifies a UV index value.
func UVLevel(index float64) Level {
	switch {
	case index <= 2:
		return Level{"Low", "#4ade80", "No protection needed"}
	case index <= 5:
		return Level{"Moderate", "#fbbf24", "Wear sunscreen"}
	case index <= 7:
		return Level{"High", "#f97316", "Seek shade during midday"}
	case index <= 10:
		return Level{"Very High", "#ef4444", "Avoid sun exposure"}
	}
	return Level{"Extreme", "#a855f7", "Stay indoors"}
}

// AQILevel classifies an air-quality index bucket (1-5).
func AQILevel(aqi int) Level {
	switch aqi {
	case 1:
		return Level{"Good", "#4ade80", "Air quality is excellent"}
	case 2:
		return Level{"Fair", "#a3e635", "Acceptable air quality"}
	case 3:
		return Level{"Moderate", "#fbbf24", "Sensitive groups take care"}
	case 4:
		return Level{"Poor", "#f97316", "Everyone may experience effects"}
	case 5:
		return Level{"Very Poor", "#ef4444", "Health warnings issued"}
	}
	return Level{"Unknown", "#9ca3af", "Data unavailable"}
}

var compassPoints = [16]string{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}

// WindDirection converts degrees to a 16-point compass label.
func WindDirection(degrees float64) string {
	idx := int(math.Round(degrees/22.5)) % 16
	if idx < 0 {
		idx += 16
	}
	return compassPoints[idx]
}
