package client

import (
	"context"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/kjstillabower/skyweather/internal/models"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com"

	providerGeocoding = "geocoding"

	// MinQueryLength is the shortest trimmed query, in characters, that reaches the provider.
	MinQueryLength = 2

	geocodingCount = "10"
)

// GeocodingClient resolves free-text place names to candidate locations.
type GeocodingClient struct {
	*provider
}

func NewGeocodingClient(opts Options) (*GeocodingClient, error) {
	p, err := newProvider(providerGeocoding, DefaultGeocodingURL, opts)
	if err != nil {
		return nil, err
	}
	return &GeocodingClient{provider: p}, nil
}

type geocodingResponse struct {
	Results []struct {
		ID          int64   `json:"id"`
		Name        string  `json:"name"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
		Country     string  `json:"country"`
		CountryCode string  `json:"country_code"`
		Admin1      string  `json:"admin1"`
		Admin2      string  `json:"admin2"`
		Timezone    string  `json:"timezone"`
		Population  int64   `json:"population"`
	} `json:"results"`
}

// Search returns up to ten candidates for query. Queries shorter than MinQueryLength
// return an empty slice without a network call. An empty language means English.
func (c *GeocodingClient) Search(ctx context.Context, query string, language models.Language) ([]models.GeocodingResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return []models.GeocodingResult{}, nil
	}
	if language == "" {
		language = models.LanguageEnglish
	}

	params := url.Values{}
	params.Set("name", query)
	params.Set("count", geocodingCount)
	params.Set("language", string(language))
	params.Set("format", "json")

	var resp geocodingResponse
	if err := c.getJSON(ctx, "search", "/v1/search", params, &resp); err != nil {
		return nil, err
	}

	out := make([]models.GeocodingResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		out = append(out, models.GeocodingResult{
			ID:          r.ID,
			Name:        r.Name,
			Admin1:      r.Admin1,
			Admin2:      r.Admin2,
			Country:     r.Country,
			CountryCode: r.CountryCode,
			Coordinates: models.Coordinates{Lat: r.Latitude, Lng: r.Longitude},
			Timezone:    r.Timezone,
			Population:  r.Population,
		})
	}
	return out, nil
}
