package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kjstillabower/skyweather/internal/models"
)

func TestGeocodingClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if q.Get("name") != "London" || q.Get("count") != "10" || q.Get("language") != "uk" || q.Get("format") != "json" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"results": [
			{"id": 2643743, "name": "London", "latitude": 51.50853, "longitude": -0.12574, "country": "United Kingdom", "country_code": "GB", "admin1": "England", "timezone": "Europe/London", "population": 7556900},
			{"id": 6058560, "name": "London", "latitude": 42.98339, "longitude": -81.23304, "country": "Canada", "country_code": "CA", "admin1": "Ontario"}
		]}`))
	}))
	defer server.Close()

	client, err := NewGeocodingClient(Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewGeocodingClient() error = %v", err)
	}
	got, err := client.Search(context.Background(), "  London ", models.LanguageUkrainian)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].CountryCode != "GB" || got[0].Coordinates.Lat != 51.50853 || got[0].Population != 7556900 {
		t.Errorf("result[0] = %+v", got[0])
	}
	if got[1].Description() != "London, Ontario, Canada" {
		t.Errorf("Description() = %q", got[1].Description())
	}
}

func TestGeocodingClient_Search_ShortQuerySkipsNetwork(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	client, _ := NewGeocodingClient(Options{BaseURL: server.URL})
	for _, q := range []string{"", "L", "  K  ", "К"} {
		got, err := client.Search(context.Background(), q, "")
		if err != nil {
			t.Fatalf("Search(%q) error = %v", q, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Search(%q) = %v, want empty non-nil slice", q, got)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}

	if _, err := client.Search(context.Background(), "Ки", ""); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("two-character query calls = %d, want 1", n)
	}
}

func TestGeocodingClient_Search_NoResultsField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("language") != "en" {
			t.Errorf("language = %q, want en", r.URL.Query().Get("language"))
		}
		_, _ = w.Write([]byte(`{"generationtime_ms": 0.5}`))
	}))
	defer server.Close()

	client, _ := NewGeocodingClient(Options{BaseURL: server.URL})
	got, err := client.Search(context.Background(), "Nowhereville", "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}
