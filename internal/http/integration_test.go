//go:build integration
// +build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/dashboard"
	"github.com/kjstillabower/skyweather/internal/search"
	testhelpers "github.com/kjstillabower/skyweather/internal/testhelpers"
)

func setupIntegrationRouter(t *testing.T) (http.Handler, *dashboard.Dashboard) {
	t.Helper()
	cfg := testhelpers.GetIntegrationConfig(t)
	dash, _, cleanup := testhelpers.SetupIntegrationDashboard(t, cfg)
	t.Cleanup(cleanup)

	handler := NewHandler(dash, nil, zap.NewNop(), 100)
	return NewRouter(handler, zap.NewNop(), RouterConfig{RequestTimeout: 20 * time.Second}), dash
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestIntegration_GetWeather_LiveProviders checks every endpoint against the real APIs
// for the default location.
func TestIntegration_GetWeather_LiveProviders(t *testing.T) {
	router, _ := setupIntegrationRouter(t)

	w := serve(router, "GET", "/weather", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200. Body: %s", w.Code, w.Body.String())
	}
	var view dashboard.WeatherView
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for name, isErr := range map[string]bool{
		"current":     view.Current.IsError,
		"hourly":      view.Hourly.IsError,
		"daily":       view.Daily.IsError,
		"air_quality": view.AirQuality.IsError,
		"uv":          view.UV.IsError,
	} {
		if isErr {
			t.Errorf("%s failed against live provider", name)
		}
	}
	if view.Daily.Data != nil && len(view.Daily.Data.Days) != 14 {
		t.Errorf("daily days = %d, want 14", len(view.Daily.Data.Days))
	}
}

// TestIntegration_Search_SelectsFirstResult runs the debounced search against the live
// geocoder and applies the first candidate.
func TestIntegration_Search_SelectsFirstResult(t *testing.T) {
	router, dash := setupIntegrationRouter(t)

	if w := serve(router, "POST", "/search/input", `{"text":"London"}`); w.Code != http.StatusAccepted {
		t.Fatalf("input status = %d", w.Code)
	}
	deadline := time.Now().Add(15 * time.Second)
	for dash.Search.Snapshot().Phase != search.PhaseResults {
		if time.Now().After(deadline) {
			t.Fatalf("search never produced results: %+v", dash.Search.Snapshot())
		}
		time.Sleep(50 * time.Millisecond)
	}

	w := serve(router, "POST", "/search/select", `{"index":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select status = %d. Body: %s", w.Code, w.Body.String())
	}
	if got := dash.State.Location().City; got != "London" {
		t.Errorf("location = %q, want London", got)
	}
	if n := len(dash.State.RecentSearches()); n != 1 {
		t.Errorf("recent searches = %d, want 1", n)
	}
}
