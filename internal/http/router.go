package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/skyweather/internal/observability"
)

// RouterConfig tunes the middleware chain. A nil Limiter disables rate limiting.
type RouterConfig struct {
	Limiter        *rate.Limiter
	RequestTimeout time.Duration
}

// NewRouter mounts every route on a gorilla/mux router. Health and metrics sit outside
// the rate limiter so probes keep working under load.
func NewRouter(h *Handler, logger *zap.Logger, cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(RateLimitMiddleware(cfg.Limiter))
	api.Use(TimeoutMiddleware(cfg.RequestTimeout))

	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/retry/{endpoint}", h.PostRetry).Methods(http.MethodPost)
	api.HandleFunc("/map/tiles/{layer}", h.GetMapTile).Methods(http.MethodGet)

	api.HandleFunc("/location", h.GetLocation).Methods(http.MethodGet)
	api.HandleFunc("/location", h.PutLocation).Methods(http.MethodPut)
	api.HandleFunc("/location", h.DeleteLocation).Methods(http.MethodDelete)
	api.HandleFunc("/location/coordinates", h.PutCoordinates).Methods(http.MethodPut)
	api.HandleFunc("/location/status", h.PutLocationStatus).Methods(http.MethodPut)

	api.HandleFunc("/settings", h.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", h.PatchSettings).Methods(http.MethodPatch)
	api.HandleFunc("/settings", h.DeleteSettings).Methods(http.MethodDelete)

	api.HandleFunc("/favorites", h.GetFavorites).Methods(http.MethodGet)
	api.HandleFunc("/favorites", h.PostFavorite).Methods(http.MethodPost)
	api.HandleFunc("/favorites", h.DeleteFavorites).Methods(http.MethodDelete)
	api.HandleFunc("/favorites/{id}", h.DeleteFavorite).Methods(http.MethodDelete)

	api.HandleFunc("/recent", h.GetRecent).Methods(http.MethodGet)
	api.HandleFunc("/recent", h.DeleteRecentAll).Methods(http.MethodDelete)
	api.HandleFunc("/recent/{id}", h.DeleteRecent).Methods(http.MethodDelete)
	api.HandleFunc("/recent/{id}/apply", h.PostRecentApply).Methods(http.MethodPost)

	api.HandleFunc("/search", h.GetSearch).Methods(http.MethodGet)
	api.HandleFunc("/search", h.DeleteSearch).Methods(http.MethodDelete)
	api.HandleFunc("/search/input", h.PostSearchInput).Methods(http.MethodPost)
	api.HandleFunc("/search/select", h.PostSearchSelect).Methods(http.MethodPost)

	api.HandleFunc("/selected-weather", h.PutSelectedWeather).Methods(http.MethodPut)
	api.HandleFunc("/selected-weather", h.DeleteSelectedWeather).Methods(http.MethodDelete)

	api.HandleFunc("/popular", h.GetPopular).Methods(http.MethodGet)
	return router
}
