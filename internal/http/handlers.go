package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/client"
	"github.com/kjstillabower/skyweather/internal/dashboard"
	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/observability"
	"github.com/kjstillabower/skyweather/internal/query"
	"github.com/kjstillabower/skyweather/internal/search"
	"github.com/kjstillabower/skyweather/internal/state"
	"github.com/kjstillabower/skyweather/internal/validation"
)

const maxBodyBytes = 64 << 10

// HealthConfig holds the dependency probes reported by GET /health.
type HealthConfig struct {
	Version   string
	StartTime time.Time
	// Checks are named probes (storage, cache, upstream). Any failure reports degraded.
	Checks map[string]func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	dash           *dashboard.Dashboard
	healthConfig   *HealthConfig
	logger         *zap.Logger
	maxQueryLength int

	draining         atomic.Bool
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. maxQueryLength caps search input in runes (0 disables).
func NewHandler(dash *dashboard.Dashboard, healthConfig *HealthConfig, logger *zap.Logger, maxQueryLength int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		dash:           dash,
		healthConfig:   healthConfig,
		logger:         logger,
		maxQueryLength: maxQueryLength,
	}
}

// SetDraining flips /health to shutting-down so load balancers stop routing here.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status, statusCode := "healthy", http.StatusOK
	checks := make(map[string]string)
	if h.draining.Load() {
		status, statusCode = "shutting-down", http.StatusServiceUnavailable
	} else if h.healthConfig != nil {
		for name, probe := range h.healthConfig.Checks {
			if err := probe(r.Context()); err != nil {
				checks[name] = "unhealthy"
				status, statusCode = "degraded", http.StatusServiceUnavailable
				observability.LoggerFromContext(r.Context(), h.logger).Debug("health probe failed", zap.String("check", name), zap.Error(err))
				continue
			}
			checks[name] = "healthy"
		}
	}

	h.healthStatusMu.Lock()
	if prev := h.healthStatusPrev; prev != "" && prev != status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", status))
	}
	h.healthStatusPrev = status
	h.healthStatusMu.Unlock()

	resp := map[string]interface{}{
		"status":    status,
		"service":   "skyweather",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.healthConfig != nil {
		resp["version"] = h.healthConfig.Version
		if !h.healthConfig.StartTime.IsZero() {
			resp["uptime"] = time.Since(h.healthConfig.StartTime).Round(time.Second).String()
		}
	}
	writeJSON(w, statusCode, resp)
}

// GetWeather handles GET /weather.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Weather(r.Context()))
}

// PostRetry handles POST /weather/retry/{endpoint}.
func (h *Handler) PostRetry(w http.ResponseWriter, r *http.Request) {
	endpoint := query.Endpoint(mux.Vars(r)["endpoint"])
	if err := h.dash.Retry(r.Context(), endpoint); err != nil {
		if errors.Is(err, query.ErrUnknownEndpoint) {
			writeError(w, r, http.StatusNotFound, "UNKNOWN_ENDPOINT", "unknown endpoint: "+string(endpoint))
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.dash.Weather(r.Context()))
}

// GetMapTile handles GET /map/tiles/{layer}.
func (h *Handler) GetMapTile(w http.ResponseWriter, r *http.Request) {
	layer := mux.Vars(r)["layer"]
	url, err := h.dash.MapTileURL(layer)
	if err != nil {
		if errors.Is(err, client.ErrUnknownLayer) {
			writeError(w, r, http.StatusNotFound, "UNKNOWN_LAYER", "unknown map layer: "+layer)
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"layer": layer, "url": url})
}

// GetLocation handles GET /location.
func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

// PutLocation handles PUT /location.
func (h *Handler) PutLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if !decodeAndValidate(w, r, &loc) {
		return
	}
	h.dash.State.SetLocation(loc)
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

// PutCoordinates handles PUT /location/coordinates.
func (h *Handler) PutCoordinates(w http.ResponseWriter, r *http.Request) {
	var c models.Coordinates
	if !decodeAndValidate(w, r, &c) {
		return
	}
	h.dash.State.SetCoordinates(c)
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

type locationStatusRequest struct {
	IsLoading *bool   `json:"isLoading"`
	Error     *string `json:"error" validate:"omitempty,max=500"`
}

// PutLocationStatus handles PUT /location/status, used by clients resolving device geolocation.
func (h *Handler) PutLocationStatus(w http.ResponseWriter, r *http.Request) {
	var req locationStatusRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if req.IsLoading != nil {
		h.dash.State.SetLocationLoading(*req.IsLoading)
	}
	if req.Error != nil {
		h.dash.State.SetLocationError(*req.Error)
	}
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

// DeleteLocation handles DELETE /location.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	h.dash.State.ClearLocation()
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

type settingsView struct {
	models.Settings
	EffectiveTheme models.Theme `json:"effectiveTheme"`
}

func (h *Handler) settings() settingsView {
	snap := h.dash.State.Snapshot()
	return settingsView{Settings: snap.Settings, EffectiveTheme: snap.EffectiveTheme}
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings())
}

type settingsPatch struct {
	Theme         *models.Theme    `json:"theme" validate:"omitempty,theme"`
	Language      *models.Language `json:"language" validate:"omitempty,language"`
	Units         *models.Units    `json:"units" validate:"omitempty,units"`
	Notifications *bool            `json:"notifications"`
}

// PatchSettings handles PATCH /settings. Only the fields present are changed.
func (h *Handler) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch settingsPatch
	if !decodeAndValidate(w, r, &patch) {
		return
	}
	st := h.dash.State
	var err error
	if patch.Theme != nil {
		err = errors.Join(err, st.SetTheme(*patch.Theme))
	}
	if patch.Language != nil {
		err = errors.Join(err, st.SetLanguage(*patch.Language))
	}
	if patch.Units != nil {
		err = errors.Join(err, st.SetUnits(*patch.Units))
	}
	if patch.Notifications != nil {
		st.SetNotifications(*patch.Notifications)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.settings())
}

// DeleteSettings handles DELETE /settings.
func (h *Handler) DeleteSettings(w http.ResponseWriter, r *http.Request) {
	h.dash.State.ResetSettings()
	writeJSON(w, http.StatusOK, h.settings())
}

// GetFavorites handles GET /favorites. With lat and lng query parameters it reports
// whether that point is a favorite instead.
func (h *Handler) GetFavorites(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("lat") || q.Has("lng") {
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
		if latErr != nil || lngErr != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "lat and lng must be numbers")
			return
		}
		c := models.Coordinates{Lat: lat, Lng: lng}
		writeJSON(w, http.StatusOK, map[string]bool{"isFavorite": h.dash.State.IsFavorite(c)})
		return
	}
	writeJSON(w, http.StatusOK, h.dash.State.Favorites())
}

type favoriteResult struct {
	Added     bool                  `json:"added"`
	Favorite  *models.FavoriteCity  `json:"favorite,omitempty"`
	Favorites []models.FavoriteCity `json:"favorites"`
}

// PostFavorite handles POST /favorites. A duplicate or an over-cap add is not an error;
// the response reports added=false with the unchanged list.
func (h *Handler) PostFavorite(w http.ResponseWriter, r *http.Request) {
	var in state.FavoriteInput
	if !decodeAndValidate(w, r, &in) {
		return
	}
	fav, ok := h.dash.State.AddFavorite(in)
	res := favoriteResult{Added: ok, Favorites: h.dash.State.Favorites()}
	if !ok {
		writeJSON(w, http.StatusOK, res)
		return
	}
	res.Favorite = &fav
	writeJSON(w, http.StatusCreated, res)
}

// DeleteFavorites handles DELETE /favorites.
func (h *Handler) DeleteFavorites(w http.ResponseWriter, r *http.Request) {
	h.dash.State.ClearFavorites()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteFavorite handles DELETE /favorites/{id}.
func (h *Handler) DeleteFavorite(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.dash.State.RemoveFavorite(id) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "favorite not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRecent handles GET /recent.
func (h *Handler) GetRecent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.State.RecentSearches())
}

// DeleteRecentAll handles DELETE /recent.
func (h *Handler) DeleteRecentAll(w http.ResponseWriter, r *http.Request) {
	h.dash.State.ClearRecentSearches()
	w.WriteHeader(http.StatusNoContent)
}

// DeleteRecent handles DELETE /recent/{id}.
func (h *Handler) DeleteRecent(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.dash.State.RemoveRecentSearch(id) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "recent search not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostRecentApply handles POST /recent/{id}/apply: the stored location becomes current
// without geocoding.
func (h *Handler) PostRecentApply(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := h.dash.Search.SelectRecent(id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.dash.State.Snapshot().Location)
}

// GetSearch handles GET /search.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.Search.Snapshot())
}

type searchInputRequest struct {
	Text string `json:"text"`
}

// PostSearchInput handles POST /search/input. The lookup itself is debounced, so the
// response shows the typing (or idle) phase; poll GET /search for results.
func (h *Handler) PostSearchInput(w http.ResponseWriter, r *http.Request) {
	var req searchInputRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	text, err := validation.SearchText(req.Text, h.maxQueryLength)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	h.dash.Search.Input(text)
	writeJSON(w, http.StatusAccepted, h.dash.Search.Snapshot())
}

type searchSelectRequest struct {
	Index *int `json:"index" validate:"required,gte=0"`
}

// PostSearchSelect handles POST /search/select.
func (h *Handler) PostSearchSelect(w http.ResponseWriter, r *http.Request) {
	var req searchSelectRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	loc, err := h.dash.Search.Select(*req.Index)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// DeleteSearch handles DELETE /search.
func (h *Handler) DeleteSearch(w http.ResponseWriter, r *http.Request) {
	h.dash.Search.Clear()
	writeJSON(w, http.StatusOK, h.dash.Search.Snapshot())
}

type selectedWeatherRequest struct {
	HourlyIndex *int `json:"hourlyIndex" validate:"required,gte=0"`
}

// PutSelectedWeather handles PUT /selected-weather: a sample of the loaded hourly
// forecast replaces current conditions.
func (h *Handler) PutSelectedWeather(w http.ResponseWriter, r *http.Request) {
	var req selectedWeatherRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	cw, err := h.dash.SelectHourly(r.Context(), *req.HourlyIndex)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cw)
}

// DeleteSelectedWeather handles DELETE /selected-weather.
func (h *Handler) DeleteSelectedWeather(w http.ResponseWriter, r *http.Request) {
	h.dash.State.SetSelectedWeather(nil)
	w.WriteHeader(http.StatusNoContent)
}

// GetPopular handles GET /popular.
func (h *Handler) GetPopular(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dash.PopularLocations())
}

// decodeAndValidate reads a JSON body into v and validates it, writing a 400 on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", msg)
		return false
	}
	if err := validation.Struct(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": client.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError writes a 503 Service Unavailable error response for upstream failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch weather data")
	observability.LoggerFromContext(r.Context(), nil).Debug("upstream error", zap.Error(err))
}

// writeDomainError maps core errors onto the HTTP error envelope.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalid), errors.Is(err, state.ErrInvalidSetting), errors.Is(err, search.ErrIndexOutOfRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, search.ErrRecentNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, search.ErrNotSelectable), errors.Is(err, dashboard.ErrNoForecast):
		writeError(w, r, http.StatusConflict, "CONFLICT", err.Error())
	case errors.Is(err, dashboard.ErrSampleOutOfRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, client.ErrNetwork), errors.Is(err, client.ErrParse), errors.Is(err, context.DeadlineExceeded):
		writeServiceError(w, r, err)
	case errors.Is(err, search.ErrControllerClosed):
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
	default:
		observability.LoggerFromContext(r.Context(), nil).Error("unhandled error", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}
