package state

import (
	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/models"
)

// SetLocation replaces the current location and coordinates, clears any location
// error and persists the location.
func (s *Store) SetLocation(loc models.Location) {
	s.update("set_location", func(st *State) bool {
		st.Location.Current = loc
		st.Location.Coordinates = loc.Coordinates
		st.Location.Error = ""
		st.Location.LastUpdated = s.nowMillis()
		s.kv.Set(kvstore.KeyLastLocation, loc)
		return true
	})
}

// SetCoordinates updates coordinates only, leaving the display name untouched.
func (s *Store) SetCoordinates(c models.Coordinates) {
	s.update("set_coordinates", func(st *State) bool {
		st.Location.Coordinates = c
		st.Location.LastUpdated = s.nowMillis()
		return true
	})
}

func (s *Store) SetLocationLoading(loading bool) {
	s.update("set_location_loading", func(st *State) bool {
		st.Location.IsLoading = loading
		return true
	})
}

// SetLocationError records msg and ends loading. An empty msg clears the error.
func (s *Store) SetLocationError(msg string) {
	s.update("set_location_error", func(st *State) bool {
		st.Location.Error = msg
		st.Location.IsLoading = false
		return true
	})
}

// ClearLocation restores the default location and forgets the persisted one.
func (s *Store) ClearLocation() {
	s.update("clear_location", func(st *State) bool {
		st.Location.Current = models.DefaultLocation
		st.Location.Coordinates = models.DefaultLocation.Coordinates
		st.Location.Error = ""
		s.kv.Remove(kvstore.KeyLastLocation)
		return true
	})
}

// SetSelectedWeather sets or, with nil, clears the hour-selection override. Never persisted.
func (s *Store) SetSelectedWeather(w *models.CurrentWeather) {
	s.update("set_selected_weather", func(st *State) bool {
		if w == nil {
			st.SelectedWeather = nil
			return true
		}
		c := *w
		st.SelectedWeather = &c
		return true
	})
}

func (s *Store) Location() models.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Location.Current
}

// Coordinates returns the coordinates every weather query must use.
func (s *Store) Coordinates() models.Coordinates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Location.Coordinates
}

func (s *Store) SelectedWeather() *models.CurrentWeather {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.SelectedWeather == nil {
		return nil
	}
	w := *s.state.SelectedWeather
	return &w
}
