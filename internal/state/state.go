// Package state holds the single process-wide application state. Every change goes
// through a named operation on Store; operations are synchronous, never touch the
// network and persist their slice inline.
package state

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/observability"
)

const (
	MaxFavorites      = 10
	MaxRecentSearches = 10
)

// ErrInvalidSetting is returned when a theme, language or units value is not one of the known values.
var ErrInvalidSetting = errors.New("invalid setting value")

// LocationState is the location slice.
type LocationState struct {
	Current     models.Location    `json:"current"`
	Coordinates models.Coordinates `json:"coordinates"`
	IsLoading   bool               `json:"isLoading"`
	Error       string             `json:"error,omitempty"`
	LastUpdated int64              `json:"lastUpdated,omitempty"` // unix millis, 0 until first change
}

// State is an immutable copy of the whole store.
type State struct {
	Location        LocationState          `json:"location"`
	Settings        models.Settings        `json:"settings"`
	EffectiveTheme  models.Theme           `json:"effectiveTheme"`
	Favorites       []models.FavoriteCity  `json:"favorites"`
	RecentSearches  []models.RecentSearch  `json:"recentSearches"`
	SelectedWeather *models.CurrentWeather `json:"selectedWeather"`
}

func (s State) clone() State {
	out := s
	out.Favorites = append([]models.FavoriteCity{}, s.Favorites...)
	out.RecentSearches = append([]models.RecentSearch{}, s.RecentSearches...)
	if s.SelectedWeather != nil {
		w := *s.SelectedWeather
		out.SelectedWeather = &w
	}
	return out
}

// ColorSchemeDetector reports the operating system's dark-mode preference.
type ColorSchemeDetector interface {
	PrefersDark() bool
}

// StaticColorScheme is a ColorSchemeDetector with a fixed answer.
type StaticColorScheme bool

func (s StaticColorScheme) PrefersDark() bool { return bool(s) }

// Options holds the Store's injectable collaborators. Nil fields get defaults:
// a light color scheme, time.Now, uuid v4 ids and a no-op logger.
type Options struct {
	ColorScheme ColorSchemeDetector
	Now         func() time.Time
	NewID       func() string
	Logger      *zap.Logger
}

// Store owns State. Listeners must not call back into the Store synchronously.
type Store struct {
	kv          *kvstore.Store
	colorScheme ColorSchemeDetector
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger

	mu    sync.Mutex
	state State

	notifyMu  sync.Mutex
	listeners map[int]func(State)
	nextID    int
}

// New loads the persisted slices from kv, falling back to defaults for anything
// missing or unreadable.
func New(kv *kvstore.Store, opts Options) *Store {
	if opts.ColorScheme == nil {
		opts.ColorScheme = StaticColorScheme(false)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Store{
		kv:          kv,
		colorScheme: opts.ColorScheme,
		now:         opts.Now,
		newID:       opts.NewID,
		logger:      opts.Logger,
		listeners:   make(map[int]func(State)),
	}
	s.state = s.load()
	return s
}

func (s *Store) load() State {
	var st State

	loc := kvstore.Get[*models.Location](s.kv, kvstore.KeyLastLocation, nil)
	if loc == nil || loc.City == "" {
		d := models.DefaultLocation
		loc = &d
	}
	st.Location = LocationState{Current: *loc, Coordinates: loc.Coordinates}

	st.Settings = loadSettings(s.kv)
	st.EffectiveTheme = s.resolveTheme(st.Settings.Theme)

	st.Favorites = kvstore.Get(s.kv, kvstore.KeyFavorites, []models.FavoriteCity{})
	if st.Favorites == nil {
		st.Favorites = []models.FavoriteCity{}
	}
	st.RecentSearches = kvstore.Get(s.kv, kvstore.KeyRecentSearches, []models.RecentSearch{})
	if st.RecentSearches == nil {
		st.RecentSearches = []models.RecentSearch{}
	}
	return st
}

// storedSettings lets each field fall back to its default independently.
type storedSettings struct {
	Theme         *models.Theme    `json:"theme"`
	Language      *models.Language `json:"language"`
	Units         *models.Units    `json:"units"`
	Notifications *bool            `json:"notifications"`
}

func loadSettings(kv *kvstore.Store) models.Settings {
	out := models.DefaultSettings()
	saved := kvstore.Get(kv, kvstore.KeySettings, storedSettings{})
	if saved.Theme != nil && saved.Theme.Valid() {
		out.Theme = *saved.Theme
	}
	if saved.Language != nil && saved.Language.Valid() {
		out.Language = *saved.Language
	}
	if saved.Units != nil && saved.Units.Valid() {
		out.Units = *saved.Units
	}
	if saved.Notifications != nil {
		out.Notifications = *saved.Notifications
	}
	return out
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to run after every mutation. The returned func unregisters it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.notifyMu.Unlock()

	return func() {
		s.notifyMu.Lock()
		delete(s.listeners, id)
		s.notifyMu.Unlock()
	}
}

// update applies fn under the state lock, then notifies listeners in mutation order.
// fn returns false when it changed nothing.
func (s *Store) update(op string, fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.state.clone()
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	observability.StateMutationsTotal.WithLabelValues(op).Inc()
	s.logger.Debug("state updated", zap.String("op", op))
	for _, fn := range s.listeners {
		fn(snap)
	}
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}
