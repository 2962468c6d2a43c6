package state

import (
	"fmt"

	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/models"
)

// SetTheme stores the theme preference and persists the resolved light/dark value
// under the theme key. System is resolved through the color scheme detector now.
func (s *Store) SetTheme(t models.Theme) error {
	if !t.Valid() {
		return fmt.Errorf("%w: theme %q", ErrInvalidSetting, t)
	}
	s.update("set_theme", func(st *State) bool {
		st.Settings.Theme = t
		s.kv.Set(kvstore.KeySettings, st.Settings)
		st.EffectiveTheme = s.applyTheme(t)
		return true
	})
	return nil
}

func (s *Store) SetLanguage(l models.Language) error {
	if !l.Valid() {
		return fmt.Errorf("%w: language %q", ErrInvalidSetting, l)
	}
	s.update("set_language", func(st *State) bool {
		st.Settings.Language = l
		s.kv.Set(kvstore.KeySettings, st.Settings)
		s.kv.Set(kvstore.KeyLanguage, l)
		return true
	})
	return nil
}

func (s *Store) SetUnits(u models.Units) error {
	if !u.Valid() {
		return fmt.Errorf("%w: units %q", ErrInvalidSetting, u)
	}
	s.update("set_units", func(st *State) bool {
		st.Settings.Units = u
		s.kv.Set(kvstore.KeySettings, st.Settings)
		s.kv.Set(kvstore.KeyUnits, u)
		return true
	})
	return nil
}

func (s *Store) SetNotifications(enabled bool) {
	s.update("set_notifications", func(st *State) bool {
		st.Settings.Notifications = enabled
		s.kv.Set(kvstore.KeySettings, st.Settings)
		return true
	})
}

// ResetSettings restores default settings, drops the persisted settings object and
// re-applies the system theme.
func (s *Store) ResetSettings() {
	s.update("reset_settings", func(st *State) bool {
		st.Settings = models.DefaultSettings()
		s.kv.Remove(kvstore.KeySettings)
		st.EffectiveTheme = s.applyTheme(st.Settings.Theme)
		return true
	})
}

func (s *Store) Settings() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Settings
}

func (s *Store) Theme() models.Theme       { return s.Settings().Theme }
func (s *Store) Language() models.Language { return s.Settings().Language }
func (s *Store) Units() models.Units       { return s.Settings().Units }

// EffectiveTheme is the light/dark value currently applied.
func (s *Store) EffectiveTheme() models.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.EffectiveTheme
}

func (s *Store) applyTheme(t models.Theme) models.Theme {
	effective := s.resolveTheme(t)
	s.kv.Set(kvstore.KeyTheme, effective)
	return effective
}

func (s *Store) resolveTheme(t models.Theme) models.Theme {
	if t != models.ThemeSystem {
		return t
	}
	if s.colorScheme.PrefersDark() {
		return models.ThemeDark
	}
	return models.ThemeLight
}
