package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/observability"
)

// Storage keys, one per persisted slice.
const (
	KeyTheme          = "skyweather-theme"
	KeyLanguage       = "skyweather-language"
	KeyUnits          = "skyweather-units"
	KeyFavorites      = "skyweather-favorites"
	KeyRecentSearches = "skyweather-recent-searches"
	KeyLastLocation   = "skyweather-last-location"
	KeySettings       = "skyweather-settings"
)

// ErrParse marks a stored value that could not be decoded. It never leaves this package;
// Get recovers from it by returning the caller's fallback.
var ErrParse = errors.New("malformed stored value")

// Backend is a raw byte key-value storage. Get returns (nil, false, nil) for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Store persists JSON-encoded values on a Backend. Reads never fail and writes are
// best-effort: errors are logged and counted, not returned.
type Store struct {
	backend Backend
	logger  *zap.Logger
	timeout time.Duration
}

// New returns a Store over backend. A nil logger disables logging.
func New(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger, timeout: 2 * time.Second}
}

// Get decodes the value stored under key, or returns fallback when the key is missing,
// the backend fails, or the stored JSON is malformed.
func Get[T any](s *Store, key string, fallback T) T {
	raw, ok := s.read(key)
	if !ok {
		return fallback
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Debug("stored value unreadable, using fallback", zap.String("key", key), zap.Error(errors.Join(ErrParse, err)))
		return fallback
	}
	return v
}

// Set JSON-encodes value and writes it under key.
func (s *Store) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.writeFailed("set", key, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Set(ctx, key, raw); err != nil {
		s.writeFailed("set", key, err)
	}
}

// Remove deletes key. Missing keys are not an error.
func (s *Store) Remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Delete(ctx, key); err != nil {
		s.writeFailed("remove", key, err)
	}
}

// Has reports whether a value is stored under key.
func (s *Store) Has(key string) bool {
	_, ok := s.read(key)
	return ok
}

func (s *Store) read(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	raw, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		observability.PersistenceErrorsTotal.WithLabelValues("get").Inc()
		s.logger.Warn("persistence read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

func (s *Store) writeFailed(op, key string, err error) {
	observability.PersistenceErrorsTotal.WithLabelValues(op).Inc()
	s.logger.Warn("persistence write failed", zap.String("op", op), zap.String("key", key), zap.Error(err))
}
