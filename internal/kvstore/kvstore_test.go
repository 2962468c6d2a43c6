package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/skyweather/internal/models"
)

type failingBackend struct{}

func (failingBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, errors.New("quota exceeded")
}
func (failingBackend) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("quota exceeded")
}
func (failingBackend) Delete(ctx context.Context, key string) error {
	return errors.New("quota exceeded")
}

func TestStore_RoundTrip(t *testing.T) {
	s := New(NewMemoryBackend(), nil)
	loc := models.Location{City: "Lviv", Country: "Ukraine", Coordinates: models.Coordinates{Lat: 49.8397, Lng: 24.0297}}

	s.Set(KeyLastLocation, loc)

	got := Get(s, KeyLastLocation, models.DefaultLocation)
	assert.Equal(t, loc, got)
	assert.True(t, s.Has(KeyLastLocation))
}

func TestStore_Get_MissingReturnsFallback(t *testing.T) {
	s := New(NewMemoryBackend(), nil)

	got := Get(s, KeyFavorites, []models.FavoriteCity{})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestStore_Get_MalformedJSONReturnsFallback(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Set(context.Background(), KeySettings, []byte("{not json")))
	s := New(backend, nil)

	got := Get(s, KeySettings, models.DefaultSettings())
	assert.Equal(t, models.DefaultSettings(), got)
}

func TestStore_Get_BackendErrorReturnsFallback(t *testing.T) {
	s := New(failingBackend{}, nil)

	got := Get(s, KeyLanguage, "en")
	assert.Equal(t, "en", got)
}

func TestStore_SetAndRemove_SwallowErrors(t *testing.T) {
	s := New(failingBackend{}, nil)

	assert.NotPanics(t, func() {
		s.Set(KeyTheme, "dark")
		s.Set(KeyTheme, func() {}) // unencodable
		s.Remove(KeyTheme)
	})
}

func TestStore_Remove(t *testing.T) {
	s := New(NewMemoryBackend(), nil)
	s.Set(KeyTheme, "dark")
	s.Remove(KeyTheme)

	assert.False(t, s.Has(KeyTheme))
	assert.Equal(t, "light", Get(s, KeyTheme, "light"))
}

func TestFileBackend_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "skyweather.json")

	fb, err := NewFileBackend(path)
	require.NoError(t, err)
	s := New(fb, nil)
	s.Set(KeyUnits, "imperial")
	s.Set(KeySettings, models.Settings{Theme: models.ThemeDark, Language: models.LanguageUkrainian, Units: models.UnitsImperial})

	reopened, err := NewFileBackend(path)
	require.NoError(t, err)
	s2 := New(reopened, nil)

	assert.Equal(t, "imperial", Get(s2, KeyUnits, "metric"))
	assert.Equal(t, models.ThemeDark, Get(s2, KeySettings, models.DefaultSettings()).Theme)
}

func TestFileBackend_InvalidJSONValueFallsBack(t *testing.T) {
	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	require.NoError(t, fb.Set(context.Background(), KeyFavorites, []byte("garbage")))

	s := New(fb, nil)
	got := Get(s, KeyFavorites, []models.FavoriteCity{})
	assert.Empty(t, got)
}

func TestFileBackend_DeleteMissingKey(t *testing.T) {
	fb, err := NewFileBackend(filepath.Join(t.TempDir(), "kv.json"))
	require.NoError(t, err)
	assert.NoError(t, fb.Delete(context.Background(), "nope"))
}

func TestRedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	rb, err := NewRedisBackend(ctx, RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	defer rb.Close()

	s := New(rb, nil)
	favs := []models.FavoriteCity{{ID: "a", Name: "Tokyo", Country: "Japan", Coordinates: models.Coordinates{Lat: 35.6895, Lng: 139.6917}}}
	s.Set(KeyFavorites, favs)

	assert.True(t, mr.Exists(redisKeyPrefix+KeyFavorites))
	assert.Equal(t, favs, Get(s, KeyFavorites, []models.FavoriteCity{}))

	s.Remove(KeyFavorites)
	assert.False(t, mr.Exists(redisKeyPrefix+KeyFavorites))
	assert.NoError(t, rb.Ping(ctx))
}

func TestRedisBackend_Unreachable(t *testing.T) {
	_, err := NewRedisBackend(context.Background(), RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestSQLiteBackend(t *testing.T) {
	sb, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	defer sb.Close()

	s := New(sb, nil)
	s.Set(KeyLanguage, "uk")
	s.Set(KeyLanguage, "en")
	assert.Equal(t, "en", Get(s, KeyLanguage, "uk"))

	s.Remove(KeyLanguage)
	assert.False(t, s.Has(KeyLanguage))
}
