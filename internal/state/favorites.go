package state

import (
	"strings"

	"github.com/kjstillabower/skyweather/internal/kvstore"
	"github.com/kjstillabower/skyweather/internal/models"
)

// FavoriteInput is a favorite before it gets an id and timestamp.
type FavoriteInput struct {
	Name        string             `json:"name" validate:"required,max=120"`
	Country     string             `json:"country" validate:"max=120"`
	Coordinates models.Coordinates `json:"coordinates"`
}

// AddFavorite appends a favorite unless one with identical coordinates exists or the
// list already holds MaxFavorites. ok is false when nothing was added.
func (s *Store) AddFavorite(in FavoriteInput) (fav models.FavoriteCity, ok bool) {
	s.update("add_favorite", func(st *State) bool {
		if len(st.Favorites) >= MaxFavorites || containsCoords(st.Favorites, in.Coordinates) {
			return false
		}
		fav = models.FavoriteCity{
			ID:          s.newID(),
			Name:        in.Name,
			Country:     in.Country,
			Coordinates: in.Coordinates,
			AddedAt:     s.nowMillis(),
		}
		st.Favorites = append(st.Favorites, fav)
		s.kv.Set(kvstore.KeyFavorites, st.Favorites)
		ok = true
		return true
	})
	return fav, ok
}

// RemoveFavorite deletes the favorite with id and reports whether it existed.
func (s *Store) RemoveFavorite(id string) (found bool) {
	s.update("remove_favorite", func(st *State) bool {
		kept := st.Favorites[:0:0]
		for _, f := range st.Favorites {
			if f.ID == id {
				found = true
				continue
			}
			kept = append(kept, f)
		}
		if !found {
			return false
		}
		st.Favorites = kept
		s.kv.Set(kvstore.KeyFavorites, st.Favorites)
		return true
	})
	return found
}

func (s *Store) ClearFavorites() {
	s.update("clear_favorites", func(st *State) bool {
		st.Favorites = []models.FavoriteCity{}
		s.kv.Remove(kvstore.KeyFavorites)
		return true
	})
}

// AddRecentSearch drops any entry whose query matches case-insensitively, prepends the
// new entry and truncates the list to MaxRecentSearches.
func (s *Store) AddRecentSearch(query string, loc models.Location) (entry models.RecentSearch) {
	s.update("add_recent_search", func(st *State) bool {
		entry = models.RecentSearch{
			ID:        s.newID(),
			Query:     query,
			Location:  loc,
			Timestamp: s.nowMillis(),
		}
		next := make([]models.RecentSearch, 0, len(st.RecentSearches)+1)
		next = append(next, entry)
		for _, r := range st.RecentSearches {
			if strings.EqualFold(r.Query, query) {
				continue
			}
			next = append(next, r)
		}
		if len(next) > MaxRecentSearches {
			next = next[:MaxRecentSearches]
		}
		st.RecentSearches = next
		s.kv.Set(kvstore.KeyRecentSearches, st.RecentSearches)
		return true
	})
	return entry
}

// RemoveRecentSearch deletes the entry with id and reports whether it existed.
func (s *Store) RemoveRecentSearch(id string) (found bool) {
	s.update("remove_recent_search", func(st *State) bool {
		kept := st.RecentSearches[:0:0]
		for _, r := range st.RecentSearches {
			if r.ID == id {
				found = true
				continue
			}
			kept = append(kept, r)
		}
		if !found {
			return false
		}
		st.RecentSearches = kept
		s.kv.Set(kvstore.KeyRecentSearches, st.RecentSearches)
		return true
	})
	return found
}

func (s *Store) ClearRecentSearches() {
	s.update("clear_recent_searches", func(st *State) bool {
		st.RecentSearches = []models.RecentSearch{}
		s.kv.Remove(kvstore.KeyRecentSearches)
		return true
	})
}

func (s *Store) Favorites() []models.FavoriteCity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.FavoriteCity{}, s.state.Favorites...)
}

// IsFavorite reports whether a favorite with exactly these coordinates exists.
func (s *Store) IsFavorite(c models.Coordinates) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return containsCoords(s.state.Favorites, c)
}

func (s *Store) RecentSearches() []models.RecentSearch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.RecentSearch{}, s.state.RecentSearches...)
}

// RecentSearch looks up a recent search by id.
func (s *Store) RecentSearch(id string) (models.RecentSearch, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.state.RecentSearches {
		if r.ID == id {
			return r, true
		}
	}
	return models.RecentSearch{}, false
}

func containsCoords(favs []models.FavoriteCity, c models.Coordinates) bool {
	for _, f := range favs {
		if f.Coordinates.Equal(c) {
			return true
		}
	}
	return false
}
