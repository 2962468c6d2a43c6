// Package search drives place lookup as an explicit state machine:
//
//	Idle -> Typing -> Loading -> Results | Empty | Error -> Selected -> Idle
//
// Input is debounced. Each keystroke bumps a generation counter and a geocoding
// response is applied only if its generation is still current, so the latest
// input always wins regardless of response order. Dispatched requests are not aborted.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kjstillabower/skyweather/internal/models"
	"github.com/kjstillabower/skyweather/internal/observability"
)

// Phase is the controller's FSM state.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseTyping   Phase = "typing"
	PhaseLoading  Phase = "loading"
	PhaseResults  Phase = "results"
	PhaseEmpty    Phase = "empty"
	PhaseError    Phase = "error"
	PhaseSelected Phase = "selected"
)

const (
	DefaultDebounce  = 300 * time.Millisecond
	DefaultMinLength = 2
)

var (
	ErrNotSelectable    = errors.New("no results to select from")
	ErrIndexOutOfRange  = errors.New("result index out of range")
	ErrRecentNotFound   = errors.New("recent search not found")
	ErrControllerClosed = errors.New("search controller closed")
)

// Geocoder resolves a free-text query.
type Geocoder interface {
	Search(ctx context.Context, query string, language models.Language) ([]models.GeocodingResult, error)
}

// Store is the subset of the application state the controller mutates.
type Store interface {
	SetLocation(loc models.Location)
	AddRecentSearch(query string, loc models.Location) models.RecentSearch
	RecentSearch(id string) (models.RecentSearch, bool)
	Language() models.Language
}

// Snapshot is the externally visible controller state.
type Snapshot struct {
	Phase   Phase                    `json:"phase"`
	Query   string                   `json:"query"`
	Results []models.GeocodingResult `json:"results"`
	Error   string                   `json:"error,omitempty"`
}

type Options struct {
	Debounce  time.Duration
	MinLength int
	// Timeout bounds each geocoding request.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Controller is one search session. Safe for concurrent use.
type Controller struct {
	geocoder Geocoder
	store    Store
	debounce time.Duration
	minLen   int
	timeout  time.Duration
	logger   *zap.Logger

	mu         sync.Mutex
	phase      Phase
	query      string
	results    []models.GeocodingResult
	errMsg     string
	generation uint64
	timer      *time.Timer
	closed     bool

	notifyMu  sync.Mutex
	listeners []func(Snapshot)
}

func NewController(geocoder Geocoder, store Store, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		geocoder: geocoder,
		store:    store,
		debounce: opts.Debounce,
		minLen:   opts.MinLength,
		timeout:  opts.Timeout,
		logger:   opts.Logger,
		phase:    PhaseIdle,
	}
}

// OnChange registers fn to receive every state transition. fn must not call back into
// the controller.
func (c *Controller) OnChange(fn func(Snapshot)) {
	c.notifyMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.notifyMu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Input records new query text and restarts the debounce window. Text shorter than
// the minimum length returns to Idle without a lookup.
func (c *Controller) Input(text string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.query = text
	c.arm()
	c.transitionLocked()
}

// Refresh re-runs the lookup for the current query, e.g. after a language change.
func (c *Controller) Refresh() {
	c.mu.Lock()
	if c.closed || c.phase == PhaseIdle {
		c.mu.Unlock()
		return
	}
	c.arm()
	c.transitionLocked()
}

// arm supersedes any pending work and schedules a lookup if the query is long enough.
// Must hold c.mu.
func (c *Controller) arm() {
	c.generation++
	c.stopTimer()
	if utf8.RuneCountInString(strings.TrimSpace(c.query)) < c.minLen {
		c.phase = PhaseIdle
		c.results = nil
		c.errMsg = ""
		return
	}
	c.phase = PhaseTyping
	gen := c.generation
	c.timer = time.AfterFunc(c.debounce, func() { c.lookup(gen) })
}

// lookup runs on the debounce timer's goroutine.
func (c *Controller) lookup(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	query := strings.TrimSpace(c.query)
	if utf8.RuneCountInString(query) < c.minLen {
		c.phase = PhaseIdle
		c.results = nil
		c.errMsg = ""
		c.transitionLocked()
		return
	}
	c.phase = PhaseLoading
	c.errMsg = ""
	c.transitionLocked()

	language := c.store.Language()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	observability.SearchGeocodeTotal.Inc()
	results, err := c.geocoder.Search(ctx, query, language)

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		observability.SearchStaleResponsesTotal.Inc()
		c.logger.Debug("discarding stale geocoding response", zap.String("query", query))
		return
	}
	switch {
	case err != nil:
		c.phase = PhaseError
		c.results = nil
		c.errMsg = err.Error()
		c.logger.Warn("geocoding failed", zap.String("query", query), zap.Error(err))
	case len(results) == 0:
		c.phase = PhaseEmpty
		c.results = nil
	default:
		c.phase = PhaseResults
		c.results = results
	}
	c.transitionLocked()
}

// Select applies the result at index: the location becomes current, a recent search
// is recorded and the session returns to Idle. Only valid in the Results phase.
func (c *Controller) Select(index int) (models.Location, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.Location{}, ErrControllerClosed
	}
	if c.phase != PhaseResults {
		phase := c.phase
		c.mu.Unlock()
		return models.Location{}, fmt.Errorf("%w: phase %s", ErrNotSelectable, phase)
	}
	if index < 0 || index >= len(c.results) {
		n := len(c.results)
		c.mu.Unlock()
		return models.Location{}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, n)
	}
	picked := c.results[index]
	c.generation++
	gen := c.generation
	c.stopTimer()
	c.phase = PhaseSelected
	c.transitionLocked()

	loc := picked.Location()
	c.store.SetLocation(loc)
	c.store.AddRecentSearch(picked.Description(), loc)

	c.mu.Lock()
	if c.generation != gen {
		// Newer input arrived while the store was updated; it owns the session now.
		c.mu.Unlock()
		return loc, nil
	}
	c.reset()
	c.transitionLocked()
	return loc, nil
}

// SelectRecent re-applies a stored recent search without geocoding.
func (c *Controller) SelectRecent(id string) (models.Location, error) {
	rs, ok := c.store.RecentSearch(id)
	if !ok {
		return models.Location{}, fmt.Errorf("%w: %s", ErrRecentNotFound, id)
	}
	c.store.SetLocation(rs.Location)
	return rs.Location, nil
}

// Clear abandons the session and returns to Idle.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.generation++
	c.stopTimer()
	c.reset()
	c.transitionLocked()
}

// Close stops pending timers. Later input is ignored and in-flight responses are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	c.stopTimer()
}

// Must hold c.mu.
func (c *Controller) reset() {
	c.phase = PhaseIdle
	c.query = ""
	c.results = nil
	c.errMsg = ""
}

// Must hold c.mu.
func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:   c.phase,
		Query:   c.query,
		Results: append([]models.GeocodingResult{}, c.results...),
		Error:   c.errMsg,
	}
}

// transitionLocked releases c.mu and notifies listeners. Holding notifyMu across the
// handoff keeps notifications in transition order.
func (c *Controller) transitionLocked() {
	snap := c.snapshotLocked()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	for _, fn := range c.listeners {
		fn(snap)
	}
}
