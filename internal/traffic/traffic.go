package traffic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

const defaultMaxAge = 5 * time.Minute

// Tracker maintains sliding windows of upstream call outcomes per provider.
// Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	now      func() time.Time
	maxAge   time.Duration
	outcomes map[string]*outcomes
}

type outcomes struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

// NewTracker keeps outcomes for maxAge (5 minutes when <= 0). A nil now uses time.Now.
func NewTracker(maxAge time.Duration, now func() time.Time) *Tracker {
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{now: now, maxAge: maxAge, outcomes: make(map[string]*outcomes)}
}

// RecordOutcome records one call to provider; a nil err counts as success.
func (t *Tracker) RecordOutcome(provider string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomes[provider]
	if o == nil {
		o = &outcomes{}
		t.outcomes[provider] = o
	}
	now := t.now()
	if err == nil {
		o.successTimes = append(o.successTimes, now)
	} else {
		o.errorTimes = append(o.errorTimes, now)
	}
	t.pruneLocked(o, now)
}

// ErrorRate returns (errorCount, totalCount) for provider within the window.
func (t *Tracker) ErrorRate(provider string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o := t.outcomes[provider]
	if o == nil {
		return 0, 0
	}
	cutoff := t.now().Add(-window)
	errCount := countInWindow(o.errorTimes, cutoff)
	return errCount, errCount + countInWindow(o.successTimes, cutoff)
}

// Providers lists the providers with recorded outcomes, sorted.
func (t *Tracker) Providers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.outcomes))
	for name := range t.outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = make(map[string]*outcomes)
}

// Probe returns a health check that fails while any provider's error percentage within
// window exceeds maxErrorPct. Providers with fewer than minSamples calls are not judged.
func (t *Tracker) Probe(window time.Duration, minSamples, maxErrorPct int) func(ctx context.Context) error {
	return func(context.Context) error {
		for _, name := range t.Providers() {
			errs, total := t.ErrorRate(name, window)
			if total == 0 || total < minSamples {
				continue
			}
			if pct := errs * 100 / total; pct > maxErrorPct {
				return fmt.Errorf("%s error rate %d%% over %s (%d/%d calls)", name, pct, window, errs, total)
			}
		}
		return nil
	}
}

// countInWindow counts timestamps that are not before the cutoff time.
func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(o *outcomes, now time.Time) {
	cutoff := now.Add(-t.maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&o.successTimes)
	prune(&o.errorTimes)
}
