package traffic

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker() (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(5*time.Minute, clock.Now), clock
}

var errUpstream = errors.New("upstream down")

func TestErrorRate_Empty(t *testing.T) {
	tr, _ := newTestTracker()
	if errs, total := tr.ErrorRate("openweather", time.Minute); errs != 0 || total != 0 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 0)", errs, total)
	}
}

func TestErrorRate_SuccessAndError(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordOutcome("openweather", nil)
	tr.RecordOutcome("openweather", nil)
	tr.RecordOutcome("openweather", errUpstream)
	tr.RecordOutcome("openmeteo", errUpstream)

	if errs, total := tr.ErrorRate("openweather", time.Minute); errs != 1 || total != 3 {
		t.Errorf("openweather ErrorRate() = (%d, %d), want (1, 3)", errs, total)
	}
	if errs, total := tr.ErrorRate("openmeteo", time.Minute); errs != 1 || total != 1 {
		t.Errorf("openmeteo ErrorRate() = (%d, %d), want (1, 1)", errs, total)
	}
}

func TestErrorRate_WindowExcludesOldOutcomes(t *testing.T) {
	tr, clock := newTestTracker()
	tr.RecordOutcome("openweather", errUpstream)
	clock.Advance(2 * time.Minute)
	tr.RecordOutcome("openweather", nil)

	if errs, total := tr.ErrorRate("openweather", time.Minute); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want (0, 1)", errs, total)
	}
}

func TestRecordOutcome_PrunesBeyondMaxAge(t *testing.T) {
	tr, clock := newTestTracker()
	tr.RecordOutcome("openweather", errUpstream)
	clock.Advance(6 * time.Minute)
	tr.RecordOutcome("openweather", nil)

	if errs, total := tr.ErrorRate("openweather", time.Hour); errs != 0 || total != 1 {
		t.Errorf("ErrorRate() = (%d, %d), want pruned to (0, 1)", errs, total)
	}
}

func TestProviders_SortedAndReset(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordOutcome("openweather", nil)
	tr.RecordOutcome("geocoding", nil)

	got := tr.Providers()
	if len(got) != 2 || got[0] != "geocoding" || got[1] != "openweather" {
		t.Errorf("Providers() = %v, want [geocoding openweather]", got)
	}
	tr.Reset()
	if got := tr.Providers(); len(got) != 0 {
		t.Errorf("Providers() after Reset = %v, want empty", got)
	}
}

func TestProbe(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		errors    int
		wantErr   bool
	}{
		{"no traffic", 0, 0, false},
		{"below min samples", 0, 3, false},
		{"healthy", 9, 1, false},
		{"at threshold", 5, 5, false},
		{"above threshold", 4, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker()
			for i := 0; i < tt.successes; i++ {
				tr.RecordOutcome("openmeteo", nil)
			}
			for i := 0; i < tt.errors; i++ {
				tr.RecordOutcome("openmeteo", errUpstream)
			}
			err := tr.Probe(time.Minute, 5, 50)(t.Context())
			if (err != nil) != tt.wantErr {
				t.Fatalf("Probe() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "openmeteo") {
				t.Errorf("Probe() error = %v, want provider name", err)
			}
		})
	}
}
