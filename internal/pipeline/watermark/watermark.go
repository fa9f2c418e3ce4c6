// Package watermark tracks event-time progress per ingestion source.
//
// The pipeline watermark is the minimum across all registered sources of
// each source's highest observed event timestamp. A source that goes silent
// would otherwise pin the watermark forever, so after an idle timeout a
// silent source's contribution advances with the wall clock. Timers driven
// by this tracker therefore fire even under no further input.
package watermark

import (
	"sync"
	"time"
)

type source struct {
	highWater time.Time // max event time observed
	lastSeen  time.Time // wall clock of last observation
}

// Tracker computes a monotonic watermark from per-source observations.
type Tracker struct {
	mu       sync.Mutex
	sources  map[string]*source
	lateness time.Duration
	idle     time.Duration
	current  time.Time // monotonic floor

	now func() time.Time // injectable clock
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithAllowedLateness holds the watermark back by d to admit late events.
func WithAllowedLateness(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.lateness = d
		}
	}
}

// WithIdleTimeout advances a silent source with the wall clock after d.
// Zero disables idle advancement.
func WithIdleTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		t.idle = d
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a tracker over the named sources. Until every source
// has observed at least one event, Current returns the zero time unless
// idle advancement kicks in.
func NewTracker(names []string, opts ...Option) *Tracker {
	t := &Tracker{
		sources: make(map[string]*source, len(names)),
		now:     time.Now,
	}
	for _, n := range names {
		t.sources[n] = &source{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Observe records an event timestamp for a source. Out-of-order timestamps
// are fine; only the high-water mark moves.
func (t *Tracker) Observe(name string, eventTime time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sources[name]
	if !ok {
		s = &source{}
		t.sources[name] = s
	}
	if eventTime.After(s.highWater) {
		s.highWater = eventTime
	}
	s.lastSeen = t.now()
}

// Current returns the pipeline watermark. It never moves backwards.
func (t *Tracker) Current() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var wm time.Time
	first := true
	for _, s := range t.sources {
		hw := s.highWater
		if t.idle > 0 && !s.lastSeen.IsZero() && now.Sub(s.lastSeen) > t.idle {
			// Silent source: assume its producers are caught up to wall clock.
			if now.After(hw) {
				hw = now
			}
		}
		if first || hw.Before(wm) {
			wm = hw
			first = false
		}
	}
	if wm.IsZero() {
		return t.current
	}
	wm = wm.Add(-t.lateness)
	if wm.After(t.current) {
		t.current = wm
	}
	return t.current
}
