// Package emitonce collapses an at-least-once stream of flagged users into
// at most one downstream emission per user per epoch.
package emitonce

import (
	"sync"
	"time"

	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/metrics"
)

// Default emitter configuration constants.
const (
	defaultDelay = 10 * time.Second
)

// entryState is the per-user lifecycle within one epoch.
type entryState uint8

const (
	statePending entryState = iota // first observation seen, timer armed
	stateEmitted                   // record emitted, repeats suppressed
)

type entry struct {
	state entryState
	timer *time.Timer
}

// Emitter holds one state flag and an arm-once timer per user. The first
// observation of a user arms a short delay; when it fires, exactly one
// BadUserRecord goes downstream. Every further observation within the epoch
// is suppressed. ResetEpoch returns all users to unseen.
type Emitter struct {
	mu    sync.Mutex
	seen  map[string]*entry
	delay time.Duration
	emit  func(model.BadUserRecord)
	now   func() time.Time
}

// Option applies a configuration option to the Emitter.
type Option func(*Emitter)

// WithDelay sets the hold between a user's first observation and emission.
func WithDelay(d time.Duration) Option {
	return func(e *Emitter) {
		if d >= 0 {
			e.delay = d
		}
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

// New creates an emitter calling emit for each first-per-epoch user.
// emit runs on a timer goroutine and must not block.
func New(emit func(model.BadUserRecord), opts ...Option) *Emitter {
	e := &Emitter{
		seen:  make(map[string]*entry),
		delay: defaultDelay,
		emit:  emit,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Observe records one flagged-user observation. The first observation per
// epoch arms the emission timer; repeats are suppressed and counted.
func (e *Emitter) Observe(user string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[user]; ok {
		metrics.RecordEmissionSuppressed()
		return
	}
	ent := &entry{state: statePending}
	e.seen[user] = ent
	ent.timer = time.AfterFunc(e.delay, func() { e.fire(user) })
}

func (e *Emitter) fire(user string) {
	e.mu.Lock()
	ent, ok := e.seen[user]
	if !ok || ent.state == stateEmitted {
		e.mu.Unlock()
		return
	}
	ent.state = stateEmitted
	rec := model.BadUserRecord{User: user, DetectedAt: e.now()}
	e.mu.Unlock()

	e.emit(rec)
}

// ResetEpoch discards all per-user state. Pending timers are cancelled
// without emitting; a user observed again after the reset starts a fresh
// cycle, so resets trade a possible re-emission for released state.
func (e *Emitter) ResetEpoch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ent := range e.seen {
		if ent.timer != nil {
			ent.timer.Stop()
		}
	}
	e.seen = make(map[string]*entry)
}

// Size returns the number of users tracked in the current epoch.
func (e *Emitter) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.seen)
}

// Close cancels all pending timers.
func (e *Emitter) Close() {
	e.ResetEpoch()
}
