package quantile

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/botspot/internal/pipeline/sideinput"
	"github.com/okian/botspot/pkg/metrics"
)

// Default aggregator configuration constants.
const (
	defaultFanout        = 16
	defaultTriggerCount  = 1000
	defaultQuantileCount = 21
)

type partial struct {
	mu     sync.Mutex
	sketch *Sketch
}

// Aggregator accumulates every latency ever observed into an approximate
// quantile sketch and publishes a snapshot on each trigger firing. Incoming
// values fan out across partial sketches so no single combine serializes
// high fan-in; a firing merges the partials into a fresh sketch, so the
// fan-out factor changes throughput, never results. State is never reset
// between firings.
type Aggregator struct {
	partials      []*partial
	cell          *sideinput.Cell
	quantileCount int

	triggerCount int           // fire after this many new values; 0 disables
	triggerDelay time.Duration // fire this long after a pane's first value; 0 disables

	pending    atomic.Int64
	timerMu    sync.Mutex
	timer      *time.Timer
	timerArmed bool

	fireMu sync.Mutex // serializes the final merge
	next   atomic.Uint64
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithFanout sets the number of partial sketches.
func WithFanout(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.partials = make([]*partial, n)
		}
	}
}

// WithQuantileCount sets the number of boundaries per snapshot.
func WithQuantileCount(n int) Option {
	return func(a *Aggregator) {
		if n >= 2 {
			a.quantileCount = n
		}
	}
}

// WithCountTrigger re-fires after n new values. Zero disables.
func WithCountTrigger(n int) Option {
	return func(a *Aggregator) {
		a.triggerCount = n
	}
}

// WithDelayTrigger re-fires d after the first value of each pane. Zero disables.
func WithDelayTrigger(d time.Duration) Option {
	return func(a *Aggregator) {
		a.triggerDelay = d
	}
}

// NewAggregator creates an aggregator publishing into cell.
func NewAggregator(cell *sideinput.Cell, opts ...Option) *Aggregator {
	a := &Aggregator{
		partials:      make([]*partial, defaultFanout),
		cell:          cell,
		quantileCount: defaultQuantileCount,
		triggerCount:  defaultTriggerCount,
	}
	for _, opt := range opts {
		opt(a)
	}
	for i := range a.partials {
		a.partials[i] = &partial{sketch: NewSketch()}
	}
	return a
}

// Observe folds one latency into a partial sketch and arms or fires the
// configured triggers. The delay trigger fires on its own timer goroutine;
// the count trigger runs the merge and publish inline, so the caller that
// crosses the threshold pays for the fan-in.
func (a *Aggregator) Observe(latencyMillis int64) {
	p := a.partials[a.next.Add(1)%uint64(len(a.partials))]
	p.mu.Lock()
	p.sketch.Add(float64(latencyMillis))
	p.mu.Unlock()

	n := a.pending.Add(1)
	if a.triggerCount > 0 && n >= int64(a.triggerCount) {
		if a.pending.CompareAndSwap(n, 0) {
			a.Fire()
		}
		return
	}
	if a.triggerDelay > 0 {
		a.armTimer()
	}
}

func (a *Aggregator) armTimer() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timerArmed {
		return
	}
	a.timerArmed = true
	a.timer = time.AfterFunc(a.triggerDelay, func() {
		a.timerMu.Lock()
		a.timerArmed = false
		a.timerMu.Unlock()
		a.pending.Store(0)
		a.Fire()
	})
}

// Fire merges all partials and publishes a snapshot of the accumulated
// distribution. Safe to call concurrently; firings serialize.
func (a *Aggregator) Fire() {
	a.fireMu.Lock()
	defer a.fireMu.Unlock()

	merged := NewSketch()
	for _, p := range a.partials {
		p.mu.Lock()
		clone := p.sketch.Clone()
		p.mu.Unlock()
		merged.Merge(clone)
	}
	if merged.Count() == 0 {
		return
	}
	boundaries := merged.Boundaries(a.quantileCount)
	snap := a.cell.Publish(boundaries, merged.Count())
	metrics.RecordSnapshotPublished(snap.Version, snap.Count)
}

// Stop cancels any armed trigger timer.
func (a *Aggregator) Stop() {
	a.timerMu.Lock()
	defer a.timerMu.Unlock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerArmed = false
}
