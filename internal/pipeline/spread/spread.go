// Package spread redistributes latency records across a small set of
// synthetic salt keys so expensive downstream work never concentrates on
// one hot key.
package spread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/metrics"
)

// Default spreader configuration constants.
const (
	defaultSaltCount = 16
	defaultDelay     = 10 * time.Second
)

// Sink receives flushed batches. Backed by the batch queue in production.
type Sink interface {
	Enqueue(ctx context.Context, b model.SaltedBatch) bool
}

// Spreader buckets records round-robin over the salt set and flushes each
// salt's batch a fixed delay after its first buffered record (discarding
// panes). Re-keying onto a single constant would funnel all downstream
// work to one worker; the salt set keeps shares roughly even.
type Spreader struct {
	salts []string
	next  atomic.Uint64
	delay time.Duration
	sink  Sink

	mu      sync.Mutex
	batches map[string][]model.LatencyRecord
	timers  map[string]*time.Timer
}

// Option applies a configuration option to the Spreader.
type Option func(*Spreader)

// WithSaltCount sets the size of the salt key set.
func WithSaltCount(n int) Option {
	return func(s *Spreader) {
		if n > 0 {
			s.salts = makeSalts(n)
		}
	}
}

// WithFlushDelay sets the per-salt batch flush delay.
func WithFlushDelay(d time.Duration) Option {
	return func(s *Spreader) {
		if d > 0 {
			s.delay = d
		}
	}
}

// New creates a spreader flushing into sink.
func New(sink Sink, opts ...Option) *Spreader {
	s := &Spreader{
		salts:   makeSalts(defaultSaltCount),
		delay:   defaultDelay,
		sink:    sink,
		batches: make(map[string][]model.LatencyRecord),
		timers:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func makeSalts(n int) []string {
	salts := make([]string, n)
	for i := range salts {
		salts[i] = fmt.Sprintf("salt-%02d", i)
	}
	return salts
}

// Observe buckets one record under the next salt and arms that salt's
// flush timer if it is not already running.
func (s *Spreader) Observe(rec model.LatencyRecord) {
	salt := s.salts[s.next.Add(1)%uint64(len(s.salts))]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[salt] = append(s.batches[salt], rec)
	if _, armed := s.timers[salt]; !armed {
		s.timers[salt] = time.AfterFunc(s.delay, func() { s.flush(salt) })
	}
}

func (s *Spreader) flush(salt string) {
	s.mu.Lock()
	items := s.batches[salt]
	delete(s.batches, salt)
	delete(s.timers, salt)
	s.mu.Unlock()

	if len(items) == 0 {
		return
	}
	s.dispatch(model.SaltedBatch{Salt: salt, Items: items})
}

// FlushAll force-flushes every pending batch, for shutdown.
func (s *Spreader) FlushAll() {
	s.mu.Lock()
	pend := s.batches
	s.batches = make(map[string][]model.LatencyRecord)
	for salt, t := range s.timers {
		t.Stop()
		delete(s.timers, salt)
	}
	s.mu.Unlock()

	for salt, items := range pend {
		if len(items) > 0 {
			s.dispatch(model.SaltedBatch{Salt: salt, Items: items})
		}
	}
}

func (s *Spreader) dispatch(b model.SaltedBatch) {
	metrics.RecordSaltedBatch(b.Salt)
	s.sink.Enqueue(context.Background(), b)
}

// Salts returns the salt key set.
func (s *Spreader) Salts() []string {
	return append([]string(nil), s.salts...)
}
