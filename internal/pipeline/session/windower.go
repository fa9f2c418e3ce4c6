// Package session groups a keyed event stream into gap-separated session
// windows and materializes each window once the watermark passes its end.
package session

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/metrics"
)

// Default windower configuration constants.
const (
	defaultGap        = 5 * time.Minute
	defaultShardCount = 16
)

// open is a still-mutable session window. End moves forward as new members
// arrive within the gap; overlapping windows for the same key coalesce.
type open struct {
	start, end time.Time
	events     []model.Event
}

type shard struct {
	mu   sync.Mutex
	keys map[string][]*open // per key, sorted by start
}

// Windower assigns events to per-key session windows. State is sharded by
// key hash so concurrent producers never contend on unrelated keys.
type Windower struct {
	gap    time.Duration
	stream string // metric label
	shards []*shard

	closedThrough time.Time // highest watermark passed to CloseUpTo
	ctMu          sync.Mutex
}

// Option applies a configuration option to the Windower.
type Option func(*Windower)

// WithGap sets the inactivity gap separating sessions.
func WithGap(gap time.Duration) Option {
	return func(w *Windower) {
		if gap > 0 {
			w.gap = gap
		}
	}
}

// WithShardCount sets the number of key shards.
func WithShardCount(n int) Option {
	return func(w *Windower) {
		if n > 0 {
			w.shards = make([]*shard, n)
		}
	}
}

// WithStream names the stream for counters, e.g. "score" or "action".
func WithStream(name string) Option {
	return func(w *Windower) {
		if name != "" {
			w.stream = name
		}
	}
}

// NewWindower creates a session windower.
func NewWindower(opts ...Option) *Windower {
	w := &Windower{
		gap:    defaultGap,
		stream: "events",
		shards: make([]*shard, defaultShardCount),
	}
	for _, opt := range opts {
		opt(w)
	}
	for i := range w.shards {
		w.shards[i] = &shard{keys: make(map[string][]*open)}
	}
	return w
}

// Gap returns the configured inactivity gap.
func (w *Windower) Gap() time.Duration {
	return w.gap
}

// Add assigns an event to a session window for its key. An event whose
// window [ts, ts+gap) ends at or before the already-closed watermark is
// late: it is dropped and counted, never reopening a materialized session.
// Returns false for dropped events.
func (w *Windower) Add(ev model.Event) bool {
	s := w.shardFor(ev.EventID)
	s.mu.Lock()
	defer s.mu.Unlock()

	// The lateness check must sit inside the shard critical section:
	// CloseUpTo advances closedThrough before sweeping each shard, so once
	// we hold the shard lock the watermark we read here cannot be overtaken
	// by a sweep that already passed this shard.
	w.ctMu.Lock()
	closed := w.closedThrough
	w.ctMu.Unlock()

	if !ev.EventTime.Add(w.gap).After(closed) {
		metrics.RecordLateEventDropped(w.stream)
		return false
	}

	wins := s.keys[ev.EventID]
	start := ev.EventTime
	end := ev.EventTime.Add(w.gap)

	// Collect every existing window overlapping [start, end) and coalesce
	// them with the new member. Overlap is transitive through the merge.
	merged := &open{start: start, end: end, events: []model.Event{ev}}
	kept := wins[:0]
	for _, o := range wins {
		if o.start.Before(merged.end) && merged.start.Before(o.end) {
			if o.start.Before(merged.start) {
				merged.start = o.start
			}
			if o.end.After(merged.end) {
				merged.end = o.end
			}
			merged.events = append(merged.events, o.events...)
		} else {
			kept = append(kept, o)
		}
	}
	kept = append(kept, merged)
	sort.Slice(kept, func(i, j int) bool { return kept[i].start.Before(kept[j].start) })
	s.keys[ev.EventID] = kept
	return true
}

// CloseUpTo materializes every session whose window end is at or before the
// watermark and releases its state. Closed sessions carry their window end
// as the output timestamp, ordered by it.
func (w *Windower) CloseUpTo(wm time.Time) []model.Session {
	w.ctMu.Lock()
	if wm.After(w.closedThrough) {
		w.closedThrough = wm
	}
	w.ctMu.Unlock()

	var out []model.Session
	for _, s := range w.shards {
		s.mu.Lock()
		for key, wins := range s.keys {
			kept := wins[:0]
			for _, o := range wins {
				if !o.end.After(wm) {
					out = append(out, model.Session{
						Key:    key,
						Start:  o.start,
						End:    o.end,
						Events: o.events,
					})
					metrics.RecordSessionClosed(w.stream)
				} else {
					kept = append(kept, o)
				}
			}
			if len(kept) == 0 {
				delete(s.keys, key)
			} else {
				s.keys[key] = kept
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	return out
}

// OpenCount returns the number of still-open session windows.
func (w *Windower) OpenCount() int {
	n := 0
	for _, s := range w.shards {
		s.mu.Lock()
		for _, wins := range s.keys {
			n += len(wins)
		}
		s.mu.Unlock()
	}
	return n
}

func (w *Windower) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return w.shards[h.Sum32()%uint32(len(w.shards))]
}
