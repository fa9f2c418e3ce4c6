// Package join co-groups sessionized action and score streams by their
// shared correlation key and reconciles each group into a latency record.
package join

import (
	"sort"
	"sync"
	"time"

	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/pkg/metrics"
)

// Default stage configuration constants.
const (
	defaultGap = 5 * time.Minute
)

// group holds both sides' members for one key over a coalesced window.
// Sessions with overlapping windows for the same key extend the group.
type group struct {
	start, end time.Time
	actions    []model.Event
	scores     []model.Event
}

// Stage buffers closed sessions from the two streams and resolves each
// key's group once no non-late event on either stream can still extend it.
// Reconciliation is order-independent: it depends only on set membership
// and the maximum action timestamp. Nothing on this path may block.
type Stage struct {
	mu     sync.Mutex
	gap    time.Duration
	groups map[string][]*group
}

// Option applies a configuration option to the Stage.
type Option func(*Stage)

// WithGap sets the session gap of the upstream windowers. The stage holds
// a group for one gap past its coalesced window end, since a session still
// open on the other stream can end that much later than the group.
func WithGap(gap time.Duration) Option {
	return func(s *Stage) {
		if gap > 0 {
			s.gap = gap
		}
	}
}

// NewStage creates an empty join stage.
func NewStage(opts ...Option) *Stage {
	s := &Stage{
		gap:    defaultGap,
		groups: make(map[string][]*group),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddActionSession buffers a closed action-event session.
func (s *Stage) AddActionSession(sess model.Session) {
	s.add(sess, false)
}

// AddScoreSession buffers a closed score-event session.
func (s *Stage) AddScoreSession(sess model.Session) {
	s.add(sess, true)
}

func (s *Stage) add(sess model.Session, score bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g := &group{start: sess.Start, end: sess.End}
	if score {
		g.scores = append(g.scores, sess.Events...)
	} else {
		g.actions = append(g.actions, sess.Events...)
	}

	// Absorb every buffered group the growing window overlaps. Each merge
	// can widen the window into yet another group, so loop to a fixpoint:
	// a session bridging two disjoint groups must coalesce all three.
	groups := s.groups[sess.Key]
	for merged := true; merged; {
		merged = false
		kept := groups[:0]
		for _, cand := range groups {
			if cand.start.Before(g.end) && g.start.Before(cand.end) {
				if cand.start.Before(g.start) {
					g.start = cand.start
				}
				if cand.end.After(g.end) {
					g.end = cand.end
				}
				g.actions = append(g.actions, cand.actions...)
				g.scores = append(g.scores, cand.scores...)
				merged = true
				continue
			}
			kept = append(kept, cand)
		}
		groups = kept
	}
	s.groups[sess.Key] = append(groups, g)
}

// CloseUpTo resolves every group the watermark has passed by at least one
// session gap. An event extending a window that overlaps a group must have
// a timestamp before the group's end, so only once wm >= end+gap is such
// an event guaranteed late on both streams and the group safe to resolve.
func (s *Stage) CloseUpTo(wm time.Time) []model.LatencyRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.LatencyRecord
	for key, groups := range s.groups {
		kept := groups[:0]
		for _, g := range groups {
			if g.end.Add(s.gap).After(wm) {
				kept = append(kept, g)
				continue
			}
			if rec, ok := reconcile(g); ok {
				out = append(out, rec)
			}
		}
		if len(kept) == 0 {
			delete(s.groups, key)
		} else {
			s.groups[key] = kept
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out
}

// reconcile applies the per-group policy. Exactly one score event and at
// least one action event produce a latency record; everything else is
// dropped with its counter.
func reconcile(g *group) (model.LatencyRecord, bool) {
	switch {
	case len(g.scores) == 0:
		metrics.RecordDroppedNoScore()
		return model.LatencyRecord{}, false
	case len(g.scores) > 1:
		// Ambiguous match: never guess which score to keep.
		metrics.RecordDroppedTooManyScore()
		return model.LatencyRecord{}, false
	case len(g.actions) == 0:
		metrics.RecordDroppedNoAction()
		return model.LatencyRecord{}, false
	}

	score := g.scores[0]
	maxAction := g.actions[0].EventTime
	for _, a := range g.actions[1:] {
		if a.EventTime.After(maxAction) {
			maxAction = a.EventTime
		}
	}
	return model.LatencyRecord{
		User:          score.User,
		LatencyMillis: score.EventTime.Sub(maxAction).Milliseconds(),
	}, true
}

// PendingKeys returns the number of keys with unresolved groups.
func (s *Stage) PendingKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}
