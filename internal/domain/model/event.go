// Package model contains domain records passed between pipeline stages.
package model

import "time"

// EventKind tags the two event variants sharing the correlation key space.
type EventKind uint8

const (
	// KindScore marks a score event carrying a user, team and score.
	KindScore EventKind = iota
	// KindAction marks a play-action event with no score payload.
	KindAction
)

// String returns the kind name used in logs and metric labels.
func (k EventKind) String() string {
	switch k {
	case KindScore:
		return "score"
	case KindAction:
		return "action"
	default:
		return "unknown"
	}
}

// Event is a raw ingested event. The Kind field discriminates the two
// variants; Team and Score are only meaningful for KindScore.
type Event struct {
	Kind       EventKind
	EventID    string // correlation id shared by matching score/action events
	User       string
	Team       string
	Score      int64
	EventTime  time.Time // caller-assigned event timestamp
	IngestTime time.Time
	DedupID    string // transport-level id for redelivery dedup
}

// Session is a materialized session window for one correlation key.
// End is the window end (last member timestamp plus the gap), which is also
// the session's output timestamp.
type Session struct {
	Key    string
	Start  time.Time
	End    time.Time
	Events []Event
}

// LatencyRecord is the score-to-action latency derived from one resolved
// session. LatencyMillis is signed; clock skew between the two streams can
// legitimately produce negative values.
type LatencyRecord struct {
	User          string
	LatencyMillis int64
}

// QuantileSnapshot is the current approximate latency distribution.
// Boundaries is non-decreasing and has the configured quantile count
// entries, first and last being the estimated minimum and maximum.
// Version increases by one per trigger firing; zero means no firing yet.
type QuantileSnapshot struct {
	Version    uint64
	Boundaries []int64
	Count      uint64 // total latencies accumulated at firing time
}

// BadUserRecord is emitted at most once per user per epoch.
type BadUserRecord struct {
	User       string
	DetectedAt time.Time
}

// SaltedBatch groups latency records under a synthetic salt key so that
// expensive downstream work spreads across workers instead of collapsing
// onto one hot key.
type SaltedBatch struct {
	Salt  string
	Items []LatencyRecord
}
