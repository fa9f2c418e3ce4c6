// Package filter classifies latency records against the current quantile
// snapshot. Abnormally low score-to-action latency suggests a robot.
package filter

import (
	"github.com/okian/botspot/internal/domain/model"
	"github.com/okian/botspot/internal/pipeline/sideinput"
	"github.com/okian/botspot/pkg/metrics"
)

// Classification is the outcome for one latency record.
type Classification uint8

const (
	// Unknown means no snapshot has fired yet; the record passes through
	// unclassified and is counted, never guessed at.
	Unknown Classification = iota
	// Normal means the latency is at or above the anomaly boundary.
	Normal
	// Anomalous means the latency falls below the configured boundary.
	Anomalous
)

// Default boundary index: the first of the quantile boundaries, i.e. the
// lowest bucket of the distribution.
const defaultBoundaryIndex = 1

// Filter reads the snapshot cell and classifies records.
type Filter struct {
	cell     *sideinput.Cell
	boundary int
}

// Option applies a configuration option to the Filter.
type Option func(*Filter)

// WithBoundaryIndex sets the snapshot boundary index below which a latency
// is anomalous. This is an explicit policy knob, not a tuning hint.
func WithBoundaryIndex(i int) Option {
	return func(f *Filter) {
		if i > 0 {
			f.boundary = i
		}
	}
}

// New creates a filter reading from cell.
func New(cell *sideinput.Cell, opts ...Option) *Filter {
	f := &Filter{
		cell:     cell,
		boundary: defaultBoundaryIndex,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Classify evaluates one record against the snapshot visible at call time.
func (f *Filter) Classify(rec model.LatencyRecord) Classification {
	snap := f.cell.Get()
	if snap.Version == 0 || len(snap.Boundaries) <= f.boundary {
		metrics.RecordUnknownClassification()
		return Unknown
	}
	if rec.LatencyMillis < snap.Boundaries[f.boundary] {
		metrics.RecordAnomalyDetected()
		return Anomalous
	}
	return Normal
}
