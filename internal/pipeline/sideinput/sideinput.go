// Package sideinput exposes the latest quantile snapshot to readers with
// atomic swap-on-write and copy-on-read semantics.
package sideinput

import (
	"sync/atomic"

	"github.com/okian/botspot/internal/domain/model"
)

// Cell is a single-writer, multi-reader snapshot holder. Readers never see
// a partially-updated snapshot; Get before the first Publish returns the
// zero-version empty snapshot rather than blocking.
type Cell struct {
	v       atomic.Pointer[model.QuantileSnapshot]
	version atomic.Uint64
}

// NewCell creates an empty cell.
func NewCell() *Cell {
	return &Cell{}
}

// Publish atomically replaces the current snapshot. The boundaries slice is
// owned by the cell after the call; the writer must not mutate it.
// Returns the published snapshot.
func (c *Cell) Publish(boundaries []int64, count uint64) model.QuantileSnapshot {
	snap := model.QuantileSnapshot{
		Version:    c.version.Add(1),
		Boundaries: boundaries,
		Count:      count,
	}
	c.v.Store(&snap)
	return snap
}

// Get returns a copy of the current snapshot. Version zero means no firing
// has completed yet and Boundaries is nil.
func (c *Cell) Get() model.QuantileSnapshot {
	p := c.v.Load()
	if p == nil {
		return model.QuantileSnapshot{}
	}
	out := *p
	out.Boundaries = append([]int64(nil), p.Boundaries...)
	return out
}
