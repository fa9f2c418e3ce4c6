// Package quantile maintains a bounded-memory approximation of the global
// latency distribution and re-publishes boundary estimates on triggers.
package quantile

import (
	"math/rand"
	"sort"
)

// Default sketch configuration constants.
const (
	defaultLevelCapacity = 512
)

// Sketch is a mergeable quantile summary. Values live in levels; a value at
// level i carries weight 1<<i. When a level overflows it is compacted: the
// level is sorted and alternating survivors promote to the next level with
// doubled weight. Merge concatenates level-wise then compacts, which makes
// the operation commutative and associative up to the sketch's error bound.
type Sketch struct {
	levels [][]float64
	cap    int
	count  uint64
	rng    *rand.Rand
}

// SketchOption applies a configuration option to the Sketch.
type SketchOption func(*Sketch)

// WithLevelCapacity sets the per-level buffer size. Larger buffers lower
// the approximation error at the cost of memory.
func WithLevelCapacity(n int) SketchOption {
	return func(s *Sketch) {
		if n >= 2 {
			s.cap = n
		}
	}
}

// WithSeed fixes the compaction coin, for deterministic tests.
func WithSeed(seed int64) SketchOption {
	return func(s *Sketch) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // sampling coin, not security
	}
}

// NewSketch creates an empty sketch.
func NewSketch(opts ...SketchOption) *Sketch {
	s := &Sketch{
		cap: defaultLevelCapacity,
		rng: rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // sampling coin, not security
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add folds one observation into the sketch.
func (s *Sketch) Add(v float64) {
	if len(s.levels) == 0 {
		s.levels = append(s.levels, make([]float64, 0, s.cap))
	}
	s.levels[0] = append(s.levels[0], v)
	s.count++
	s.compact()
}

// Count returns the number of observations folded in so far.
func (s *Sketch) Count() uint64 {
	return s.count
}

// Merge folds other into s without mutating other. Merging partials in any
// grouping or order yields estimates within the same error bound.
func (s *Sketch) Merge(other *Sketch) {
	for i, lvl := range other.levels {
		for len(s.levels) <= i {
			s.levels = append(s.levels, make([]float64, 0, s.cap))
		}
		s.levels[i] = append(s.levels[i], lvl...)
	}
	s.count += other.count
	s.compact()
}

// Clone returns an independent copy.
func (s *Sketch) Clone() *Sketch {
	c := &Sketch{
		levels: make([][]float64, len(s.levels)),
		cap:    s.cap,
		count:  s.count,
		rng:    rand.New(rand.NewSource(s.rng.Int63())), //nolint:gosec // sampling coin, not security
	}
	for i, lvl := range s.levels {
		c.levels[i] = append(make([]float64, 0, len(lvl)), lvl...)
	}
	return c
}

// compact promotes alternating survivors of any overflowing level upward
// until every level fits its buffer.
func (s *Sketch) compact() {
	for i := 0; i < len(s.levels); i++ {
		lvl := s.levels[i]
		if len(lvl) <= s.cap {
			continue
		}
		sort.Float64s(lvl)
		offset := s.rng.Intn(2)
		promoted := make([]float64, 0, len(lvl)/2+1)
		for j := offset; j < len(lvl); j += 2 {
			promoted = append(promoted, lvl[j])
		}
		s.levels[i] = lvl[:0]
		if len(s.levels) == i+1 {
			s.levels = append(s.levels, make([]float64, 0, s.cap))
		}
		s.levels[i+1] = append(s.levels[i+1], promoted...)
	}
}

// Boundaries returns n evenly spaced boundary estimates over the weighted
// contents, first and last being the estimated minimum and maximum. The
// returned slice is non-decreasing. Returns nil while the sketch is empty
// or n < 2.
func (s *Sketch) Boundaries(n int) []int64 {
	if n < 2 || s.count == 0 {
		return nil
	}

	type weighted struct {
		v float64
		w uint64
	}
	var total uint64
	items := make([]weighted, 0, 64)
	for i, lvl := range s.levels {
		w := uint64(1) << uint(i)
		for _, v := range lvl {
			items = append(items, weighted{v: v, w: w})
			total += w
		}
	}
	sort.Slice(items, func(a, b int) bool { return items[a].v < items[b].v })

	out := make([]int64, n)
	var cum uint64
	idx := 0
	for j := 0; j < n; j++ {
		// Target rank for boundary j on the weighted CDF.
		target := uint64(float64(j) / float64(n-1) * float64(total-1))
		for idx < len(items)-1 && cum+items[idx].w <= target {
			cum += items[idx].w
			idx++
		}
		out[j] = int64(items[idx].v)
	}
	return out
}
