// Package guard implements the causality fence: a bounds-checked view
// over time-indexed series that prevents any computation at bar t from
// reading data indexed after t. The guard borrows the underlying
// slices and never copies, so the per-access overhead is a single
// index comparison.
package guard

import (
	"log"

	"backtest-lab/internal/domain"
)

// Guard is the single causality fence for one run. The fence starts at
// -1 (nothing readable) and is advanced one bar at a time by the
// signal evaluator; it never moves backward.
type Guard struct {
	mode       domain.GuardMode
	fence      int
	violations int64
	logger     *log.Logger // nil disables violation logging
}

// New creates a guard in the given mode with the fence at -1.
func New(mode domain.GuardMode, logger *log.Logger) *Guard {
	return &Guard{mode: mode, fence: -1, logger: logger}
}

// Advance moves the fence to index t. Moving backward is an error.
func (g *Guard) Advance(t int) error {
	if t < g.fence {
		return domain.ErrFenceBackward
	}
	g.fence = t
	return nil
}

// Fence returns the current fence index.
func (g *Guard) Fence() int {
	return g.fence
}

// Mode returns the guard mode.
func (g *Guard) Mode() domain.GuardMode {
	return g.mode
}

// Violations returns the number of future accesses observed so far.
// Always zero in Strict mode (the first violation aborts).
func (g *Guard) Violations() int64 {
	return g.violations
}

// Metric returns the violation counter as a reportable metric.
func (g *Guard) Metric() domain.CausalityViolationMetric {
	return domain.CausalityViolationMetric{ViolationCount: g.violations}
}

// check enforces the fence for a read of series[index]. In Strict mode
// a future access returns a FutureAccessError; in Permissive mode it
// is counted and logged, and the read proceeds.
func (g *Guard) check(series string, index int) error {
	if index <= g.fence {
		return nil
	}
	if g.mode == domain.GuardStrict {
		return &domain.FutureAccessError{Series: series, Index: index, Fence: g.fence}
	}
	g.violations++
	if g.logger != nil {
		g.logger.Printf("future access on %q: index %d past fence %d", series, index, g.fence)
	}
	return nil
}

// View binds a named series to the guard. The values slice is borrowed.
func (g *Guard) View(name string, values []float64) *SeriesView {
	return &SeriesView{guard: g, name: name, values: values}
}

// SeriesView is a fenced, zero-copy accessor over one series.
type SeriesView struct {
	guard  *Guard
	name   string
	values []float64
}

// Len returns the full length of the underlying series. Length is not
// fenced; only value reads are.
func (v *SeriesView) Len() int {
	return len(v.values)
}

// Name returns the series name used in violation reports.
func (v *SeriesView) Name() string {
	return v.name
}

// At reads the value at index, subject to the fence. Out-of-range
// indices return a FutureAccessError in either mode.
func (v *SeriesView) At(index int) (float64, error) {
	if index < 0 || index >= len(v.values) {
		return 0, &domain.FutureAccessError{Series: v.name, Index: index, Fence: v.guard.fence}
	}
	if err := v.guard.check(v.name, index); err != nil {
		return 0, err
	}
	return v.values[index], nil
}
