package signal

import (
	"context"
	"fmt"
	"math"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/feature"
	"backtest-lab/internal/guard"
)

// Point is one emitted signal on the timeline.
type Point struct {
	BarIndex    int
	TargetDelta float64
	Diagnostic  string
}

// Timeline is the evaluator output.
type Timeline struct {
	Points []Point // ascending BarIndex, at most one point per bar

	// NaNSignals counts invalid strategy outputs (NaN/Inf deltas) that
	// were recorded and treated as "no signal".
	NaNSignals int
}

// Evaluate runs the strategy once per bar, advancing the guard fence
// to the current bar before each invocation. The loop is inherently
// sequential: the fence is monotonic and the strategy may carry state.
//
// Steps per bar:
//  1. Advance the fence to the bar index.
//  2. Invoke the strategy through guarded accessors only.
//  3. Drop NaN/Inf deltas into the anomaly counter, never downstream.
func Evaluate(ctx context.Context, g *guard.Guard, series *domain.Series, features *feature.Set, strat Strategy) (*Timeline, error) {
	acc := NewAccessor(g, series, features)
	timeline := &Timeline{}

	for t := 0; t < series.Len(); t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := g.Advance(t); err != nil {
			return nil, err
		}

		dec, err := strat.OnBar(t, acc)
		if err != nil {
			return nil, fmt.Errorf("strategy %s at bar %d: %w", strat.ID(), t, err)
		}

		if math.IsNaN(dec.TargetDelta) || math.IsInf(dec.TargetDelta, 0) {
			timeline.NaNSignals++
			continue
		}
		if dec.TargetDelta == 0 {
			continue
		}
		timeline.Points = append(timeline.Points, Point{
			BarIndex:    t,
			TargetDelta: dec.TargetDelta,
			Diagnostic:  dec.Diagnostic,
		})
	}

	return timeline, nil
}
