// Package robustness folds validation evidence into one composite
// score in [0, 1]. The weighting is explicit configuration, never
// hidden constants, and the score is rounded to the run's float
// precision before it is recorded or hashed.
package robustness

import (
	"math"

	"backtest-lab/internal/domain"
)

// Inputs are the evidence the composite score is built from. Absent
// evidence (a skipped method, no walk-forward pass) contributes zero
// for its component rather than being imputed.
type Inputs struct {
	PValue           *float64 // permutation p-value; nil when not computed
	ExtremeTailRatio float64  // fraction of trials strictly above observed
	WalkForward      *domain.WalkForwardAggregate
	ObservedReturn   float64 // realized cumulative return
	FloatPrecision   int
}

// Breakdown records each weighted component so reports can show where
// the score came from.
type Breakdown struct {
	PValueComponent        float64
	StabilityComponent     float64
	ProfitabilityComponent float64
	TailComponent          float64
	Composite              float64
}

// Score computes the weighted composite.
//
// Components, each in [0, 1]:
//  1. p-value, inverted: a p-value of 0 scores 1.
//  2. stability: walk-forward OOS consistency.
//  3. profitability: fraction of profitable OOS segments, or the sign
//     of the realized return when walk-forward did not run.
//  4. tail: 1 minus the extreme tail ratio.
func Score(in Inputs, weights domain.RobustnessWeights) Breakdown {
	var b Breakdown

	if in.PValue != nil {
		b.PValueComponent = clamp01(1 - *in.PValue)
	}

	if in.WalkForward != nil {
		b.StabilityComponent = clamp01(in.WalkForward.OOSConsistency)
		if in.WalkForward.TotalSegments > 0 {
			b.ProfitabilityComponent = float64(in.WalkForward.ProfitableSegments) / float64(in.WalkForward.TotalSegments)
		}
	} else if in.ObservedReturn > 0 {
		b.ProfitabilityComponent = 1
	}

	b.TailComponent = clamp01(1 - in.ExtremeTailRatio)

	composite := weights.PValue*b.PValueComponent +
		weights.Stability*b.StabilityComponent +
		weights.Profitability*b.ProfitabilityComponent +
		weights.Tail*b.TailComponent

	total := weights.PValue + weights.Stability + weights.Profitability + weights.Tail
	if total > 0 {
		composite /= total
	}

	b.Composite = Round(composite, in.FloatPrecision)
	return b
}

// Round rounds v to the given number of fractional digits. Applied to
// every score before hashing or persistence so re-runs agree byte for
// byte.
func Round(v float64, precision int) float64 {
	if precision <= 0 {
		precision = domain.DefaultFloatPrecision
	}
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
