package validation

import (
	"context"
	"math"
	"math/rand"
	"strings"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// PipelineFunc re-runs the full simulation pipeline on a (possibly
// surrogate) series and returns its metrics. Injected by the
// orchestrator so the validation engines stay decoupled from the
// pipeline wiring.
type PipelineFunc func(ctx context.Context, series *domain.Series) (*domain.MetricSet, error)

// Permutation is the permutation test engine. Each trial reshuffles
// the dataset's bar-to-bar return series, never absolute prices,
// preserving the original gap positions and length, rebuilds a
// surrogate price path and re-runs the pipeline on it.
type Permutation struct {
	Trials    int
	Seed      int64 // validation sub-seed; trial i uses Seed + i
	Workers   int
	Statistic string
	Pipeline  PipelineFunc
}

// Run executes the permutation test against the observed statistic.
//
// The p-value convention is inclusive: the fraction of trial
// statistics >= observed. Trials == 0 yields an explicit placeholder
// result (TrialCount 0, nil PValue), not an error.
func (p *Permutation) Run(ctx context.Context, series *domain.Series, observed float64) (*domain.ValidationResult, error) {
	result := &domain.ValidationResult{
		Method:    domain.MethodPermutation,
		Statistic: p.Statistic,
		Observed:  observed,
	}

	if p.Trials == 0 {
		result.Distribution = []float64{}
		result.DistributionDigest = DistributionDigest(nil)
		return result, nil
	}

	trials, err := RunIndexed(ctx, p.Workers, p.Trials, func(i int) (float64, error) {
		rng := rand.New(rand.NewSource(p.Seed + int64(i)))
		surrogate := permuteSeries(series, rng)
		m, err := p.Pipeline(ctx, surrogate)
		if err != nil {
			return 0, err
		}
		return m.Statistic(p.Statistic), nil
	})
	if err != nil {
		return nil, err
	}

	result.Distribution = trials
	result.TrialCount = len(trials)
	result.DistributionDigest = DistributionDigest(trials)
	pv := PValue(trials, observed)
	result.PValue = &pv
	return result, nil
}

// PValue computes the inclusive-boundary p-value: the fraction of
// trial statistics >= observed. Trials exactly equal to the observed
// statistic count toward the p-value.
func PValue(trials []float64, observed float64) float64 {
	if len(trials) == 0 {
		return 0
	}
	var ge int
	for _, t := range trials {
		if t >= observed {
			ge++
		}
	}
	return float64(ge) / float64(len(trials))
}

// ExtremeTailRatio is the fraction of trials strictly exceeding the
// observed statistic.
func ExtremeTailRatio(trials []float64, observed float64) float64 {
	if len(trials) == 0 {
		return 0
	}
	var gt int
	for _, t := range trials {
		if t > observed {
			gt++
		}
	}
	return float64(gt) / float64(len(trials))
}

// DistributionDigest hashes the trial distribution in trial-index
// order using the fixed float formatting policy, so the digest is
// independent of worker scheduling.
func DistributionDigest(trials []float64) string {
	var b strings.Builder
	for i, t := range trials {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(idhash.FormatFloat(t))
	}
	return idhash.DigestBytes([]byte(b.String()))
}

// permuteSeries builds a surrogate series: bar-to-bar close relatives
// are Fisher-Yates shuffled, except bars flagged as gaps (zero volume
// or non-finite relatives), which keep their original relative in
// place. The price path is rebuilt from the original first close and
// the open/high/low columns are scaled to preserve each bar's shape.
func permuteSeries(series *domain.Series, rng *rand.Rand) *domain.Series {
	n := series.Len()
	out := &domain.Series{
		Timestamps: series.Timestamps,
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		Volume:     series.Volume,
		BarMinutes: series.BarMinutes,
	}
	if n == 0 {
		return out
	}

	// Relatives r[i] = close[i]/close[i-1]; r[0] is unused.
	relatives := make([]float64, n)
	movable := make([]int, 0, n)
	for i := 1; i < n; i++ {
		r := 1.0
		if series.Close[i-1] != 0 {
			r = series.Close[i] / series.Close[i-1]
		}
		relatives[i] = r
		if isGapBar(series, i, r) {
			continue // gap relatives stay in place
		}
		movable = append(movable, i)
	}

	// Fisher-Yates over the movable positions only.
	for k := len(movable) - 1; k > 0; k-- {
		j := rng.Intn(k + 1)
		a, b := movable[k], movable[j]
		relatives[a], relatives[b] = relatives[b], relatives[a]
	}

	out.Close[0] = series.Close[0]
	out.Open[0] = series.Open[0]
	out.High[0] = series.High[0]
	out.Low[0] = series.Low[0]
	for i := 1; i < n; i++ {
		out.Close[i] = out.Close[i-1] * relatives[i]
		scale := 1.0
		if series.Close[i] != 0 {
			scale = out.Close[i] / series.Close[i]
		}
		out.Open[i] = series.Open[i] * scale
		out.High[i] = series.High[i] * scale
		out.Low[i] = series.Low[i] * scale
	}
	return out
}

// isGapBar reports whether bar i must keep its relative fixed.
func isGapBar(series *domain.Series, i int, relative float64) bool {
	if series.Volume[i] == 0 {
		return true
	}
	return math.IsNaN(relative) || math.IsInf(relative, 0) || relative <= 0
}
