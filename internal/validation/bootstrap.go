package validation

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"backtest-lab/internal/domain"
)

// BlockBootstrap resamples overlapping blocks of the realized per-bar
// return series and reports a confidence interval on the chosen
// statistic. The gate flag is informational only; a failed gate never
// raises.
type BlockBootstrap struct {
	Trials           int
	BlockLength      int
	Confidence       float64 // e.g. 0.95
	CIWidthThreshold float64 // <= 0 disables the gate (always passes)
	Seed             int64   // validation sub-seed
	Workers          int
	Statistic        string
	BarMinutes       int
}

// Run executes the bootstrap over the realized returns.
// Returns an InsufficientDataError when the series is shorter than one
// block; the caller records the method as skipped.
func (b *BlockBootstrap) Run(ctx context.Context, returns []float64, observed float64) (*domain.ValidationResult, error) {
	result := &domain.ValidationResult{
		Method:    domain.MethodBlockBootstrap,
		Statistic: b.Statistic,
		Observed:  observed,
	}

	if len(returns) < b.BlockLength || b.BlockLength <= 0 {
		return nil, &domain.InsufficientDataError{
			Method: domain.MethodBlockBootstrap,
			Reason: "return series shorter than one block",
		}
	}

	if b.Trials == 0 {
		result.Distribution = []float64{}
		result.DistributionDigest = DistributionDigest(nil)
		return result, nil
	}

	n := len(returns)
	blocks := n - b.BlockLength + 1 // overlapping block starts

	trials, err := RunIndexed(ctx, b.Workers, b.Trials, func(i int) (float64, error) {
		rng := rand.New(rand.NewSource(b.Seed + int64(i)))
		resampled := make([]float64, 0, n)
		for len(resampled) < n {
			// Jittered start: the sub-seeded rng draws both the block
			// start and a small jitter so adjacent trials decorrelate.
			start := rng.Intn(blocks)
			if jitter := rng.Intn(b.BlockLength); start+jitter < blocks {
				start += jitter
			}
			take := b.BlockLength
			if remaining := n - len(resampled); take > remaining {
				take = remaining
			}
			resampled = append(resampled, returns[start:start+take]...)
		}
		return b.statistic(resampled), nil
	})
	if err != nil {
		return nil, err
	}

	result.Distribution = trials
	result.TrialCount = len(trials)
	result.DistributionDigest = DistributionDigest(trials)
	pv := PValue(trials, observed)
	result.PValue = &pv

	lo, hi := confidenceInterval(trials, b.Confidence)
	width := hi - lo
	passed := b.CIWidthThreshold <= 0 || width <= b.CIWidthThreshold
	result.CILow = &lo
	result.CIHigh = &hi
	result.CIWidth = &width
	result.GatePassed = &passed

	return result, nil
}

// statistic computes the configured statistic over a return series.
func (b *BlockBootstrap) statistic(returns []float64) float64 {
	switch b.Statistic {
	case domain.StatisticSharpe:
		mu := mean(returns)
		sd := stddev(returns)
		if sd == 0 {
			return 0
		}
		return mu / sd * math.Sqrt(annualFactor(b.BarMinutes))
	default:
		compounded := 1.0
		for _, r := range returns {
			compounded *= 1 + r
		}
		return compounded - 1
	}
}

// confidenceInterval returns the percentile bounds of the sorted trial
// distribution at the given confidence level.
func confidenceInterval(trials []float64, confidence float64) (lo, hi float64) {
	sorted := make([]float64, len(trials))
	copy(sorted, trials)
	sort.Float64s(sorted)

	alpha := (1 - confidence) / 2
	loIdx := int(math.Floor(alpha * float64(len(sorted)-1)))
	hiIdx := int(math.Ceil((1 - alpha) * float64(len(sorted)-1)))
	return sorted[loIdx], sorted[hiIdx]
}

func annualFactor(barMinutes int) float64 {
	if barMinutes <= 0 || barMinutes == 1440 {
		return 252
	}
	return 252 * 1440 / float64(barMinutes)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mu := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - mu
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
