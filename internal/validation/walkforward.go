package validation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// SegmentPipelineFunc evaluates one strategy parameterization over a
// series window and returns its metrics. The leading warmupBars prime
// indicators and the book only; they must be excluded from the
// metrics. Injected by the orchestrator.
type SegmentPipelineFunc func(ctx context.Context, series *domain.Series, strat domain.StrategyConfig, warmupBars int) (*domain.MetricSet, error)

// WalkForward splits the series into rolling (train, test) windows,
// selects strategy parameters on each train window only, and measures
// them out of sample on the following test window. Parameters never
// see their own test window.
type WalkForward struct {
	Config     *domain.WalkForwardConfig
	Statistic  string
	Candidates []domain.StrategyConfig // parameter grid; index order breaks ties
	Pipeline   SegmentPipelineFunc
}

// segment bounds are bar indices, half-open [start, end).
type segmentBounds struct {
	trainStart, trainEnd int
	testStart, testEnd   int
}

// Plan computes the segment boundaries for a series of n bars.
// Geometry errors are ConfigErrors; too few segments for MinSegments
// is an InsufficientDataError so the method is skipped, not failed.
func (w *WalkForward) Plan(n int) ([]segmentBounds, error) {
	cfg := w.Config
	if cfg.TrainBars <= 0 {
		return nil, domain.NewConfigError("walk_forward.train_bars", "must be positive")
	}
	if cfg.TestBars <= 0 {
		return nil, domain.NewConfigError("walk_forward.test_bars", "must be positive")
	}
	step := cfg.StepBars
	if step <= 0 {
		step = cfg.TestBars
	}
	if cfg.WarmupBars >= cfg.TrainBars {
		return nil, domain.NewConfigError("walk_forward.warmup_bars", "must be smaller than train_bars")
	}

	var bounds []segmentBounds
	for start := cfg.WarmupBars; ; start += step {
		b := segmentBounds{
			trainStart: start,
			trainEnd:   start + cfg.TrainBars,
		}
		b.testStart = b.trainEnd
		b.testEnd = b.testStart + cfg.TestBars
		if b.testEnd > n {
			break
		}
		// Train must end where test begins; anything else would leak
		// test bars into parameter selection.
		if b.trainEnd > b.testStart {
			return nil, domain.NewConfigError("walk_forward", "segment %d train window overlaps its test window", len(bounds))
		}
		bounds = append(bounds, b)
	}

	if len(bounds) < cfg.MinSegments {
		return nil, &domain.InsufficientDataError{
			Method: domain.MethodWalkForward,
			Reason: fmt.Sprintf("only %d segments fit, %d required", len(bounds), cfg.MinSegments),
		}
	}
	return bounds, nil
}

// Run executes the full walk-forward pass.
func (w *WalkForward) Run(ctx context.Context, series *domain.Series) ([]domain.WalkForwardSegment, *domain.WalkForwardAggregate, error) {
	bounds, err := w.Plan(series.Len())
	if err != nil {
		return nil, nil, err
	}

	segments := make([]domain.WalkForwardSegment, 0, len(bounds))
	for idx, b := range bounds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		seg, err := w.runSegment(ctx, series, idx, b)
		if err != nil {
			return nil, nil, err
		}
		segments = append(segments, *seg)
	}

	return segments, w.aggregate(segments), nil
}

// runSegment selects parameters on the train window and scores the
// winner on the test window. Ties on the train statistic resolve to
// the lowest candidate index, so selection is deterministic.
func (w *WalkForward) runSegment(ctx context.Context, series *domain.Series, idx int, b segmentBounds) (*domain.WalkForwardSegment, error) {
	// The slices carry warmup bars ahead of each window so indicators
	// are primed; the pipeline scores the window proper only.
	warmup := w.Config.WarmupBars
	trainSlice := series.Slice(b.trainStart-warmup, b.trainEnd)
	testSlice := series.Slice(b.testStart-warmup, b.testEnd)

	bestIdx := -1
	bestScore := math.Inf(-1)
	var bestMetrics *domain.MetricSet
	for ci, cand := range w.Candidates {
		m, err := w.Pipeline(ctx, trainSlice, cand, warmup)
		if err != nil {
			return nil, fmt.Errorf("segment %d candidate %d: %w", idx, ci, err)
		}
		if score := m.Statistic(w.Statistic); score > bestScore {
			bestScore = score
			bestIdx = ci
			bestMetrics = m
		}
	}
	if bestIdx < 0 {
		return nil, domain.NewConfigError("walk_forward.candidates", "candidate grid is empty")
	}

	chosen := w.Candidates[bestIdx]
	oosMetrics, err := w.Pipeline(ctx, testSlice, chosen, warmup)
	if err != nil {
		return nil, fmt.Errorf("segment %d out-of-sample: %w", idx, err)
	}

	is := bestMetrics.Statistic(w.Statistic)
	oos := oosMetrics.Statistic(w.Statistic)

	return &domain.WalkForwardSegment{
		Index:              idx,
		TrainStart:         b.trainStart,
		TrainEnd:           b.trainEnd,
		TestStart:          b.testStart,
		TestEnd:            b.testEnd,
		WarmupBars:         warmup,
		ChosenParamsDigest: ParamsDigest(chosen),
		InSampleMetrics:    bestMetrics.AsMap(),
		OutOfSampleMetrics: oosMetrics.AsMap(),
		Stable:             isStable(is, oos),
	}, nil
}

// isStable reports whether the out-of-sample statistic retains the
// in-sample sign and at least half its magnitude.
func isStable(is, oos float64) bool {
	if is == 0 {
		return oos >= 0
	}
	if is > 0 {
		return oos >= is/2
	}
	return oos >= is // losing in sample: stable as long as OOS is no worse
}

// aggregate summarizes the segment results.
func (w *WalkForward) aggregate(segments []domain.WalkForwardSegment) *domain.WalkForwardAggregate {
	agg := &domain.WalkForwardAggregate{TotalSegments: len(segments)}
	if len(segments) == 0 {
		return agg
	}

	oosReturns := make([]float64, 0, len(segments))
	var sharpeSum float64
	compounded := 1.0
	for _, seg := range segments {
		r := seg.OutOfSampleMetrics["cumulative_return"]
		oosReturns = append(oosReturns, r)
		compounded *= 1 + r
		sharpeSum += seg.OutOfSampleMetrics["sharpe"]
		if r > 0 {
			agg.ProfitableSegments++
		}
	}

	agg.AggregateOOSReturn = compounded - 1
	agg.AggregateOOSSharpe = sharpeSum / float64(len(segments))

	// Consistency is 1/(1+CV) of segment OOS returns. A zero mean has
	// undefined CV; treat it as fully inconsistent.
	mu := mean(oosReturns)
	sd := stddev(oosReturns)
	if mu != 0 {
		agg.OOSConsistency = 1 / (1 + sd/math.Abs(mu))
	}
	return agg
}

// ParamsDigest hashes a strategy parameterization canonically: type
// line first, then parameters in sorted key order with fixed float
// formatting.
func ParamsDigest(cfg domain.StrategyConfig) string {
	var b strings.Builder
	b.WriteString("type=")
	b.WriteString(cfg.Type)
	b.WriteByte('\n')

	keys := make([]string, 0, len(cfg.Params))
	for k := range cfg.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(idhash.FormatFloat(cfg.Params[k]))
		b.WriteByte('\n')
	}
	return idhash.DigestBytes([]byte(b.String()))
}
