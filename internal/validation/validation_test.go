package validation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"backtest-lab/internal/domain"
)

func TestPValue_InclusiveBoundary(t *testing.T) {
	// Two of four trials >= observed, one exactly equal. The equal
	// trial counts toward the p-value.
	trials := []float64{0.1, 0.5, 0.5, 0.9}
	if pv := PValue(trials, 0.5); pv != 0.75 {
		t.Errorf("p-value = %g, want 0.75 (inclusive boundary)", pv)
	}
	if ratio := ExtremeTailRatio(trials, 0.5); ratio != 0.25 {
		t.Errorf("extreme tail ratio = %g, want 0.25 (strict boundary)", ratio)
	}
}

func TestRunIndexed_OrderIndependentOfWorkers(t *testing.T) {
	fn := func(i int) (float64, error) {
		return float64(i) * 1.5, nil
	}
	base, err := RunIndexed(context.Background(), 1, 64, fn)
	if err != nil {
		t.Fatal(err)
	}
	for _, workers := range []int{2, 4, 16, 100} {
		got, err := RunIndexed(context.Background(), workers, 64, fn)
		if err != nil {
			t.Fatal(err)
		}
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("workers=%d: result[%d] = %g, want %g", workers, i, got[i], base[i])
			}
		}
	}
}

func TestRunIndexed_FirstErrorWins(t *testing.T) {
	wantErr := errors.New("trial exploded")
	_, err := RunIndexed(context.Background(), 4, 50, func(i int) (float64, error) {
		if i == 7 {
			return 0, wantErr
		}
		return 0, nil
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestRunIndexed_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunIndexed(ctx, 4, 10, func(i int) (float64, error) { return 0, nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func syntheticSeries(n int) *domain.Series {
	s := &domain.Series{
		Timestamps: make([]int64, n),
		Open:       make([]float64, n),
		High:       make([]float64, n),
		Low:        make([]float64, n),
		Close:      make([]float64, n),
		Volume:     make([]float64, n),
		BarMinutes: 1440,
	}
	price := 100.0
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		s.Timestamps[i] = int64(i) * 86_400_000
		price *= 1 + (rng.Float64()-0.5)*0.02
		s.Open[i] = price * 0.999
		s.High[i] = price * 1.001
		s.Low[i] = price * 0.998
		s.Close[i] = price
		s.Volume[i] = 1000
	}
	return s
}

func TestPermuteSeries_PreservesAnchorAndLength(t *testing.T) {
	series := syntheticSeries(100)
	out := permuteSeries(series, rand.New(rand.NewSource(42)))

	if out.Len() != series.Len() {
		t.Fatalf("length changed: %d -> %d", series.Len(), out.Len())
	}
	if out.Close[0] != series.Close[0] {
		t.Errorf("first close must anchor the surrogate path: %g != %g", out.Close[0], series.Close[0])
	}
	// The total compounded return is invariant under a shuffle of the
	// relatives, so the last close is preserved up to rounding.
	if math.Abs(out.Close[99]-series.Close[99]) > 1e-9*series.Close[99] {
		t.Errorf("last close = %g, want %g (product of relatives is shuffle-invariant)", out.Close[99], series.Close[99])
	}
}

func TestPermuteSeries_GapBarsStayFixed(t *testing.T) {
	series := syntheticSeries(100)
	series.Volume[40] = 0 // gap bar

	gapRelative := series.Close[40] / series.Close[39]
	out := permuteSeries(series, rand.New(rand.NewSource(42)))
	outRelative := out.Close[40] / out.Close[39]

	if math.Abs(outRelative-gapRelative) > 1e-12 {
		t.Errorf("gap bar relative moved: %g, want %g", outRelative, gapRelative)
	}
}

func TestPermuteSeries_DeterministicPerSeed(t *testing.T) {
	series := syntheticSeries(100)
	a := permuteSeries(series, rand.New(rand.NewSource(9)))
	b := permuteSeries(series, rand.New(rand.NewSource(9)))
	for i := range a.Close {
		if a.Close[i] != b.Close[i] {
			t.Fatalf("same seed produced different surrogates at bar %d", i)
		}
	}
}

func TestPermutation_ZeroTrialsPlaceholder(t *testing.T) {
	perm := &Permutation{Trials: 0, Statistic: domain.StatisticTotalReturn}
	res, err := perm.Run(context.Background(), syntheticSeries(10), 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if res.TrialCount != 0 || res.PValue != nil {
		t.Errorf("zero trials must yield a placeholder: count=%d pvalue=%v", res.TrialCount, res.PValue)
	}
	if res.DistributionDigest == "" {
		t.Error("placeholder still carries a digest of the empty distribution")
	}
}

func TestPermutation_DeterministicAcrossWorkerCounts(t *testing.T) {
	series := syntheticSeries(120)
	pipeline := func(ctx context.Context, s *domain.Series) (*domain.MetricSet, error) {
		// Statistic derived purely from the surrogate path.
		return &domain.MetricSet{CumulativeReturn: s.Close[50] / s.Close[0]}, nil
	}

	run := func(workers int) *domain.ValidationResult {
		perm := &Permutation{Trials: 40, Seed: 1234, Workers: workers, Statistic: domain.StatisticTotalReturn, Pipeline: pipeline}
		res, err := perm.Run(context.Background(), series, 1.0)
		if err != nil {
			t.Fatal(err)
		}
		return res
	}

	one := run(1)
	eight := run(8)
	if one.DistributionDigest != eight.DistributionDigest {
		t.Error("distribution digest depends on worker count")
	}
	if *one.PValue != *eight.PValue {
		t.Errorf("p-value depends on worker count: %g != %g", *one.PValue, *eight.PValue)
	}
}

func TestBlockBootstrap_InsufficientData(t *testing.T) {
	boot := &BlockBootstrap{Trials: 10, BlockLength: 20, Confidence: 0.95, Statistic: domain.StatisticTotalReturn}
	_, err := boot.Run(context.Background(), make([]float64, 5), 0.1)
	if !domain.IsInsufficientData(err) {
		t.Fatalf("err = %v, want InsufficientDataError", err)
	}
}

func TestBlockBootstrap_ConfidenceInterval(t *testing.T) {
	returns := make([]float64, 200)
	rng := rand.New(rand.NewSource(3))
	for i := range returns {
		returns[i] = (rng.Float64() - 0.48) * 0.01
	}

	boot := &BlockBootstrap{
		Trials:      100,
		BlockLength: 20,
		Confidence:  0.95,
		Seed:        42,
		Workers:     4,
		Statistic:   domain.StatisticTotalReturn,
		BarMinutes:  1440,
	}
	res, err := boot.Run(context.Background(), returns, 0.02)
	if err != nil {
		t.Fatal(err)
	}
	if res.CILow == nil || res.CIHigh == nil || res.CIWidth == nil {
		t.Fatal("bootstrap result missing CI fields")
	}
	if *res.CILow > *res.CIHigh {
		t.Errorf("CI inverted: [%g, %g]", *res.CILow, *res.CIHigh)
	}
	if *res.CIWidth != *res.CIHigh-*res.CILow {
		t.Errorf("CI width %g inconsistent with bounds", *res.CIWidth)
	}
	if res.GatePassed == nil || !*res.GatePassed {
		t.Error("disabled gate threshold must always pass")
	}
	if res.TrialCount != 100 {
		t.Errorf("trial count = %d, want 100", res.TrialCount)
	}
}

func TestBlockBootstrap_DeterministicAcrossWorkerCounts(t *testing.T) {
	returns := make([]float64, 100)
	for i := range returns {
		returns[i] = math.Sin(float64(i)) * 0.01
	}
	run := func(workers int) string {
		boot := &BlockBootstrap{Trials: 50, BlockLength: 10, Confidence: 0.9, Seed: 7, Workers: workers, Statistic: domain.StatisticTotalReturn, BarMinutes: 1440}
		res, err := boot.Run(context.Background(), returns, 0)
		if err != nil {
			t.Fatal(err)
		}
		return res.DistributionDigest
	}
	if run(1) != run(6) {
		t.Error("bootstrap digest depends on worker count")
	}
}

func TestWalkForward_PlanBoundaries(t *testing.T) {
	wf := &WalkForward{Config: &domain.WalkForwardConfig{TrainBars: 100, TestBars: 50, StepBars: 50, MinSegments: 2}}
	bounds, err := wf.Plan(300)
	if err != nil {
		t.Fatal(err)
	}
	if len(bounds) < 2 {
		t.Fatalf("got %d segments, want >= 2", len(bounds))
	}
	for i, b := range bounds {
		if b.trainEnd != b.testStart {
			t.Errorf("segment %d: train end %d != test start %d", i, b.trainEnd, b.testStart)
		}
		if b.testEnd > 300 {
			t.Errorf("segment %d overruns the series: test end %d", i, b.testEnd)
		}
	}
}

func TestWalkForward_PlanRejectsBadGeometry(t *testing.T) {
	wf := &WalkForward{Config: &domain.WalkForwardConfig{TrainBars: 10, TestBars: 5, WarmupBars: 10}}
	_, err := wf.Plan(300)
	if !domain.IsConfigError(err) {
		t.Fatalf("warmup >= train must be a ConfigError, got %v", err)
	}

	wf = &WalkForward{Config: &domain.WalkForwardConfig{TrainBars: 0, TestBars: 5}}
	if _, err := wf.Plan(300); !domain.IsConfigError(err) {
		t.Fatalf("train_bars = 0 must be a ConfigError, got %v", err)
	}
}

func TestWalkForward_PlanInsufficientSegments(t *testing.T) {
	wf := &WalkForward{Config: &domain.WalkForwardConfig{TrainBars: 200, TestBars: 100, MinSegments: 3}}
	_, err := wf.Plan(350)
	if !domain.IsInsufficientData(err) {
		t.Fatalf("err = %v, want InsufficientDataError", err)
	}
}

func TestWalkForward_DeterministicTieBreak(t *testing.T) {
	series := syntheticSeries(300)
	candidates := []domain.StrategyConfig{
		{Type: "MOMENTUM_THRESHOLD", Params: map[string]float64{"lookback": 10}},
		{Type: "MOMENTUM_THRESHOLD", Params: map[string]float64{"lookback": 20}},
	}
	// Every candidate scores identically; selection must resolve to
	// the first candidate on every segment.
	segmentFn := func(ctx context.Context, s *domain.Series, strat domain.StrategyConfig, warmupBars int) (*domain.MetricSet, error) {
		return &domain.MetricSet{CumulativeReturn: 0.1, Sharpe: 1}, nil
	}
	wf := &WalkForward{
		Config:     &domain.WalkForwardConfig{TrainBars: 100, TestBars: 50, StepBars: 50, MinSegments: 2},
		Statistic:  domain.StatisticTotalReturn,
		Candidates: candidates,
		Pipeline:   segmentFn,
	}
	segments, agg, err := wf.Run(context.Background(), series)
	if err != nil {
		t.Fatal(err)
	}
	wantDigest := ParamsDigest(candidates[0])
	for _, seg := range segments {
		if seg.ChosenParamsDigest != wantDigest {
			t.Errorf("segment %d chose a non-first candidate on a tie", seg.Index)
		}
		if !seg.Stable {
			t.Errorf("segment %d: identical IS and OOS statistic must be stable", seg.Index)
		}
	}
	if agg.ProfitableSegments != agg.TotalSegments {
		t.Errorf("all segments profitable, got %d of %d", agg.ProfitableSegments, agg.TotalSegments)
	}
	if agg.OOSConsistency != 1 {
		t.Errorf("identical segment returns must give consistency 1, got %g", agg.OOSConsistency)
	}
}

func TestWalkForward_WarmupPrimesButIsNotScored(t *testing.T) {
	series := syntheticSeries(300)

	type call struct{ bars, warmup int }
	var calls []call
	segmentFn := func(ctx context.Context, s *domain.Series, strat domain.StrategyConfig, warmupBars int) (*domain.MetricSet, error) {
		calls = append(calls, call{bars: s.Len(), warmup: warmupBars})
		return &domain.MetricSet{CumulativeReturn: 0.1}, nil
	}
	wf := &WalkForward{
		Config:     &domain.WalkForwardConfig{TrainBars: 100, TestBars: 50, StepBars: 50, WarmupBars: 20, MinSegments: 1},
		Statistic:  domain.StatisticTotalReturn,
		Candidates: []domain.StrategyConfig{{Type: "MA_CROSS", Params: map[string]float64{"fast": 5, "slow": 10}}},
		Pipeline:   segmentFn,
	}

	segments, _, err := wf.Run(context.Background(), series)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want 3", len(segments))
	}
	// One candidate: each segment makes one train call then one test
	// call. The slice carries the warmup bars and the pipeline is told
	// how many to exclude, so the scored window is train/test proper.
	if len(calls) != 2*len(segments) {
		t.Fatalf("got %d pipeline calls, want %d", len(calls), 2*len(segments))
	}
	for i, c := range calls {
		if c.warmup != 20 {
			t.Errorf("call %d: warmup = %d, want 20", i, c.warmup)
		}
		want := 120 // warmup + train
		if i%2 == 1 {
			want = 70 // warmup + test
		}
		if c.bars != want {
			t.Errorf("call %d: series length %d, want %d", i, c.bars, want)
		}
	}
}

func TestParamsDigest_SortedAndDistinct(t *testing.T) {
	a := ParamsDigest(domain.StrategyConfig{Type: "MA_CROSS", Params: map[string]float64{"fast": 20, "slow": 50}})
	b := ParamsDigest(domain.StrategyConfig{Type: "MA_CROSS", Params: map[string]float64{"slow": 50, "fast": 20}})
	if a != b {
		t.Error("digest must be independent of map iteration order")
	}
	c := ParamsDigest(domain.StrategyConfig{Type: "MA_CROSS", Params: map[string]float64{"fast": 20, "slow": 51}})
	if a == c {
		t.Error("different parameters must digest differently")
	}
}

func TestEngine_SkipDoesNotAffectSiblings(t *testing.T) {
	series := syntheticSeries(100)
	pipeline := func(ctx context.Context, s *domain.Series) (*domain.MetricSet, error) {
		return &domain.MetricSet{CumulativeReturn: 0.05}, nil
	}
	eng := NewEngine(EngineOptions{
		Config: domain.ValidationConfig{
			Statistic:   domain.StatisticTotalReturn,
			Workers:     2,
			Permutation: &domain.PermutationConfig{Trials: 10},
			// Block length far exceeds the return series: bootstrap skips.
			Bootstrap: &domain.BootstrapConfig{Trials: 10, BlockLength: 5000, Confidence: 0.95},
		},
		Seed:       99,
		BarMinutes: 1440,
		Pipeline:   pipeline,
	})

	out, err := eng.Run(context.Background(), series, make([]float64, 99), &domain.MetricSet{CumulativeReturn: 0.1})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(out.Results))
	}
	var perm, boot *domain.ValidationResult
	for i := range out.Results {
		switch out.Results[i].Method {
		case domain.MethodPermutation:
			perm = &out.Results[i]
		case domain.MethodBlockBootstrap:
			boot = &out.Results[i]
		}
	}
	if perm == nil || perm.Skipped {
		t.Error("permutation must run despite the bootstrap being skipped")
	}
	if boot == nil || !boot.Skipped || boot.SkipReason == "" {
		t.Error("bootstrap must carry an explicit skip marker with a reason")
	}
}
