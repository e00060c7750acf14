// Package orchestrator drives the run state machine.
// Flow: data validation → feature build → signals → execution →
// metrics → validation → finalize. Transitions are forward-only; any
// failure moves directly to finalize carrying the partial artifacts
// produced so far.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/events"
	"backtest-lab/internal/execution"
	"backtest-lab/internal/feature"
	"backtest-lab/internal/guard"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/observability"
	"backtest-lab/internal/robustness"
	"backtest-lab/internal/signal"
	"backtest-lab/internal/storage"
	"backtest-lab/internal/validation"
)

// Orchestrator owns the lifetime of all intermediate entities for the
// duration of one run. It holds the single causality guard instance
// and passes it to the signal and execution phases so both observe one
// consistent fence.
type Orchestrator struct {
	config   domain.RunConfig
	series   *domain.Series
	snapshot *domain.DatasetSnapshot

	// Candidate strategy parameterizations for walk-forward train
	// selection. Defaults to the configured strategy alone.
	candidates []domain.StrategyConfig

	// Stores; all nil disables persistence (dry runs, verification).
	manifestStore   storage.ManifestStore
	tradeStore      storage.TradeLedgerStore
	equityStore     storage.EquityBarStore
	validationStore storage.ValidationResultStore

	sink    events.Sink
	metrics *observability.Metrics
	logger  *log.Logger
	now     func() time.Time
}

// Options for creating an Orchestrator.
type Options struct {
	Config   domain.RunConfig
	Series   *domain.Series
	Snapshot *domain.DatasetSnapshot

	Candidates []domain.StrategyConfig

	ManifestStore   storage.ManifestStore
	TradeStore      storage.TradeLedgerStore
	EquityStore     storage.EquityBarStore
	ValidationStore storage.ValidationResultStore

	Sink    events.Sink    // nil defaults to NopSink
	Metrics *observability.Metrics
	Logger  *log.Logger
	Now     func() time.Time // injectable clock for manifest timestamps
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	// Defaults are stamped up front so validation, identity derivation
	// and every phase see one canonical config.
	o := &Orchestrator{
		config:          opts.Config.Normalized(),
		series:          opts.Series,
		snapshot:        opts.Snapshot,
		candidates:      opts.Candidates,
		manifestStore:   opts.ManifestStore,
		tradeStore:      opts.TradeStore,
		equityStore:     opts.EquityStore,
		validationStore: opts.ValidationStore,
		sink:            opts.Sink,
		metrics:         opts.Metrics,
		logger:          opts.Logger,
		now:             opts.Now,
	}
	if o.sink == nil {
		o.sink = events.NopSink{}
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.now == nil {
		o.now = func() time.Time { return time.Now().UTC() }
	}
	if len(o.candidates) == 0 {
		o.candidates = []domain.StrategyConfig{opts.Config.Strategy}
	}
	return o
}

// RunResult contains everything one run produced.
type RunResult struct {
	Identity *idhash.Identity
	Manifest *domain.RunManifest

	Trades  []domain.Trade
	Equity  []domain.EquityBar
	Metrics *domain.MetricSet

	Validation *validation.Outcome
	Robustness *robustness.Breakdown

	// Artifacts maps artifact name to its canonical encoding. The
	// bytes here are exactly what the descriptors in the manifest
	// were digested from.
	Artifacts map[string][]byte
}

// runState carries the mutable accumulation of one run between phases.
type runState struct {
	identity  *idhash.Identity
	anomalies domain.AnomalyCounters
	guard     *guard.Guard

	features *feature.Set
	timeline *signal.Timeline
	simOut   *execution.Result
	metrics  *domain.MetricSet
	valOut   *validation.Outcome
	score    *robustness.Breakdown

	snapSeq int
}

// Run executes the full state machine. The returned RunResult is
// non-nil whenever a manifest was produced, including on failure; the
// error then carries the failure cause.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	started := o.now()

	if err := o.config.Validate(); err != nil {
		// Pre-flight failure: no identity can be derived from an
		// invalid config, so there is no manifest to write.
		return nil, err
	}

	identity, err := idhash.Derive(&o.config, o.snapshot.ContentDigest)
	if err != nil {
		return nil, err
	}

	state := &runState{identity: identity}
	state.guard = guard.New(o.config.GuardMode, o.logger)

	phases := []struct {
		phase domain.Phase
		run   func(context.Context, *runState) error
	}{
		{domain.PhaseDataValidation, o.phaseDataValidation},
		{domain.PhaseFeatureBuild, o.phaseFeatureBuild},
		{domain.PhaseSignals, o.phaseSignals},
		{domain.PhaseExecution, o.phaseExecution},
		{domain.PhaseMetrics, o.phaseMetrics},
		{domain.PhaseValidation, o.phaseValidation},
	}

	for _, p := range phases {
		// Cooperative cancellation, checked only at phase boundaries.
		if err := ctx.Err(); err != nil {
			return o.finalize(ctx, state, started, p.phase, fmt.Errorf("run cancelled before %s: %w", p.phase, err))
		}

		phaseStart := o.now()
		if err := p.run(ctx, state); err != nil {
			return o.finalize(ctx, state, started, p.phase, fmt.Errorf("phase %s: %w", p.phase, err))
		}
		o.observePhase(p.phase, phaseStart)
		o.emit(ctx, state, p.phase)
	}

	return o.finalize(ctx, state, started, domain.PhaseFinalize, nil)
}

// phaseDataValidation folds ingestion counters into the run's anomaly
// accumulator and rejects empty datasets.
func (o *Orchestrator) phaseDataValidation(_ context.Context, state *runState) error {
	if o.series == nil || o.series.Len() == 0 {
		return domain.NewConfigError("dataset", "empty series")
	}
	if o.snapshot.ContentDigest == "" {
		return domain.NewConfigError("dataset", "missing content digest")
	}
	state.anomalies.Gaps = o.snapshot.GapCount
	state.anomalies.Duplicates = o.snapshot.DuplicateCount
	return nil
}

func (o *Orchestrator) phaseFeatureBuild(_ context.Context, state *runState) error {
	set, err := feature.Build(o.series, o.featureSpecs(o.config.Strategy))
	if err != nil {
		return err
	}
	state.features = set
	return nil
}

func (o *Orchestrator) phaseSignals(ctx context.Context, state *runState) error {
	strat, err := signal.FromConfig(o.config.Strategy)
	if err != nil {
		return err
	}
	timeline, err := signal.Evaluate(ctx, state.guard, o.series, state.features, strat)
	if err != nil {
		return err
	}
	state.timeline = timeline
	state.anomalies.NaNSignals = timeline.NaNSignals
	return nil
}

func (o *Orchestrator) phaseExecution(ctx context.Context, state *runState) error {
	sim, err := execution.New(o.config.Execution, o.config.Costs)
	if err != nil {
		return err
	}
	out, err := sim.Run(ctx, state.guard, o.series, state.timeline)
	if err != nil {
		return err
	}
	state.simOut = out
	state.anomalies.ZeroVolumeBars = out.ZeroVolumeBars

	if o.metrics != nil {
		o.metrics.TradesSimulated.Add(float64(len(out.Trades)))
		o.metrics.BarsProcessed.Add(float64(o.series.Len()))
		o.metrics.CausalityViolations.Add(float64(state.guard.Violations()))
	}
	return nil
}

func (o *Orchestrator) phaseMetrics(_ context.Context, state *runState) error {
	state.metrics = metrics.Compute(state.simOut.Equity, state.simOut.Trades, o.series.BarMinutes)
	return nil
}

func (o *Orchestrator) phaseValidation(ctx context.Context, state *runState) error {
	engine := validation.NewEngine(validation.EngineOptions{
		Config:     o.config.Validation,
		WalkFwd:    o.config.WalkForward,
		Seed:       state.identity.SeedTree[domain.SeedScopeValidation],
		BarMinutes: o.series.BarMinutes,
		Candidates: o.candidates,
		Pipeline:   o.trialPipeline(),
		SegmentFn:  o.segmentPipeline(),
		Logger:     o.logger,
	})

	returns := metrics.BarReturns(state.simOut.Equity)
	out, err := engine.Run(ctx, o.series, returns, state.metrics)
	if err != nil {
		return err
	}
	state.valOut = out

	if o.metrics != nil {
		for _, r := range out.Results {
			if r.Skipped {
				o.metrics.ValidationSkipped.WithLabelValues(string(r.Method)).Inc()
			} else {
				o.metrics.ValidationTrials.WithLabelValues(string(r.Method)).Add(float64(r.TrialCount))
			}
		}
	}

	state.score = o.scoreRobustness(state)
	return nil
}

// scoreRobustness folds validation evidence into the composite score
// and stamps it onto the walk-forward aggregate when one exists.
func (o *Orchestrator) scoreRobustness(state *runState) *robustness.Breakdown {
	in := robustness.Inputs{
		WalkForward:    state.valOut.WFAggregate,
		ObservedReturn: state.metrics.CumulativeReturn,
		FloatPrecision: o.config.FloatPrecision,
	}
	for _, r := range state.valOut.Results {
		if r.Method == domain.MethodPermutation && !r.Skipped {
			in.PValue = r.PValue
			in.ExtremeTailRatio = validation.ExtremeTailRatio(r.Distribution, r.Observed)
		}
	}

	breakdown := robustness.Score(in, o.config.Robustness)
	if agg := state.valOut.WFAggregate; agg != nil {
		agg.ExtremeTailRatio = in.ExtremeTailRatio
		agg.CompositeScore = breakdown.Composite
	}
	return &breakdown
}

// featureSpecs returns the feature list for one strategy
// parameterization. Derived per strategy config because walk-forward
// candidates carry their own indicator windows; strategies without
// derivable requirements use the configured feature list.
func (o *Orchestrator) featureSpecs(strat domain.StrategyConfig) []domain.FeatureSpec {
	if specs := signal.RequiredFeatures(strat, o.config.CausalityShift); specs != nil {
		return specs
	}
	return o.config.Features
}

// trialPipeline builds the closure permutation trials re-run on each
// surrogate series. Every trial gets a fresh guard and a fresh
// strategy instance; trial state never leaks between trials.
func (o *Orchestrator) trialPipeline() validation.PipelineFunc {
	return func(ctx context.Context, series *domain.Series) (*domain.MetricSet, error) {
		return o.runPipeline(ctx, series, o.config.Strategy, 0)
	}
}

// segmentPipeline builds the closure walk-forward segments evaluate
// candidate parameterizations with.
func (o *Orchestrator) segmentPipeline() validation.SegmentPipelineFunc {
	return func(ctx context.Context, series *domain.Series, strat domain.StrategyConfig, warmupBars int) (*domain.MetricSet, error) {
		return o.runPipeline(ctx, series, strat, warmupBars)
	}
}

// runPipeline is one full feature → signal → execution → metrics pass
// over an arbitrary series, used by validation trials and segments.
// The leading warmupBars prime indicators and the book; they are
// excluded from the metrics.
func (o *Orchestrator) runPipeline(ctx context.Context, series *domain.Series, stratCfg domain.StrategyConfig, warmupBars int) (*domain.MetricSet, error) {
	set, err := feature.Build(series, o.featureSpecs(stratCfg))
	if err != nil {
		return nil, err
	}
	strat, err := signal.FromConfig(stratCfg)
	if err != nil {
		return nil, err
	}

	g := guard.New(o.config.GuardMode, o.logger)
	timeline, err := signal.Evaluate(ctx, g, series, set, strat)
	if err != nil {
		return nil, err
	}

	sim, err := execution.New(o.config.Execution, o.config.Costs)
	if err != nil {
		return nil, err
	}
	out, err := sim.Run(ctx, g, series, timeline)
	if err != nil {
		return nil, err
	}

	equity, trades := out.Equity, out.Trades
	if warmupBars > 0 && warmupBars < len(equity) {
		equity = equity[warmupBars:]
		scored := make([]domain.Trade, 0, len(trades))
		for _, tr := range trades {
			if tr.BarIndex < warmupBars {
				continue
			}
			tr.BarIndex -= warmupBars
			scored = append(scored, tr)
		}
		trades = scored
	}
	return metrics.Compute(equity, trades, series.BarMinutes), nil
}

// emit publishes one snapshot with the next sequence number.
func (o *Orchestrator) emit(ctx context.Context, state *runState, phase domain.Phase) {
	snap := &domain.SummarySnapshot{
		RunID:    state.identity.RunID,
		Sequence: state.snapSeq,
		Phase:    phase,
		Progress: domain.Progress(phase),
	}
	state.snapSeq++

	if state.simOut != nil {
		snap.TradeCount = len(state.simOut.Trades)
		final := state.simOut.FinalEquity(o.config.Execution.InitialCash)
		snap.FinalEquity = &final
	}
	if state.valOut != nil {
		for _, r := range state.valOut.Results {
			if r.Method == domain.MethodPermutation {
				snap.PValue = r.PValue
			}
		}
	}
	if phase == domain.PhaseFinalize {
		anomalies := state.anomalies
		snap.Anomalies = &anomalies
	}

	o.sink.Publish(ctx, snap)
}

func (o *Orchestrator) observePhase(phase domain.Phase, started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(o.now().Sub(started).Seconds())
}

func (o *Orchestrator) log(format string, args ...any) {
	o.logger.Printf("[orchestrator] "+format, args...)
}
