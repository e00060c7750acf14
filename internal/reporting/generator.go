// Package reporting renders run results into Markdown and CSV
// documents. Rendering is read-only over the stores and deterministic
// given an injected clock.
package reporting

import (
	"context"
	"errors"
	"time"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/metrics"
	"backtest-lab/internal/storage"
)

// Generator produces reports from stored run data.
type Generator struct {
	manifestStore   storage.ManifestStore
	tradeStore      storage.TradeLedgerStore
	equityStore     storage.EquityBarStore
	validationStore storage.ValidationResultStore
	barMinutes      int
	now             func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(
	manifestStore storage.ManifestStore,
	tradeStore storage.TradeLedgerStore,
	equityStore storage.EquityBarStore,
	validationStore storage.ValidationResultStore,
	barMinutes int,
) *Generator {
	return &Generator{
		manifestStore:   manifestStore,
		tradeStore:      tradeStore,
		equityStore:     equityStore,
		validationStore: validationStore,
		barMinutes:      barMinutes,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the full report for one run.
func (g *Generator) Generate(ctx context.Context, runID string) (*Report, error) {
	manifest, err := g.manifestStore.GetByRunID(ctx, runID)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt:   g.now(),
		RunID:         manifest.RunID,
		RunHash:       manifest.RunHash,
		ConfigHash:    manifest.ConfigHash,
		DatasetDigest: manifest.DatasetDigest,
		Status:        manifest.Status,
		FailureCause:  manifest.FailureCause,
		Anomalies:     manifest.Anomalies,
		Violations:    manifest.Violations.ViolationCount,
	}

	// Trades and equity may be absent for runs that failed early;
	// the report still renders with what exists.
	trades, err := g.tradeStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	equity, err := g.equityStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if len(equity) > 0 {
		report.Metrics = *metrics.Compute(equity, trades, g.barMinutes)
	}

	results, err := g.validationStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	for _, r := range results {
		report.Validation = append(report.Validation, ValidationRow{
			Method:     string(r.Method),
			Observed:   r.Observed,
			TrialCount: r.TrialCount,
			PValue:     r.PValue,
			CILow:      r.CILow,
			CIHigh:     r.CIHigh,
			GatePassed: r.GatePassed,
			Skipped:    r.Skipped,
			SkipReason: r.SkipReason,
		})
	}

	return report, nil
}

// AttachWalkForward fills the walk-forward sections from in-memory
// results. Walk-forward segments are run-scoped artifacts, not stored
// rows, so the orchestrator hands them over directly.
func (r *Report) AttachWalkForward(segments []domain.WalkForwardSegment, agg *domain.WalkForwardAggregate) {
	for _, s := range segments {
		r.Segments = append(r.Segments, SegmentRow{
			Index:       s.Index,
			TrainStart:  s.TrainStart,
			TrainEnd:    s.TrainEnd,
			TestStart:   s.TestStart,
			TestEnd:     s.TestEnd,
			ISReturn:    s.InSampleMetrics["cumulative_return"],
			OOSReturn:   s.OutOfSampleMetrics["cumulative_return"],
			OOSSharpe:   s.OutOfSampleMetrics["sharpe"],
			Stable:      s.Stable,
			ParamDigest: s.ChosenParamsDigest,
		})
	}
	r.WFAggregate = agg
	if agg != nil {
		score := agg.CompositeScore
		r.CompositeScore = &score
	}
}
