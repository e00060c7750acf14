package orchestrator

import (
	"context"
	"errors"
	"time"

	"backtest-lab/internal/artifact"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/storage"
)

// finalize builds the manifest from whatever the run produced,
// persists everything, and emits the terminal snapshot. It runs for
// success and failure alike; a failed run keeps its partial artifacts.
func (o *Orchestrator) finalize(ctx context.Context, state *runState, started time.Time, finalPhase domain.Phase, failErr error) (*RunResult, error) {
	status := domain.StatusSuccess
	failureCause := ""
	if failErr != nil {
		status = domain.StatusFailure
		failureCause = failErr.Error()
	}

	precision := o.config.FloatPrecision
	if precision <= 0 {
		precision = domain.DefaultFloatPrecision
	}

	manifest := &domain.RunManifest{
		RunID:          state.identity.RunID,
		RunHash:        state.identity.RunHash,
		ConfigHash:     state.identity.ConfigHash,
		DatasetDigest:  o.snapshot.ContentDigest,
		SeedTree:       state.identity.SeedTree,
		FloatPrecision: precision,
		CreatedAt:      o.now().UnixMilli(),
		Status:         status,
		FailureCause:   failureCause,
		FinalPhase:     finalPhase,
		Anomalies:      state.anomalies,
		Violations:     state.guard.Metric(),
	}

	// Artifact encodings. Only what the run actually produced; a run
	// that failed before execution has no trade or equity artifact.
	artifacts := make(map[string][]byte)
	if state.simOut != nil {
		trades := artifact.EncodeTrades(state.simOut.Trades)
		equity := artifact.EncodeEquity(state.simOut.Equity)
		artifacts[artifact.NameTrades] = trades
		artifacts[artifact.NameEquity] = equity
		manifest.Artifacts = append(manifest.Artifacts,
			artifact.Describe(artifact.NameTrades, trades),
			artifact.Describe(artifact.NameEquity, equity),
		)
	}
	if state.valOut != nil {
		val := artifact.EncodeValidation(state.valOut.Results, state.valOut.Segments, state.valOut.WFAggregate)
		artifacts[artifact.NameValidation] = val
		manifest.Artifacts = append(manifest.Artifacts,
			artifact.Describe(artifact.NameValidation, val))
	}

	if err := o.chainManifest(ctx, manifest); err != nil {
		return nil, err
	}

	// The manifest artifact is encoded last so it can carry the other
	// descriptors and the chain link.
	manifestBytes := artifact.EncodeManifest(manifest)
	artifacts[artifact.NameManifest] = manifestBytes

	if err := o.persist(ctx, state, manifest); err != nil {
		if failErr == nil {
			failErr = err
		} else {
			o.log("persist after failure: %v", err)
		}
	}

	o.observeRun(status, started)
	o.emit(ctx, state, domain.PhaseFinalize)

	result := &RunResult{
		Identity:  state.identity,
		Manifest:  manifest,
		Artifacts: artifacts,
	}
	if state.simOut != nil {
		result.Trades = state.simOut.Trades
		result.Equity = state.simOut.Equity
	}
	result.Metrics = state.metrics
	result.Validation = state.valOut
	result.Robustness = state.score

	return result, failErr
}

// chainManifest links the new manifest to the most recent stored one
// for tamper evidence. First run in an empty store has no link.
func (o *Orchestrator) chainManifest(ctx context.Context, manifest *domain.RunManifest) error {
	if o.manifestStore == nil {
		return nil
	}
	prev, err := o.manifestStore.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	manifest.PrevManifestDigest = idhash.DigestBytes(artifact.EncodeManifest(prev))
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, state *runState, manifest *domain.RunManifest) error {
	if o.manifestStore != nil {
		if err := o.manifestStore.Insert(ctx, manifest); err != nil {
			return err
		}
	}
	if state.simOut == nil {
		return nil
	}
	if o.tradeStore != nil && len(state.simOut.Trades) > 0 {
		if err := o.tradeStore.InsertBulk(ctx, manifest.RunID, state.simOut.Trades); err != nil {
			return err
		}
	}
	if o.equityStore != nil && len(state.simOut.Equity) > 0 {
		if err := o.equityStore.InsertBulk(ctx, manifest.RunID, state.simOut.Equity); err != nil {
			return err
		}
	}
	if o.validationStore != nil && state.valOut != nil {
		for i := range state.valOut.Results {
			if err := o.validationStore.Insert(ctx, manifest.RunID, &state.valOut.Results[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) observeRun(status domain.RunStatus, started time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.RunsTotal.WithLabelValues(string(status)).Inc()
	o.metrics.RunDuration.WithLabelValues(string(status)).Observe(o.now().Sub(started).Seconds())
}
