package verification

import (
	"context"
	"errors"

	"backtest-lab/internal/artifact"
	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
	"backtest-lab/internal/storage"
)

// ErrRunNotFound is returned when the run ID has no stored manifest.
var ErrRunNotFound = errors.New("run not found")

// ReplayOutput is a re-execution of a run, produced by the injected
// replay function. The orchestrator supplies a closure that runs the
// full pipeline from the original config and dataset.
type ReplayOutput struct {
	RunHash string
	Trades  []domain.Trade
	Equity  []domain.EquityBar
	Results []domain.ValidationResult
}

// ReplayFunc re-executes the pipeline for one stored manifest.
type ReplayFunc func(ctx context.Context, m *domain.RunManifest) (*ReplayOutput, error)

// ReplayVerifier compares stored run records against a replay.
type ReplayVerifier struct {
	manifestStore   storage.ManifestStore
	tradeStore      storage.TradeLedgerStore
	equityStore     storage.EquityBarStore
	validationStore storage.ValidationResultStore
	replay          ReplayFunc
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	ManifestStore   storage.ManifestStore
	TradeStore      storage.TradeLedgerStore
	EquityStore     storage.EquityBarStore
	ValidationStore storage.ValidationResultStore
	Replay          ReplayFunc
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		manifestStore:   opts.ManifestStore,
		tradeStore:      opts.TradeStore,
		equityStore:     opts.EquityStore,
		validationStore: opts.ValidationStore,
		replay:          opts.Replay,
	}
}

// VerifyRun replays a stored run and compares every output against the
// persisted records.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, runID string) (*VerificationReport, error) {
	manifest, err := v.manifestStore.GetByRunID(ctx, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	replayed, err := v.replay(ctx, manifest)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		RunID:                 runID,
		ValidationDigestMatch: make(map[string]bool),
	}

	report.RunHashMatch = manifest.RunHash == replayed.RunHash
	if !report.RunHashMatch {
		report.Divergences = append(report.Divergences, FieldDivergence{
			Field:    "RunHash",
			Expected: manifest.RunHash,
			Actual:   replayed.RunHash,
		})
	}

	// Trades: field-level comparison within FloatTolerance.
	storedTrades, err := v.tradeStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	tradeDivs := CompareTrades(storedTrades, replayed.Trades)
	report.TradesMatch = len(tradeDivs) == 0
	report.Divergences = append(report.Divergences, tradeDivs...)

	// Equity: exact digest comparison over the canonical encoding.
	storedEquity, err := v.equityStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	storedDigest := idhash.DigestBytes(artifact.EncodeEquity(storedEquity))
	replayedDigest := idhash.DigestBytes(artifact.EncodeEquity(replayed.Equity))
	report.EquityDigestMatch = storedDigest == replayedDigest
	if !report.EquityDigestMatch {
		report.Divergences = append(report.Divergences, FieldDivergence{
			Field:    "EquityDigest",
			Expected: storedDigest,
			Actual:   replayedDigest,
		})
	}

	// Validation: exact distribution-digest comparison per method.
	storedResults, err := v.validationStore.GetByRunID(ctx, runID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	replayedByMethod := make(map[domain.ValidationMethod]*domain.ValidationResult, len(replayed.Results))
	for i := range replayed.Results {
		replayedByMethod[replayed.Results[i].Method] = &replayed.Results[i]
	}
	for _, stored := range storedResults {
		method := string(stored.Method)
		rep, ok := replayedByMethod[stored.Method]
		if !ok {
			report.ValidationDigestMatch[method] = false
			report.Divergences = append(report.Divergences, FieldDivergence{
				Field:    "validation." + method,
				Expected: stored.DistributionDigest,
				Actual:   nil,
			})
			continue
		}
		match := stored.DistributionDigest == rep.DistributionDigest
		report.ValidationDigestMatch[method] = match
		if !match {
			report.Divergences = append(report.Divergences, FieldDivergence{
				Field:    "validation." + method + ".DistributionDigest",
				Expected: stored.DistributionDigest,
				Actual:   rep.DistributionDigest,
			})
		}
	}

	return report, nil
}
