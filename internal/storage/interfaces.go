// Package storage defines the persistence interfaces for run outputs.
// All stores are write-once per run: a run's records are inserted
// exactly once under its run_id and never updated.
package storage

import (
	"context"

	"backtest-lab/internal/domain"
)

// ManifestStore provides access to run_manifests storage.
type ManifestStore interface {
	// Insert adds a new manifest. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, m *domain.RunManifest) error

	// GetByRunID retrieves a manifest by run ID. Returns ErrNotFound if not exists.
	GetByRunID(ctx context.Context, runID string) (*domain.RunManifest, error)

	// GetLatest retrieves the most recently created manifest.
	// Returns ErrNotFound when the store is empty.
	GetLatest(ctx context.Context) (*domain.RunManifest, error)

	// GetAll retrieves all manifests ordered by created_at ASC, run_id ASC.
	GetAll(ctx context.Context) ([]*domain.RunManifest, error)
}

// TradeLedgerStore provides access to trade_ledger storage.
type TradeLedgerStore interface {
	// InsertBulk adds all trades of one run atomically.
	// Returns ErrDuplicateKey if the run already has trades.
	InsertBulk(ctx context.Context, runID string, trades []domain.Trade) error

	// GetByRunID retrieves all trades for a run, ordered by bar_index ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error)
}

// EquityBarStore provides access to equity_bars storage.
type EquityBarStore interface {
	// InsertBulk adds all equity bars of one run.
	// Returns ErrDuplicateKey if the run already has bars.
	InsertBulk(ctx context.Context, runID string, bars []domain.EquityBar) error

	// GetByRunID retrieves all bars for a run, ordered by bar_index ASC.
	GetByRunID(ctx context.Context, runID string) ([]domain.EquityBar, error)

	// GetByTimeRange retrieves bars for a run within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, runID string, start, end int64) ([]domain.EquityBar, error)
}

// ValidationResultStore provides access to validation_results storage.
type ValidationResultStore interface {
	// Insert adds one method's result. Returns ErrDuplicateKey if
	// (run_id, method) exists.
	Insert(ctx context.Context, runID string, r *domain.ValidationResult) error

	// GetByRunID retrieves all results for a run, ordered by method ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.ValidationResult, error)
}
