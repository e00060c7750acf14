package clickhouse

import (
	"context"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// EquityBarStore implements storage.EquityBarStore using ClickHouse.
type EquityBarStore struct {
	conn *Conn
}

// NewEquityBarStore creates a new EquityBarStore.
func NewEquityBarStore(conn *Conn) *EquityBarStore {
	return &EquityBarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.EquityBarStore = (*EquityBarStore)(nil)

// InsertBulk adds all equity bars of one run. MergeTree does not
// enforce uniqueness, so the run_id is checked explicitly before the
// batch insert.
func (s *EquityBarStore) InsertBulk(ctx context.Context, runID string, bars []domain.EquityBar) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}
	if len(bars) == 0 {
		return nil
	}

	exists, err := s.exists(ctx, runID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO equity_bars (
			run_id, bar_index, timestamp_ms, equity,
			realized_pnl, unrealized_pnl, cost_drag, position
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(
			runID, uint32(b.BarIndex), uint64(b.Timestamp), b.Equity,
			b.RealizedPnL, b.UnrealizedPnL, b.CostDrag, b.Position,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all bars for a run, ordered by bar_index ASC.
func (s *EquityBarStore) GetByRunID(ctx context.Context, runID string) ([]domain.EquityBar, error) {
	query := `
		SELECT bar_index, timestamp_ms, equity,
			realized_pnl, unrealized_pnl, cost_drag, position
		FROM equity_bars
		WHERE run_id = ?
		ORDER BY bar_index ASC
	`

	rows, err := s.conn.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query by run id: %w", err)
	}
	defer rows.Close()

	return scanEquityBars(rows)
}

// GetByTimeRange retrieves bars for a run within [start, end] (inclusive).
func (s *EquityBarStore) GetByTimeRange(ctx context.Context, runID string, start, end int64) ([]domain.EquityBar, error) {
	query := `
		SELECT bar_index, timestamp_ms, equity,
			realized_pnl, unrealized_pnl, cost_drag, position
		FROM equity_bars
		WHERE run_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY bar_index ASC
	`

	rows, err := s.conn.Query(ctx, query, runID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEquityBars(rows)
}

// exists checks if any bar for the run exists.
func (s *EquityBarStore) exists(ctx context.Context, runID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM equity_bars WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver rows the scanners need.
type chRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanEquityBars scans multiple rows.
func scanEquityBars(rows chRows) ([]domain.EquityBar, error) {
	var bars []domain.EquityBar

	for rows.Next() {
		var b domain.EquityBar
		var barIndex uint32
		var timestampMs uint64

		err := rows.Scan(
			&barIndex, &timestampMs, &b.Equity,
			&b.RealizedPnL, &b.UnrealizedPnL, &b.CostDrag, &b.Position,
		)
		if err != nil {
			return nil, fmt.Errorf("scan equity bar row: %w", err)
		}

		b.BarIndex = int(barIndex)
		b.Timestamp = int64(timestampMs)
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate equity bar rows: %w", err)
	}
	if bars == nil {
		return nil, storage.ErrNotFound
	}
	return bars, nil
}
