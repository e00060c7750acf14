package postgres

import (
	"context"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TradeLedgerStore implements storage.TradeLedgerStore using PostgreSQL.
// Trades are keyed by (run_id, seq) where seq is the position in the
// ledger, so retrieval reproduces insertion order exactly.
type TradeLedgerStore struct {
	pool *Pool
}

// NewTradeLedgerStore creates a new TradeLedgerStore.
func NewTradeLedgerStore(pool *Pool) *TradeLedgerStore {
	return &TradeLedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeLedgerStore = (*TradeLedgerStore)(nil)

// InsertBulk adds all trades of one run atomically.
func (s *TradeLedgerStore) InsertBulk(ctx context.Context, runID string, trades []domain.Trade) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trade_ledger (
			run_id, seq, timestamp_ms, bar_index, side, quantity,
			pre_cost_price, fill_price, adapter_slippage, flat_slippage,
			fee_bps, commission, borrow_accrued, position_after, cash_after
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14, $15
		)
	`

	for i, t := range trades {
		_, err := tx.Exec(ctx, query,
			runID, i, t.Timestamp, t.BarIndex, string(t.Side), t.Quantity,
			t.PreCostPrice, t.FillPrice, t.AdapterSlippage, t.FlatSlippage,
			t.FeeBps, t.Commission, t.BorrowAccrued, t.PositionAfter, t.CashAfter,
		)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRunID retrieves all trades for a run, ordered by bar_index ASC.
func (s *TradeLedgerStore) GetByRunID(ctx context.Context, runID string) ([]domain.Trade, error) {
	query := `
		SELECT timestamp_ms, bar_index, side, quantity,
			pre_cost_price, fill_price, adapter_slippage, flat_slippage,
			fee_bps, commission, borrow_accrued, position_after, cash_after
		FROM trade_ledger
		WHERE run_id = $1
		ORDER BY seq ASC
	`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("get trades by run id: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side string
		err := rows.Scan(
			&t.Timestamp, &t.BarIndex, &side, &t.Quantity,
			&t.PreCostPrice, &t.FillPrice, &t.AdapterSlippage, &t.FlatSlippage,
			&t.FeeBps, &t.Commission, &t.BorrowAccrued, &t.PositionAfter, &t.CashAfter,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		t.Side = domain.Side(side)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	if trades == nil {
		return nil, storage.ErrNotFound
	}
	return trades, nil
}
