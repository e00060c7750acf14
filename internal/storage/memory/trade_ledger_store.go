package memory

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TradeLedgerStore is an in-memory implementation of storage.TradeLedgerStore.
type TradeLedgerStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Trade // keyed by run_id, bar_index order
}

// NewTradeLedgerStore creates a new in-memory trade ledger store.
func NewTradeLedgerStore() *TradeLedgerStore {
	return &TradeLedgerStore{data: make(map[string][]domain.Trade)}
}

var _ storage.TradeLedgerStore = (*TradeLedgerStore)(nil)

// InsertBulk adds all trades of one run atomically.
func (s *TradeLedgerStore) InsertBulk(_ context.Context, runID string, trades []domain.Trade) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[runID] = append([]domain.Trade(nil), trades...)
	return nil
}

// GetByRunID retrieves all trades for a run, ordered by bar_index ASC.
func (s *TradeLedgerStore) GetByRunID(_ context.Context, runID string) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return append([]domain.Trade(nil), trades...), nil
}
