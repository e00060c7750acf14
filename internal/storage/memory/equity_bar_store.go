package memory

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// EquityBarStore is an in-memory implementation of storage.EquityBarStore.
type EquityBarStore struct {
	mu   sync.RWMutex
	data map[string][]domain.EquityBar // keyed by run_id, bar_index order
}

// NewEquityBarStore creates a new in-memory equity bar store.
func NewEquityBarStore() *EquityBarStore {
	return &EquityBarStore{data: make(map[string][]domain.EquityBar)}
}

var _ storage.EquityBarStore = (*EquityBarStore)(nil)

// InsertBulk adds all equity bars of one run.
func (s *EquityBarStore) InsertBulk(_ context.Context, runID string, bars []domain.EquityBar) error {
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[runID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[runID] = append([]domain.EquityBar(nil), bars...)
	return nil
}

// GetByRunID retrieves all bars for a run, ordered by bar_index ASC.
func (s *EquityBarStore) GetByRunID(_ context.Context, runID string) ([]domain.EquityBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return append([]domain.EquityBar(nil), bars...), nil
}

// GetByTimeRange retrieves bars for a run within [start, end] (inclusive).
func (s *EquityBarStore) GetByTimeRange(_ context.Context, runID string, start, end int64) ([]domain.EquityBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bars, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	var result []domain.EquityBar
	for _, b := range bars {
		if b.Timestamp >= start && b.Timestamp <= end {
			result = append(result, b)
		}
	}
	return result, nil
}
