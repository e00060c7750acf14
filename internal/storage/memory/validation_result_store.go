package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ValidationResultStore is an in-memory implementation of
// storage.ValidationResultStore.
type ValidationResultStore struct {
	mu   sync.RWMutex
	data map[string]map[domain.ValidationMethod]*domain.ValidationResult
}

// NewValidationResultStore creates a new in-memory validation result store.
func NewValidationResultStore() *ValidationResultStore {
	return &ValidationResultStore{
		data: make(map[string]map[domain.ValidationMethod]*domain.ValidationResult),
	}
}

var _ storage.ValidationResultStore = (*ValidationResultStore)(nil)

// Insert adds one method's result. Returns ErrDuplicateKey if
// (run_id, method) exists.
func (s *ValidationResultStore) Insert(_ context.Context, runID string, r *domain.ValidationResult) error {
	if runID == "" || r == nil || r.Method == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byMethod := s.data[runID]
	if byMethod == nil {
		byMethod = make(map[domain.ValidationMethod]*domain.ValidationResult)
		s.data[runID] = byMethod
	}
	if _, exists := byMethod[r.Method]; exists {
		return storage.ErrDuplicateKey
	}
	byMethod[r.Method] = copyResult(r)
	return nil
}

// GetByRunID retrieves all results for a run, ordered by method ASC.
func (s *ValidationResultStore) GetByRunID(_ context.Context, runID string) ([]*domain.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byMethod, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	result := make([]*domain.ValidationResult, 0, len(byMethod))
	for _, r := range byMethod {
		result = append(result, copyResult(r))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Method < result[j].Method
	})
	return result, nil
}

func copyResult(r *domain.ValidationResult) *domain.ValidationResult {
	out := *r
	out.Distribution = append([]float64(nil), r.Distribution...)
	out.PValue = copyFloatPtr(r.PValue)
	out.CILow = copyFloatPtr(r.CILow)
	out.CIHigh = copyFloatPtr(r.CIHigh)
	out.CIWidth = copyFloatPtr(r.CIWidth)
	if r.GatePassed != nil {
		v := *r.GatePassed
		out.GatePassed = &v
	}
	return &out
}

func copyFloatPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
