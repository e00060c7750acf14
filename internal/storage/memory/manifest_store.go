// Package memory provides in-memory implementations of the storage
// interfaces, used by tests and by runs that do not persist.
package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ManifestStore is an in-memory implementation of storage.ManifestStore.
type ManifestStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunManifest // keyed by run_id
}

// NewManifestStore creates a new in-memory manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{data: make(map[string]*domain.RunManifest)}
}

var _ storage.ManifestStore = (*ManifestStore)(nil)

// Insert adds a new manifest. Returns ErrDuplicateKey if run_id exists.
func (s *ManifestStore) Insert(_ context.Context, m *domain.RunManifest) error {
	if m == nil || m.RunID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.RunID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[m.RunID] = copyManifest(m)
	return nil
}

// GetByRunID retrieves a manifest by run ID. Returns ErrNotFound if not exists.
func (s *ManifestStore) GetByRunID(_ context.Context, runID string) (*domain.RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[runID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyManifest(m), nil
}

// GetLatest retrieves the most recently created manifest.
func (s *ManifestStore) GetLatest(_ context.Context) (*domain.RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.RunManifest
	for _, m := range s.data {
		if latest == nil || m.CreatedAt > latest.CreatedAt ||
			(m.CreatedAt == latest.CreatedAt && m.RunID > latest.RunID) {
			latest = m
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	return copyManifest(latest), nil
}

// GetAll retrieves all manifests ordered by created_at ASC, run_id ASC.
func (s *ManifestStore) GetAll(_ context.Context) ([]*domain.RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.RunManifest, 0, len(s.data))
	for _, m := range s.data {
		result = append(result, copyManifest(m))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].RunID < result[j].RunID
	})
	return result, nil
}

// copyManifest deep-copies a manifest so callers never share state
// with the store.
func copyManifest(m *domain.RunManifest) *domain.RunManifest {
	out := *m
	out.SeedTree = make(map[string]int64, len(m.SeedTree))
	for k, v := range m.SeedTree {
		out.SeedTree[k] = v
	}
	out.Artifacts = append([]domain.ArtifactDescriptor(nil), m.Artifacts...)
	return &out
}
