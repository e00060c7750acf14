// Package events delivers run progress snapshots to observers.
// Snapshot emission is fire-and-forget from the pipeline's point of
// view: a slow or failed observer never blocks or fails a run.
package events

import (
	"context"
	"sync"

	"backtest-lab/internal/domain"
)

// Sink receives progress snapshots at phase boundaries.
type Sink interface {
	// Publish delivers one snapshot. Implementations must not block
	// the caller; dropped deliveries are acceptable, reordering is not.
	Publish(ctx context.Context, snap *domain.SummarySnapshot)

	// Close releases sink resources.
	Close() error
}

// NopSink discards all snapshots.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(context.Context, *domain.SummarySnapshot) {}

// Close implements Sink.
func (NopSink) Close() error { return nil }

var _ Sink = NopSink{}

// MemorySink records snapshots in order, used by tests and by the CLI
// progress display.
type MemorySink struct {
	mu    sync.Mutex
	snaps []domain.SummarySnapshot
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

var _ Sink = (*MemorySink)(nil)

// Publish implements Sink.
func (s *MemorySink) Publish(_ context.Context, snap *domain.SummarySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, *snap)
}

// Close implements Sink.
func (s *MemorySink) Close() error { return nil }

// Snapshots returns a copy of everything published so far.
func (s *MemorySink) Snapshots() []domain.SummarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SummarySnapshot(nil), s.snaps...)
}
