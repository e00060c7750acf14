package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestManifestStore_Roundtrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewManifestStore(pool)

	m := &domain.RunManifest{
		RunID:          "run-1",
		RunHash:        "rh",
		ConfigHash:     "ch",
		DatasetDigest:  "dd",
		SeedTree:       map[string]int64{"data": 1, "validation": 2},
		FloatPrecision: 8,
		CreatedAt:      1_700_000_000_000,
		Status:         domain.StatusSuccess,
		FinalPhase:     domain.PhaseFinalize,
		Artifacts: []domain.ArtifactDescriptor{
			{Name: "trades.csv", Digest: "abc", Size: 42},
		},
		Anomalies:  domain.AnomalyCounters{Gaps: 1, ZeroVolumeBars: 2},
		Violations: domain.CausalityViolationMetric{ViolationCount: 0},
	}

	require.NoError(t, store.Insert(ctx, m))
	require.ErrorIs(t, store.Insert(ctx, m), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, m.SeedTree, got.SeedTree)
	require.Equal(t, m.Artifacts, got.Artifacts)
	require.Equal(t, m.Anomalies, got.Anomalies)
	require.Equal(t, domain.StatusSuccess, got.Status)

	_, err = store.GetByRunID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	m2 := *m
	m2.RunID = "run-2"
	m2.CreatedAt = m.CreatedAt + 1
	require.NoError(t, store.Insert(ctx, &m2))

	latest, err := store.GetLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, "run-2", latest.RunID)

	all, err := store.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "run-1", all[0].RunID)
}

func TestTradeLedgerStore_Roundtrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTradeLedgerStore(pool)

	trades := []domain.Trade{
		{Timestamp: 100, BarIndex: 1, Side: domain.SideBuy, Quantity: 10, FillPrice: 101.5, PositionAfter: 10, CashAfter: 8985},
		{Timestamp: 200, BarIndex: 4, Side: domain.SideSell, Quantity: 10, FillPrice: 103, PositionAfter: 0, CashAfter: 10015},
	}

	require.NoError(t, store.InsertBulk(ctx, "run-1", trades))
	require.ErrorIs(t, store.InsertBulk(ctx, "run-1", trades), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, trades, got)

	_, err = store.GetByRunID(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestValidationResultStore_Roundtrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewValidationResultStore(pool)

	perm := &domain.ValidationResult{
		Method:             domain.MethodPermutation,
		Statistic:          "total_return",
		Observed:           0.31,
		Distribution:       []float64{0.1, -0.2, 0.05},
		DistributionDigest: "dg",
		TrialCount:         3,
		PValue:             ptr(1.0 / 3.0),
	}
	boot := &domain.ValidationResult{
		Method:     domain.MethodBlockBootstrap,
		Statistic:  "total_return",
		Skipped:    true,
		SkipReason: "too short",
	}

	require.NoError(t, store.Insert(ctx, "run-1", perm))
	require.NoError(t, store.Insert(ctx, "run-1", boot))
	require.ErrorIs(t, store.Insert(ctx, "run-1", perm), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Ordered by method: block_bootstrap before permutation.
	require.Equal(t, domain.MethodBlockBootstrap, got[0].Method)
	require.True(t, got[0].Skipped)
	require.Equal(t, perm.Distribution, got[1].Distribution)
	require.InDelta(t, 1.0/3.0, *got[1].PValue, 1e-12)
	require.Nil(t, got[1].CILow)
}
