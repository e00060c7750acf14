package memory

import (
	"context"
	"errors"
	"testing"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func TestTradeLedgerStore_BulkWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewTradeLedgerStore()
	trades := []domain.Trade{
		{BarIndex: 1, Side: domain.SideBuy, Quantity: 10},
		{BarIndex: 5, Side: domain.SideSell, Quantity: 10},
	}

	if err := store.InsertBulk(ctx, "r1", trades); err != nil {
		t.Fatal(err)
	}
	if err := store.InsertBulk(ctx, "r1", trades); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("second insert err = %v, want ErrDuplicateKey", err)
	}

	got, err := store.GetByRunID(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].BarIndex != 1 {
		t.Errorf("unexpected trades: %+v", got)
	}

	// Mutating the returned slice must not affect stored state.
	got[0].Quantity = 999
	again, _ := store.GetByRunID(ctx, "r1")
	if again[0].Quantity != 10 {
		t.Error("store leaked shared trade state")
	}
}

func TestEquityBarStore_TimeRange(t *testing.T) {
	ctx := context.Background()
	store := NewEquityBarStore()
	bars := []domain.EquityBar{
		{Timestamp: 100, BarIndex: 0, Equity: 1000},
		{Timestamp: 200, BarIndex: 1, Equity: 1010},
		{Timestamp: 300, BarIndex: 2, Equity: 1020},
	}
	if err := store.InsertBulk(ctx, "r1", bars); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetByTimeRange(ctx, "r1", 150, 300)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Timestamp != 200 {
		t.Errorf("time range query wrong: %+v", got)
	}

	if _, err := store.GetByRunID(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestValidationResultStore_PerMethodKey(t *testing.T) {
	ctx := context.Background()
	store := NewValidationResultStore()
	pv := 0.05

	perm := &domain.ValidationResult{Method: domain.MethodPermutation, PValue: &pv}
	boot := &domain.ValidationResult{Method: domain.MethodBlockBootstrap, Skipped: true}

	if err := store.Insert(ctx, "r1", perm); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, "r1", boot); err != nil {
		t.Fatal(err)
	}
	if err := store.Insert(ctx, "r1", perm); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("same (run, method) err = %v, want ErrDuplicateKey", err)
	}

	got, err := store.GetByRunID(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	// Methods sorted: block_bootstrap before permutation.
	if got[0].Method != domain.MethodBlockBootstrap {
		t.Errorf("order wrong: %v first", got[0].Method)
	}

	// Returned p-value pointer must not alias stored state.
	*got[1].PValue = 0.99
	again, _ := store.GetByRunID(ctx, "r1")
	if *again[1].PValue != 0.05 {
		t.Error("store leaked shared p-value pointer")
	}
}
