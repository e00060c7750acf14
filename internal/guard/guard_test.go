package guard

import (
	"errors"
	"testing"

	"backtest-lab/internal/domain"
)

func TestStrictMode_FutureAccessFails(t *testing.T) {
	g := New(domain.GuardStrict, nil)
	view := g.View("close", []float64{1, 2, 3, 4})

	if err := g.Advance(1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := view.At(1); err != nil {
		t.Errorf("read at fence should succeed: %v", err)
	}
	if _, err := view.At(0); err != nil {
		t.Errorf("read behind fence should succeed: %v", err)
	}

	_, err := view.At(2)
	if err == nil {
		t.Fatal("read past fence must fail in strict mode")
	}
	var fe *domain.FutureAccessError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FutureAccessError, got %T", err)
	}
	if fe.Series != "close" || fe.Index != 2 || fe.Fence != 1 {
		t.Errorf("unexpected error fields: %+v", fe)
	}
	if g.Violations() != 0 {
		t.Errorf("strict mode never accumulates violations, got %d", g.Violations())
	}
}

func TestPermissiveMode_CountsViolations(t *testing.T) {
	g := New(domain.GuardPermissive, nil)
	view := g.View("close", []float64{1, 2, 3, 4})

	if err := g.Advance(0); err != nil {
		t.Fatalf("advance: %v", err)
	}

	v, err := view.At(2)
	if err != nil {
		t.Fatalf("permissive read should succeed: %v", err)
	}
	if v != 3 {
		t.Errorf("expected underlying value 3, got %g", v)
	}
	if _, err := view.At(3); err != nil {
		t.Fatalf("permissive read should succeed: %v", err)
	}

	if g.Violations() != 2 {
		t.Errorf("expected 2 violations, got %d", g.Violations())
	}
	if g.Metric().ViolationCount != 2 {
		t.Errorf("metric should mirror the counter")
	}
}

func TestAdvance_BackwardRejected(t *testing.T) {
	g := New(domain.GuardStrict, nil)
	if err := g.Advance(5); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if err := g.Advance(5); err != nil {
		t.Errorf("advancing to the same index is allowed: %v", err)
	}
	if err := g.Advance(4); !errors.Is(err, domain.ErrFenceBackward) {
		t.Errorf("expected ErrFenceBackward, got %v", err)
	}
}

func TestView_OutOfRange(t *testing.T) {
	g := New(domain.GuardPermissive, nil)
	view := g.View("close", []float64{1, 2})
	if err := g.Advance(1); err != nil {
		t.Fatalf("advance: %v", err)
	}

	if _, err := view.At(-1); err == nil {
		t.Error("negative index must fail")
	}
	if _, err := view.At(2); err == nil {
		t.Error("index past the series end must fail")
	}
}

// BenchmarkGuardedRead exercises the O(1) overhead contract: guarded
// access versus raw slice access on a 1,000,000-row series.
func BenchmarkGuardedRead(b *testing.B) {
	values := make([]float64, 1_000_000)
	for i := range values {
		values[i] = float64(i)
	}
	g := New(domain.GuardStrict, nil)
	view := g.View("close", values)
	_ = g.Advance(len(values) - 1)

	var sum float64
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v, _ := view.At(i % len(values))
		sum += v
	}
	_ = sum
}

// BenchmarkUnguardedRead is the baseline for BenchmarkGuardedRead.
func BenchmarkUnguardedRead(b *testing.B) {
	values := make([]float64, 1_000_000)
	for i := range values {
		values[i] = float64(i)
	}

	var sum float64
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sum += values[i%len(values)]
	}
	_ = sum
}
