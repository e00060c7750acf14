package feature

import (
	"errors"
	"math"
	"testing"

	"backtest-lab/internal/domain"
)

func testSeries(closes []float64) *domain.Series {
	s := &domain.Series{
		Timestamps: make([]int64, len(closes)),
		Open:       make([]float64, len(closes)),
		High:       make([]float64, len(closes)),
		Low:        make([]float64, len(closes)),
		Close:      closes,
		Volume:     make([]float64, len(closes)),
		BarMinutes: 1440,
	}
	for i := range closes {
		s.Timestamps[i] = int64(i) * 86_400_000
		s.Open[i] = closes[i]
		s.High[i] = closes[i]
		s.Low[i] = closes[i]
		s.Volume[i] = 1000
	}
	return s
}

func TestSMA_WarmupAndValues(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)

	if !math.IsNaN(out[0]) || !math.IsNaN(out[1]) {
		t.Error("warmup bars must be NaN")
	}
	want := []float64{2, 3, 4}
	for i, w := range want {
		if got := out[i+2]; math.Abs(got-w) > 1e-12 {
			t.Errorf("sma[%d] = %g, want %g", i+2, got, w)
		}
	}
}

func TestBuild_ShiftAppliedMovesValuesOneBar(t *testing.T) {
	series := testSeries([]float64{1, 2, 3, 4, 5, 6})
	spec := domain.FeatureSpec{
		Name:         "sma",
		Params:       map[string]float64{"window": 2},
		ShiftApplied: true,
	}

	set, err := Build(series, []domain.FeatureSpec{spec})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	shifted := set.Series[Key(spec)]
	if !math.IsNaN(shifted[0]) {
		t.Error("index 0 of a shifted feature must be the unavailable sentinel")
	}

	raw := SMA(series.Close, 2)
	for i := 1; i < len(shifted); i++ {
		if math.IsNaN(raw[i-1]) {
			if !math.IsNaN(shifted[i]) {
				t.Errorf("shifted[%d] should be NaN", i)
			}
			continue
		}
		if shifted[i] != raw[i-1] {
			t.Errorf("shifted[%d] = %g, want raw[%d] = %g", i, shifted[i], i-1, raw[i-1])
		}
	}
}

func TestBuild_UnshiftedKeepsAlignment(t *testing.T) {
	series := testSeries([]float64{1, 2, 3, 4})
	spec := domain.FeatureSpec{Name: "momentum", Params: map[string]float64{"window": 1}}

	set, err := Build(series, []domain.FeatureSpec{spec})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	values := set.Series[Key(spec)]
	if values[1] != 1 || values[3] != 1 {
		t.Errorf("unexpected momentum values: %v", values)
	}
}

func TestBuild_UnknownIndicator(t *testing.T) {
	series := testSeries([]float64{1, 2, 3})
	_, err := Build(series, []domain.FeatureSpec{{Name: "macd9000"}})
	if !errors.Is(err, ErrUnknownIndicator) {
		t.Errorf("expected ErrUnknownIndicator, got %v", err)
	}
}

func TestKey_DistinguishesParams(t *testing.T) {
	a := Key(domain.FeatureSpec{Name: "sma", Params: map[string]float64{"window": 20}})
	b := Key(domain.FeatureSpec{Name: "sma", Params: map[string]float64{"window": 50}})
	if a == b {
		t.Errorf("keys must differ for different params: %s vs %s", a, b)
	}
}

func TestBuild_PureFunction(t *testing.T) {
	series := testSeries([]float64{1, 2, 3, 4, 5, 6, 7, 8})
	specs := []domain.FeatureSpec{
		{Name: "ema", Params: map[string]float64{"window": 3}, ShiftApplied: false},
	}

	a, err := Build(series, specs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	b, err := Build(series, specs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	ka, kb := a.Names[0], b.Names[0]
	for i := range a.Series[ka] {
		va, vb := a.Series[ka][i], b.Series[kb][i]
		if va != vb && !(math.IsNaN(va) && math.IsNaN(vb)) {
			t.Fatalf("non-deterministic feature value at %d: %g vs %g", i, va, vb)
		}
	}
}
