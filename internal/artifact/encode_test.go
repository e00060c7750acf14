package artifact

import (
	"encoding/json"
	"strings"
	"testing"

	"backtest-lab/internal/domain"
)

func TestEncodeTrades_CanonicalBytes(t *testing.T) {
	trades := []domain.Trade{
		{Timestamp: 86_400_000, BarIndex: 1, Side: domain.SideBuy, Quantity: 10, FillPrice: 101.5, PositionAfter: 10, CashAfter: 8985},
	}
	a := EncodeTrades(trades)
	b := EncodeTrades(trades)
	if string(a) != string(b) {
		t.Fatal("identical input must encode to identical bytes")
	}
	if !strings.HasPrefix(string(a), "timestamp,bar_index,side,") {
		t.Error("missing csv header")
	}
	if !strings.Contains(string(a), "101.50000000") {
		t.Error("floats must use the fixed 8-digit format")
	}
}

func TestEncodeEquity_RowPerBar(t *testing.T) {
	equity := []domain.EquityBar{
		{Timestamp: 0, BarIndex: 0, Equity: 10000},
		{Timestamp: 86_400_000, BarIndex: 1, Equity: 10100, Position: 10},
	}
	data := EncodeEquity(equity)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows", len(lines))
	}
}

func TestEncodeValidation_ValidJSONWithSortedKeys(t *testing.T) {
	pv := 0.04
	results := []domain.ValidationResult{
		{Method: domain.MethodPermutation, Statistic: "total_return", Observed: 0.3, TrialCount: 100, PValue: &pv, DistributionDigest: "abc"},
		{Method: domain.MethodBlockBootstrap, Statistic: "total_return", Skipped: true, SkipReason: "too short"},
	}
	segments := []domain.WalkForwardSegment{
		{
			Index: 0, TrainStart: 0, TrainEnd: 100, TestStart: 100, TestEnd: 150,
			ChosenParamsDigest: "d1", Stable: true,
			InSampleMetrics:    map[string]float64{"sharpe": 1.1, "cumulative_return": 0.2},
			OutOfSampleMetrics: map[string]float64{"sharpe": 0.9, "cumulative_return": 0.1},
		},
	}
	agg := &domain.WalkForwardAggregate{TotalSegments: 1, ProfitableSegments: 1, OOSConsistency: 1}

	data := EncodeValidation(results, segments, agg)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded validation is not valid JSON: %v", err)
	}
	// Key order inside metric maps is sorted, so re-encoding the same
	// input yields the same bytes.
	if string(data) != string(EncodeValidation(results, segments, agg)) {
		t.Error("validation encoding is not deterministic")
	}
	if !strings.Contains(string(data), `"cumulative_return":0.20000000,"sharpe":1.10000000`) {
		t.Error("metric map keys must be sorted")
	}
}

func TestEncodeValidation_ZeroTrialsEncodesNullPlaceholders(t *testing.T) {
	results := []domain.ValidationResult{
		{Method: domain.MethodPermutation, Statistic: "total_return", Observed: 0.3, TrialCount: 0, DistributionDigest: "empty"},
	}
	data := EncodeValidation(results, nil, nil)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded validation is not valid JSON: %v", err)
	}
	for _, field := range []string{`"p_value":null`, `"ci_low":null`, `"ci_high":null`, `"ci_width":null`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("absent optional field must encode as explicit null, missing %s", field)
		}
	}
	pv := 0.04
	results[0].PValue = &pv
	if !strings.Contains(string(EncodeValidation(results, nil, nil)), `"p_value":0.04000000`) {
		t.Error("present p-value must use the fixed float format")
	}
}

func TestEncodeManifest_ChainsAndParses(t *testing.T) {
	m := &domain.RunManifest{
		RunID:          "r1",
		RunHash:        "h1",
		ConfigHash:     "c1",
		DatasetDigest:  "d1",
		SeedTree:       map[string]int64{"validation": 7, "data": 3},
		FloatPrecision: 8,
		CreatedAt:      1700000000000,
		Status:         domain.StatusSuccess,
		FinalPhase:     domain.PhaseFinalize,
		Artifacts:      []domain.ArtifactDescriptor{{Name: NameTrades, Digest: "td", Size: 10}},
	}
	data := EncodeManifest(m)
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	// Seed tree keys sorted: "data" before "validation".
	if !strings.Contains(string(data), `"seed_tree":{"data":3,"validation":7}`) {
		t.Error("seed tree keys must be sorted")
	}

	desc := Describe(NameManifest, data)
	if desc.Size != int64(len(data)) || desc.Digest == "" {
		t.Errorf("descriptor incomplete: %+v", desc)
	}
}

func TestDescribe_DigestChangesWithContent(t *testing.T) {
	a := Describe("x", []byte("one"))
	b := Describe("x", []byte("two"))
	if a.Digest == b.Digest {
		t.Error("different bytes must digest differently")
	}
}
