package idhash

import (
	"math"
	"strings"
	"testing"

	"backtest-lab/internal/domain"
)

func testConfig() *domain.RunConfig {
	cfg := domain.RunConfig{
		RunSeed:        42,
		CausalityShift: true,
		GuardMode:      domain.GuardStrict,
		Features: []domain.FeatureSpec{
			{Name: "sma", Version: "1", Params: map[string]float64{"window": 20}, ShiftApplied: true},
			{Name: "sma", Version: "1", Params: map[string]float64{"window": 50}, ShiftApplied: true},
		},
		Strategy: domain.StrategyConfig{
			Type:   "MA_CROSS",
			Params: map[string]float64{"fast": 20, "slow": 50},
		},
		Execution: domain.ExecutionConfig{
			FillPolicy:     domain.FillNextBarOpen,
			LotSize:        1,
			SizingFraction: 0.25,
			InitialCash:    100000,
		},
		Costs: domain.CostModelConfig{SlippageBps: 1.5, FeeBps: 0.5, BorrowBps: 50},
		Validation: domain.ValidationConfig{
			Permutation: &domain.PermutationConfig{Trials: 100},
		},
	}
	cfg = cfg.Normalized()
	return &cfg
}

func TestDerive_Deterministic(t *testing.T) {
	a, err := Derive(testConfig(), "digest-a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(testConfig(), "digest-a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if a.ConfigHash != b.ConfigHash {
		t.Errorf("config hash mismatch: %s vs %s", a.ConfigHash, b.ConfigHash)
	}
	if a.RunHash != b.RunHash {
		t.Errorf("run hash mismatch: %s vs %s", a.RunHash, b.RunHash)
	}
	if a.RunID != b.RunID {
		t.Errorf("run id mismatch: %s vs %s", a.RunID, b.RunID)
	}
	for scope, seed := range a.SeedTree {
		if b.SeedTree[scope] != seed {
			t.Errorf("seed tree mismatch for %s: %d vs %d", scope, seed, b.SeedTree[scope])
		}
	}
}

func TestDerive_DatasetDigestChangesRunHashOnly(t *testing.T) {
	a, err := Derive(testConfig(), "digest-a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive(testConfig(), "digest-b")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if a.ConfigHash != b.ConfigHash {
		t.Error("config hash should not depend on dataset digest")
	}
	if a.RunHash == b.RunHash {
		t.Error("run hash should depend on dataset digest")
	}
}

func TestDerive_ConfigChangeChangesConfigHash(t *testing.T) {
	base, err := Derive(testConfig(), "digest-a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	changed := testConfig()
	changed.Strategy.Params["fast"] = 21
	other, err := Derive(changed, "digest-a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}

	if base.ConfigHash == other.ConfigHash {
		t.Error("config hash should change when a strategy param changes")
	}
}

func TestCanonicalBytes_RejectsNaN(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.Params["fast"] = math.NaN()

	_, err := CanonicalBytes(cfg)
	if err == nil {
		t.Fatal("expected ConfigError for NaN param")
	}
	if !domain.IsConfigError(err) {
		t.Errorf("expected ConfigError, got %T: %v", err, err)
	}
}

func TestCanonicalBytes_SortedParamKeys(t *testing.T) {
	cfg := testConfig()
	data, err := CanonicalBytes(cfg)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	text := string(data)
	fast := strings.Index(text, "strategy.params.fast")
	slow := strings.Index(text, "strategy.params.slow")
	if fast < 0 || slow < 0 {
		t.Fatalf("missing strategy params in canonical bytes:\n%s", text)
	}
	if fast > slow {
		t.Error("param keys must be emitted in sorted order")
	}
}

func TestSubSeed_StableAndScopeDependent(t *testing.T) {
	if SubSeed(42, "data") != SubSeed(42, "data") {
		t.Error("sub-seed must be stable for identical inputs")
	}
	if SubSeed(42, "data") == SubSeed(42, "validation") {
		t.Error("different scopes must derive different sub-seeds")
	}
	if SubSeed(42, "data") == SubSeed(43, "data") {
		t.Error("different root seeds must derive different sub-seeds")
	}
	if SubSeed(42, "data") < 0 {
		t.Error("sub-seeds must be non-negative")
	}
}
