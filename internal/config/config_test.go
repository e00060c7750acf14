package config

import (
	"os"
	"path/filepath"
	"testing"

	"backtest-lab/internal/domain"
)

const sampleYAML = `
dataset:
  path: /data/spx_daily.csv
  dataset_id: spx-daily
run:
  seed: 42
  guard_mode: STRICT
  strategy:
    type: MA_CROSS
    params:
      fast: 20
      slow: 50
  execution:
    sizing_fraction: 0.25
    auto_flatten: true
  costs:
    slippage_bps: 1.5
    fee_bps: 0.5
    borrow_bps: 50
  validation:
    workers: 4
    permutation:
      trials: 100
  walk_forward:
    train_bars: 100
    test_bars: 50
    min_segments: 2
storage:
  postgres_dsn: postgres://localhost/backtest
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Dataset.Path != "/data/spx_daily.csv" {
		t.Errorf("dataset path = %q", cfg.Dataset.Path)
	}
	if cfg.Dataset.BarMinutes != 1440 {
		t.Errorf("bar_minutes default = %d, want 1440", cfg.Dataset.BarMinutes)
	}
	if cfg.Storage.PostgresDSN != "postgres://localhost/backtest" {
		t.Errorf("postgres dsn = %q", cfg.Storage.PostgresDSN)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("server addr default = %q", cfg.Server.Addr)
	}
}

func TestToRunConfig_MapsAndDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatal(err)
	}

	run := cfg.Run.ToRunConfig()
	if err := run.Validate(); err != nil {
		t.Fatalf("mapped config must validate: %v", err)
	}

	if run.RunSeed != 42 {
		t.Errorf("seed = %d", run.RunSeed)
	}
	if run.GuardMode != domain.GuardStrict {
		t.Errorf("guard mode = %s", run.GuardMode)
	}
	if run.Execution.FillPolicy != domain.FillNextBarOpen {
		t.Errorf("fill policy default = %s", run.Execution.FillPolicy)
	}
	if run.Execution.LotSize != 1 || run.Execution.InitialCash != 100000 {
		t.Error("execution defaults not applied")
	}
	if run.Validation.Permutation == nil || run.Validation.Permutation.Trials != 100 {
		t.Error("permutation settings not mapped")
	}
	if run.Validation.Bootstrap != nil {
		t.Error("absent bootstrap section must stay nil")
	}
	if run.WalkForward == nil || run.WalkForward.TrainBars != 100 {
		t.Error("walk-forward settings not mapped")
	}
	if run.FloatPrecision != domain.DefaultFloatPrecision {
		t.Errorf("float precision = %d", run.FloatPrecision)
	}
	if run.Robustness != domain.DefaultRobustnessWeights() {
		t.Errorf("robustness weights = %+v", run.Robustness)
	}
	if len(run.Features) != 2 {
		t.Errorf("derived features = %d, want the two moving averages", len(run.Features))
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRobustnessWeights_Explicit(t *testing.T) {
	s := RunSettings{Robustness: RobustnessSettings{PValue: 0.5, Stability: 0.5}}
	got := s.robustnessWeights()
	if got.PValue != 0.5 || got.Stability != 0.5 || got.Profitability != 0 || got.Tail != 0 {
		t.Errorf("weights = %+v", got)
	}
}
