// Package config loads the application configuration from a YAML or
// JSON file, with environment-variable overrides. The file maps onto
// the run configuration plus the infrastructure settings (storage
// DSNs, server address) that never participate in run hashing.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/signal"
)

// Config is the full configuration schema.
type Config struct {
	Dataset DatasetConfig `mapstructure:"dataset"`
	Run     RunSettings   `mapstructure:"run"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
}

// DatasetConfig locates and describes the input dataset.
type DatasetConfig struct {
	Path       string `mapstructure:"path"`
	DatasetID  string `mapstructure:"dataset_id"`
	CalendarID string `mapstructure:"calendar_id"`
	BarMinutes int    `mapstructure:"bar_minutes"`
}

// StorageConfig holds persistence DSNs. Empty DSNs select the
// in-memory stores.
type StorageConfig struct {
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	ClickhouseDSN string `mapstructure:"clickhouse_dsn"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr             string `mapstructure:"addr"`
	MetricsNamespace string `mapstructure:"metrics_namespace"`
}

// RunSettings is the file-level shape of a run configuration.
type RunSettings struct {
	Seed           int64  `mapstructure:"seed"`
	CausalityShift bool   `mapstructure:"causality_shift"`
	GuardMode      string `mapstructure:"guard_mode"`
	FloatPrecision int    `mapstructure:"float_precision"`

	Strategy    StrategySettings    `mapstructure:"strategy"`
	Execution   ExecutionSettings   `mapstructure:"execution"`
	Costs       CostSettings        `mapstructure:"costs"`
	Validation  ValidationSettings  `mapstructure:"validation"`
	WalkForward *WalkForwardSettings `mapstructure:"walk_forward"`
	Robustness  RobustnessSettings  `mapstructure:"robustness"`
}

// StrategySettings selects and parameterizes the strategy.
type StrategySettings struct {
	Type   string             `mapstructure:"type"`
	Params map[string]float64 `mapstructure:"params"`
}

// ExecutionSettings controls order timing and sizing.
type ExecutionSettings struct {
	FillPolicy     string  `mapstructure:"fill_policy"`
	LotSize        float64 `mapstructure:"lot_size"`
	SizingFraction float64 `mapstructure:"sizing_fraction"`
	InitialCash    float64 `mapstructure:"initial_cash"`
	AutoFlatten    bool    `mapstructure:"auto_flatten"`
}

// CostSettings holds the transaction cost model.
type CostSettings struct {
	SlippageBps       float64  `mapstructure:"slippage_bps"`
	FeeBps            float64  `mapstructure:"fee_bps"`
	BorrowBps         float64  `mapstructure:"borrow_bps"`
	SpreadPct         *float64 `mapstructure:"spread_pct"`
	ParticipationRate *float64 `mapstructure:"participation_rate"`
}

// ValidationSettings configures the validation methods. A nil section
// disables that method.
type ValidationSettings struct {
	Statistic   string               `mapstructure:"statistic"`
	Workers     int                  `mapstructure:"workers"`
	Permutation *PermutationSettings `mapstructure:"permutation"`
	Bootstrap   *BootstrapSettings   `mapstructure:"bootstrap"`
}

// PermutationSettings configures the permutation test.
type PermutationSettings struct {
	Trials int `mapstructure:"trials"`
}

// BootstrapSettings configures the block bootstrap.
type BootstrapSettings struct {
	Trials           int     `mapstructure:"trials"`
	BlockLength      int     `mapstructure:"block_length"`
	Confidence       float64 `mapstructure:"confidence"`
	CIWidthThreshold float64 `mapstructure:"ci_width_threshold"`
}

// WalkForwardSettings configures walk-forward segmentation.
type WalkForwardSettings struct {
	TrainBars   int `mapstructure:"train_bars"`
	TestBars    int `mapstructure:"test_bars"`
	StepBars    int `mapstructure:"step_bars"`
	WarmupBars  int `mapstructure:"warmup_bars"`
	MinSegments int `mapstructure:"min_segments"`
}

// RobustnessSettings are the composite score weights. All-zero weights
// select the documented defaults.
type RobustnessSettings struct {
	PValue        float64 `mapstructure:"p_value"`
	Stability     float64 `mapstructure:"stability"`
	Profitability float64 `mapstructure:"profitability"`
	Tail          float64 `mapstructure:"tail"`
}

// Load reads the configuration file at path. Environment variables
// prefixed BACKTEST_LAB_ override file values (dots become
// underscores, e.g. BACKTEST_LAB_STORAGE_POSTGRES_DSN).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("BACKTEST_LAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.calendar_id", "ALLDAYS")
	v.SetDefault("dataset.bar_minutes", 1440)

	v.SetDefault("run.guard_mode", string(domain.GuardStrict))
	v.SetDefault("run.float_precision", domain.DefaultFloatPrecision)
	v.SetDefault("run.execution.fill_policy", string(domain.FillNextBarOpen))
	v.SetDefault("run.execution.lot_size", 1.0)
	v.SetDefault("run.execution.initial_cash", 100000.0)
	v.SetDefault("run.validation.statistic", domain.StatisticTotalReturn)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.metrics_namespace", "backtest_lab")
}

// ToRunConfig translates the file-level settings into the immutable
// run configuration. Structural validation is left to
// RunConfig.Validate, which the orchestrator performs pre-flight.
func (s *RunSettings) ToRunConfig() domain.RunConfig {
	cfg := domain.RunConfig{
		RunSeed:        s.Seed,
		CausalityShift: s.CausalityShift,
		GuardMode:      domain.GuardMode(s.GuardMode),
		Strategy: domain.StrategyConfig{
			Type:   s.Strategy.Type,
			Params: s.Strategy.Params,
		},
		Execution: domain.ExecutionConfig{
			FillPolicy:     domain.FillPolicy(s.Execution.FillPolicy),
			LotSize:        s.Execution.LotSize,
			SizingFraction: s.Execution.SizingFraction,
			InitialCash:    s.Execution.InitialCash,
			AutoFlatten:    s.Execution.AutoFlatten,
		},
		Costs: domain.CostModelConfig{
			SlippageBps:       s.Costs.SlippageBps,
			FeeBps:            s.Costs.FeeBps,
			BorrowBps:         s.Costs.BorrowBps,
			SpreadPct:         s.Costs.SpreadPct,
			ParticipationRate: s.Costs.ParticipationRate,
		},
		Validation: domain.ValidationConfig{
			Statistic: s.Validation.Statistic,
			Workers:   s.Validation.Workers,
		},
		Robustness:     s.robustnessWeights(),
		FloatPrecision: s.FloatPrecision,
	}

	if p := s.Validation.Permutation; p != nil {
		cfg.Validation.Permutation = &domain.PermutationConfig{Trials: p.Trials}
	}
	if b := s.Validation.Bootstrap; b != nil {
		cfg.Validation.Bootstrap = &domain.BootstrapConfig{
			Trials:           b.Trials,
			BlockLength:      b.BlockLength,
			Confidence:       b.Confidence,
			CIWidthThreshold: b.CIWidthThreshold,
		}
	}
	if w := s.WalkForward; w != nil {
		cfg.WalkForward = &domain.WalkForwardConfig{
			TrainBars:   w.TrainBars,
			TestBars:    w.TestBars,
			StepBars:    w.StepBars,
			WarmupBars:  w.WarmupBars,
			MinSegments: w.MinSegments,
		}
	}

	// The strategy's required features are derived here so the config
	// hash covers the exact feature set the run builds.
	cfg.Features = signal.RequiredFeatures(cfg.Strategy, cfg.CausalityShift)

	return cfg
}

func (s *RunSettings) robustnessWeights() domain.RobustnessWeights {
	r := s.Robustness
	if r.PValue == 0 && r.Stability == 0 && r.Profitability == 0 && r.Tail == 0 {
		return domain.DefaultRobustnessWeights()
	}
	return domain.RobustnessWeights{
		PValue:        r.PValue,
		Stability:     r.Stability,
		Profitability: r.Profitability,
		Tail:          r.Tail,
	}
}
