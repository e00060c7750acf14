package domain

// GuardMode controls how causality violations are handled.
type GuardMode string

// Guard mode constants.
const (
	// GuardStrict aborts the run on the first future access.
	GuardStrict GuardMode = "STRICT"
	// GuardPermissive returns the value but counts the violation.
	GuardPermissive GuardMode = "PERMISSIVE"
)

// FillPolicy selects how a signal at bar t is priced at bar t+1.
type FillPolicy string

// Fill policy constants.
const (
	// FillNextBarOpen fills at the next bar's open price.
	FillNextBarOpen FillPolicy = "NEXT_BAR_OPEN"
	// FillNextTickSurrogate fills at the midpoint of the next bar's
	// open and close, a surrogate for the first tradable tick.
	FillNextTickSurrogate FillPolicy = "NEXT_TICK_SURROGATE"
)

// FeatureSpec describes one indicator series to build.
type FeatureSpec struct {
	Name         string             // registry key, e.g. "sma"
	Version      string             // indicator version tag
	Params       map[string]float64 // indicator parameters
	ShiftApplied bool               // true only if RunConfig.CausalityShift is true
}

// StrategyConfig selects and parameterizes the strategy.
type StrategyConfig struct {
	Type   string             // registry key, e.g. "MA_CROSS"
	Params map[string]float64 // strategy parameters
}

// ExecutionConfig controls order timing and sizing.
type ExecutionConfig struct {
	FillPolicy     FillPolicy
	LotSize        float64 // smallest tradable quantity, > 0
	SizingFraction float64 // fraction of equity per unit of signal
	InitialCash    float64
	AutoFlatten    bool // close any open position on the final bar
}

// CostModelConfig holds the transaction cost model.
// SpreadPct and ParticipationRate are mutually exclusive slippage
// adapters; configuring both is a ConfigError.
type CostModelConfig struct {
	SlippageBps       float64  // flat slippage, basis points
	FeeBps            float64  // commission, basis points
	BorrowBps         float64  // annualized short borrow rate, basis points
	SpreadPct         *float64 // SpreadPercent adapter: half-spread percent
	ParticipationRate *float64 // ParticipationRate adapter: impact coefficient
}

// PermutationConfig configures the permutation test.
type PermutationConfig struct {
	Trials int // 0 yields an explicit placeholder result
}

// BootstrapConfig configures the block bootstrap.
type BootstrapConfig struct {
	Trials           int     // default 500
	BlockLength      int     // overlapping block length, default 20
	Confidence       float64 // CI level, default 0.95
	CIWidthThreshold float64 // informational gate threshold
}

// ValidationConfig aggregates the optional validation methods.
// A nil sub-config disables that method.
type ValidationConfig struct {
	Statistic   string // observed statistic: "total_return" | "sharpe"
	Workers     int    // trial worker count; output bytes never depend on it
	Permutation *PermutationConfig
	Bootstrap   *BootstrapConfig
}

// WalkForwardConfig configures walk-forward segmentation in bars.
type WalkForwardConfig struct {
	TrainBars   int
	TestBars    int
	StepBars    int // advance between segments; defaults to TestBars
	WarmupBars  int // optional overlap preceding each train window
	MinSegments int // below this the method is skipped, not failed
}

// RobustnessWeights are the explicit composite score weights.
type RobustnessWeights struct {
	PValue        float64 // default 0.4
	Stability     float64 // default 0.3
	Profitability float64 // default 0.2
	Tail          float64 // default 0.1
}

// DefaultRobustnessWeights returns the documented default weighting.
func DefaultRobustnessWeights() RobustnessWeights {
	return RobustnessWeights{PValue: 0.4, Stability: 0.3, Profitability: 0.2, Tail: 0.1}
}

// RunConfig is the complete, immutable configuration of one run.
// It is constructed once, hashed by idhash, and never mutated.
type RunConfig struct {
	RunSeed        int64 // root seed for the seed tree
	CausalityShift bool  // shift features one bar forward
	GuardMode      GuardMode

	Features    []FeatureSpec
	Strategy    StrategyConfig
	Execution   ExecutionConfig
	Costs       CostModelConfig
	Validation  ValidationConfig
	WalkForward *WalkForwardConfig // nil disables walk-forward

	Robustness RobustnessWeights

	// FloatPrecision is the number of fractional digits all scores and
	// canonical encodings are rounded to before hashing. Default 8.
	FloatPrecision int
}

// DefaultFloatPrecision is the fixed float-precision policy.
const DefaultFloatPrecision = 8

// Validation statistic keys.
const (
	StatisticTotalReturn = "total_return"
	StatisticSharpe      = "sharpe"
)
