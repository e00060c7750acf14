package domain

// MetricSet holds the performance statistics for one equity/trade
// sequence. All fields are defined for degenerate inputs via the
// sentinel conventions documented in the metrics package.
type MetricSet struct {
	CumulativeReturn    float64
	AnnualizedVol       float64
	Sharpe              float64
	MaxDrawdown         float64
	MaxDrawdownDuration int // bars
	Turnover            float64
	ExposurePct         float64
	TradeCount          int
	WinRate             float64
}

// AsMap returns the metrics keyed by stable names, used for
// walk-forward segment metric maps and reporting.
func (m *MetricSet) AsMap() map[string]float64 {
	return map[string]float64{
		"cumulative_return":     m.CumulativeReturn,
		"annualized_vol":        m.AnnualizedVol,
		"sharpe":                m.Sharpe,
		"max_drawdown":          m.MaxDrawdown,
		"max_drawdown_duration": float64(m.MaxDrawdownDuration),
		"turnover":              m.Turnover,
		"exposure_pct":          m.ExposurePct,
		"trade_count":           float64(m.TradeCount),
		"win_rate":              m.WinRate,
	}
}

// Statistic returns the named validation statistic from the set.
func (m *MetricSet) Statistic(key string) float64 {
	switch key {
	case StatisticSharpe:
		return m.Sharpe
	default:
		return m.CumulativeReturn
	}
}

// RunContext carries the per-run identity and configuration threaded
// explicitly through every component call. There is no ambient or
// global run state anywhere in the engine.
type RunContext struct {
	Config  RunConfig // normalized copy, immutable once hashed
	Dataset *DatasetSnapshot
	Series  *Series

	RunID      string
	RunHash    string
	ConfigHash string
	SeedTree   map[string]int64

	// Anomalies is the single mutable accumulator for non-fatal data
	// anomalies. Only pipeline phases write to it, sequentially.
	Anomalies AnomalyCounters
}

// Seed tree scope names.
const (
	SeedScopeData       = "data"
	SeedScopeFeature    = "feature"
	SeedScopeExecution  = "execution"
	SeedScopeValidation = "validation"
)

// Seed returns the sub-seed for a scope; zero if the scope is unknown.
func (rc *RunContext) Seed(scope string) int64 {
	return rc.SeedTree[scope]
}
