package reporting

import (
	"time"

	"backtest-lab/internal/domain"
)

// Report is the rendered summary of one run.
type Report struct {
	GeneratedAt time.Time

	// Identity
	RunID         string
	RunHash       string
	ConfigHash    string
	DatasetDigest string
	Status        domain.RunStatus
	FailureCause  string

	// Performance
	Metrics domain.MetricSet

	// Data quality
	Anomalies  domain.AnomalyCounters
	Violations int64

	// Validation (sorted by method)
	Validation []ValidationRow

	// Walk-forward (sorted by segment index)
	Segments    []SegmentRow
	WFAggregate *domain.WalkForwardAggregate

	// Composite robustness score
	CompositeScore *float64
}

// ValidationRow is one validation method's summary line.
type ValidationRow struct {
	Method     string
	Observed   float64
	TrialCount int
	PValue     *float64
	CILow      *float64
	CIHigh     *float64
	GatePassed *bool
	Skipped    bool
	SkipReason string
}

// SegmentRow is one walk-forward segment line.
type SegmentRow struct {
	Index       int
	TrainStart  int
	TrainEnd    int
	TestStart   int
	TestEnd     int
	ISReturn    float64
	OOSReturn   float64
	OOSSharpe   float64
	Stable      bool
	ParamDigest string
}
