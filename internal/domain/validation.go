package domain

// ValidationMethod tags a validation result with its producing engine.
type ValidationMethod string

// Validation method constants.
const (
	MethodPermutation    ValidationMethod = "permutation"
	MethodBlockBootstrap ValidationMethod = "block_bootstrap"
	MethodWalkForward    ValidationMethod = "walk_forward"
)

// ValidationResult is the output of one validation sub-engine.
// Distribution is ordered by trial index, never by completion order,
// so the digest is independent of worker scheduling.
type ValidationResult struct {
	Method    ValidationMethod
	Statistic string  // statistic key the engine evaluated
	Observed  float64 // realized statistic from the actual run

	Distribution       []float64 // trial statistics, trial-index order
	DistributionDigest string    // SHA256 hex over the canonical distribution encoding
	TrialCount         int

	// PValue is nil when TrialCount == 0 (explicit placeholder, not an
	// error). Convention: inclusive boundary, fraction of trials >= observed.
	PValue *float64

	// Block bootstrap extras; nil for other methods.
	CILow      *float64
	CIHigh     *float64
	CIWidth    *float64
	GatePassed *bool // informational; the caller decides to block a release

	// Skipped marks a method that could not run (e.g. insufficient
	// data). Sibling methods are unaffected.
	Skipped    bool
	SkipReason string
}

// WalkForwardSegment is one (train, test) window pair.
// Bounds are bar indices, half-open [start, end).
type WalkForwardSegment struct {
	Index      int
	TrainStart int
	TrainEnd   int
	TestStart  int
	TestEnd    int
	WarmupBars int

	ChosenParamsDigest string // digest of parameters selected on the train window

	InSampleMetrics    map[string]float64
	OutOfSampleMetrics map[string]float64

	Stable bool // OOS result within tolerance of in-sample result
}

// WalkForwardAggregate summarizes all segments of a walk-forward pass.
type WalkForwardAggregate struct {
	TotalSegments      int
	ProfitableSegments int

	// OOSConsistency is 1/(1+CV) of segment OOS returns; 1.0 means
	// perfectly consistent segments.
	OOSConsistency float64

	AggregateOOSReturn float64
	AggregateOOSSharpe float64

	// ExtremeTailRatio is the fraction of permutation trials exceeding
	// the observed statistic (strictly greater).
	ExtremeTailRatio float64

	CompositeScore float64 // robustness composite, rounded per float policy
}

// CausalityViolationMetric reports guard violations for one run.
// Compliant strategies in Strict mode always report zero.
type CausalityViolationMetric struct {
	ViolationCount int64
}
