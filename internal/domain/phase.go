package domain

// Phase identifies one stage of the run state machine. Transitions are
// forward-only; any failure moves directly to Finalize.
type Phase string

// Phase constants, in execution order.
const (
	PhaseDataValidation Phase = "DATA_VALIDATION"
	PhaseFeatureBuild   Phase = "FEATURE_BUILD"
	PhaseSignals        Phase = "SIGNALS"
	PhaseExecution      Phase = "EXECUTION"
	PhaseMetrics        Phase = "METRICS"
	PhaseValidation     Phase = "VALIDATION"
	PhaseFinalize       Phase = "FINALIZE"
)

// PhaseOrder lists phases in their only legal order.
var PhaseOrder = []Phase{
	PhaseDataValidation,
	PhaseFeatureBuild,
	PhaseSignals,
	PhaseExecution,
	PhaseMetrics,
	PhaseValidation,
	PhaseFinalize,
}

// Progress returns the completion ratio after the given phase,
// used for SummarySnapshot.Progress.
func Progress(p Phase) float64 {
	for i, ph := range PhaseOrder {
		if ph == p {
			return float64(i+1) / float64(len(PhaseOrder))
		}
	}
	return 0
}
