package domain

// RunStatus is the terminal status of a run.
type RunStatus string

// Run status constants.
const (
	StatusSuccess RunStatus = "SUCCESS"
	StatusFailure RunStatus = "FAILURE"
)

// ArtifactDescriptor identifies one produced artifact byte stream.
type ArtifactDescriptor struct {
	Name   string // e.g. "trades.csv", "equity.csv", "validation.json"
	Digest string // SHA256 hex over the artifact bytes
	Size   int64
}

// AnomalyCounters counts non-fatal data anomalies. Anomalies are
// surfaced, never silently corrected.
type AnomalyCounters struct {
	Gaps           int
	Duplicates     int
	NaNSignals     int
	ZeroVolumeBars int
}

// Total returns the sum of all anomaly counters.
func (a AnomalyCounters) Total() int {
	return a.Gaps + a.Duplicates + a.NaNSignals + a.ZeroVolumeBars
}

// RunManifest is the write-once record of one run. Both successful and
// failed runs produce a manifest; a failed run carries the partial
// artifacts produced before the failure.
type RunManifest struct {
	RunID         string // base58-encoded short id derived from RunHash
	RunHash       string // SHA256 hex over (config hash, dataset digest)
	ConfigHash    string // SHA256 hex over canonical config bytes
	DatasetDigest string

	SeedTree       map[string]int64 // scope name -> sub-seed
	FloatPrecision int
	CreatedAt      int64 // Unix ms

	Status       RunStatus
	FailureCause string // empty on success
	FinalPhase   Phase

	Artifacts []ArtifactDescriptor

	Anomalies  AnomalyCounters
	Violations CausalityViolationMetric

	// PrevManifestDigest links this manifest to its predecessor for
	// tamper detection. Empty for the first run in a chain.
	PrevManifestDigest string
}

// SummarySnapshot is a progress event emitted at phase boundaries.
// Sequence numbers are strictly monotonic per run; exactly one
// Finalize snapshot terminates the stream.
type SummarySnapshot struct {
	RunID    string
	Sequence int
	Phase    Phase
	Progress float64 // [0, 1]

	TradeCount int

	// Optional fields, populated once known.
	PValue      *float64
	FinalEquity *float64
	Anomalies   *AnomalyCounters
}
