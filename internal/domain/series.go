package domain

// Series holds a calendar-aligned OHLCV time series in columnar form.
// All columns have identical length and share the same bar index.
// A Series is never mutated after construction; components hold
// borrowed references, never copies.
type Series struct {
	Timestamps []int64 // bar close timestamps (Unix ms), strictly ascending
	Open       []float64
	High       []float64
	Low        []float64
	Close      []float64
	Volume     []float64

	// BarMinutes is the bar duration in minutes (1440 for daily bars).
	BarMinutes int
}

// Len returns the number of bars in the series.
func (s *Series) Len() int {
	return len(s.Timestamps)
}

// BarDays returns the bar duration expressed in days.
// Used for per-bar borrow accrual.
func (s *Series) BarDays() float64 {
	return float64(s.BarMinutes) / 1440.0
}

// Slice returns a view over bars [start, end). The underlying columns
// are shared, not copied.
func (s *Series) Slice(start, end int) *Series {
	return &Series{
		Timestamps: s.Timestamps[start:end],
		Open:       s.Open[start:end],
		High:       s.High[start:end],
		Low:        s.Low[start:end],
		Close:      s.Close[start:end],
		Volume:     s.Volume[start:end],
		BarMinutes: s.BarMinutes,
	}
}

// DatasetSnapshot is an immutable reference to a content-addressed
// dataset. The core holds a read-only reference; the ingestion
// collaborator owns construction.
type DatasetSnapshot struct {
	DatasetID     string // stable dataset identifier
	Path          string // source path (informational)
	ContentDigest string // SHA256 hex over the canonical series encoding
	CalendarID    string // trading calendar identifier
	RowCount      int    // number of bars
	FirstBarTime  int64  // Unix ms
	LastBarTime   int64  // Unix ms

	// Data quality counters recorded at ingestion. Anomalies are
	// counted, never silently corrected.
	GapCount       int
	DuplicateCount int
}
