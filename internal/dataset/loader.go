// Package dataset loads OHLCV bar data from CSV files into immutable
// in-memory series, computing a canonical content digest and data
// quality counters along the way. Anomalies are counted, never
// silently corrected.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// csv column layout: timestamp_ms,open,high,low,close,volume
const columnCount = 6

// Options for loading a dataset.
type Options struct {
	DatasetID  string
	CalendarID string
	BarMinutes int // bar duration; 1440 for daily bars
}

// Loaded bundles the series with its snapshot record.
type Loaded struct {
	Series   *domain.Series
	Snapshot *domain.DatasetSnapshot
}

// Load reads a CSV file at path into a series. Rows must be sorted by
// timestamp; duplicate timestamps keep the first occurrence and bump
// the duplicate counter, missing calendar steps bump the gap counter.
func Load(path string, opts Options) (*Loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	loaded, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("load dataset %s: %w", path, err)
	}
	loaded.Snapshot.Path = path
	return loaded, nil
}

// Read parses CSV bar data from r.
func Read(r io.Reader, opts Options) (*Loaded, error) {
	if opts.BarMinutes <= 0 {
		return nil, domain.NewConfigError("dataset.bar_minutes", "must be positive")
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = columnCount

	series := &domain.Series{BarMinutes: opts.BarMinutes}
	barMs := int64(opts.BarMinutes) * 60_000

	var gaps, duplicates int
	line := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		line++

		// Optional header row.
		if line == 1 && strings.EqualFold(record[0], "timestamp_ms") {
			continue
		}

		ts, err := strconv.ParseInt(record[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse timestamp %q: %w", line, record[0], err)
		}

		fields := make([]float64, columnCount-1)
		for i := 1; i < columnCount; i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: parse column %d %q: %w", line, i, record[i], err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d: column %d is not finite", line, i)
			}
			fields[i-1] = v
		}

		if n := series.Len(); n > 0 {
			prev := series.Timestamps[n-1]
			switch {
			case ts == prev:
				duplicates++
				continue // first occurrence wins
			case ts < prev:
				return nil, fmt.Errorf("row %d: timestamp %d out of order (prev %d)", line, ts, prev)
			case ts > prev+barMs:
				gaps += int((ts - prev) / barMs) - 1
			}
		}

		series.Timestamps = append(series.Timestamps, ts)
		series.Open = append(series.Open, fields[0])
		series.High = append(series.High, fields[1])
		series.Low = append(series.Low, fields[2])
		series.Close = append(series.Close, fields[3])
		series.Volume = append(series.Volume, fields[4])
	}

	if series.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	snap := &domain.DatasetSnapshot{
		DatasetID:      opts.DatasetID,
		ContentDigest:  ContentDigest(series),
		CalendarID:     opts.CalendarID,
		RowCount:       series.Len(),
		FirstBarTime:   series.Timestamps[0],
		LastBarTime:    series.Timestamps[series.Len()-1],
		GapCount:       gaps,
		DuplicateCount: duplicates,
	}
	return &Loaded{Series: series, Snapshot: snap}, nil
}

// ContentDigest hashes the series bytes canonically: one line per bar,
// fixed column order, fixed float formatting. Identical bar data
// always digests identically regardless of source formatting.
func ContentDigest(series *domain.Series) string {
	var b strings.Builder
	for i := 0; i < series.Len(); i++ {
		fmt.Fprintf(&b, "%d,%s,%s,%s,%s,%s\n",
			series.Timestamps[i],
			idhash.FormatFloat(series.Open[i]),
			idhash.FormatFloat(series.High[i]),
			idhash.FormatFloat(series.Low[i]),
			idhash.FormatFloat(series.Close[i]),
			idhash.FormatFloat(series.Volume[i]),
		)
	}
	return idhash.DigestBytes([]byte(b.String()))
}
