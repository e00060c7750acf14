// Package artifact encodes run outputs into canonical byte streams.
// Every encoder is deterministic: fixed column order, fixed float
// formatting, sorted keys. Identical runs produce identical bytes and
// therefore identical digests.
package artifact

import (
	"fmt"
	"sort"
	"strings"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/idhash"
)

// Artifact names.
const (
	NameTrades     = "trades.csv"
	NameEquity     = "equity.csv"
	NameValidation = "validation.json"
	NameManifest   = "manifest.json"
)

// Describe builds a descriptor for one artifact byte stream.
func Describe(name string, data []byte) domain.ArtifactDescriptor {
	return domain.ArtifactDescriptor{
		Name:   name,
		Digest: idhash.DigestBytes(data),
		Size:   int64(len(data)),
	}
}

// EncodeTrades renders the trade ledger as canonical CSV.
func EncodeTrades(trades []domain.Trade) []byte {
	var b strings.Builder
	b.WriteString("timestamp,bar_index,side,quantity,pre_cost_price,fill_price,adapter_slippage,flat_slippage,fee_bps,commission,borrow_accrued,position_after,cash_after\n")
	for _, t := range trades {
		fmt.Fprintf(&b, "%d,%d,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s\n",
			t.Timestamp, t.BarIndex, t.Side,
			idhash.FormatFloat(t.Quantity),
			idhash.FormatFloat(t.PreCostPrice),
			idhash.FormatFloat(t.FillPrice),
			idhash.FormatFloat(t.AdapterSlippage),
			idhash.FormatFloat(t.FlatSlippage),
			idhash.FormatFloat(t.FeeBps),
			idhash.FormatFloat(t.Commission),
			idhash.FormatFloat(t.BorrowAccrued),
			idhash.FormatFloat(t.PositionAfter),
			idhash.FormatFloat(t.CashAfter),
		)
	}
	return []byte(b.String())
}

// EncodeEquity renders the equity curve as canonical CSV.
func EncodeEquity(equity []domain.EquityBar) []byte {
	var b strings.Builder
	b.WriteString("timestamp,bar_index,equity,realized_pnl,unrealized_pnl,cost_drag,position\n")
	for _, e := range equity {
		fmt.Fprintf(&b, "%d,%d,%s,%s,%s,%s,%s\n",
			e.Timestamp, e.BarIndex,
			idhash.FormatFloat(e.Equity),
			idhash.FormatFloat(e.RealizedPnL),
			idhash.FormatFloat(e.UnrealizedPnL),
			idhash.FormatFloat(e.CostDrag),
			idhash.FormatFloat(e.Position),
		)
	}
	return []byte(b.String())
}

// EncodeValidation renders all validation results as canonical JSON.
// Hand-built rather than marshaled so float formatting and key order
// are fixed.
func EncodeValidation(results []domain.ValidationResult, segments []domain.WalkForwardSegment, agg *domain.WalkForwardAggregate) []byte {
	var b strings.Builder
	b.WriteString("{\"results\":[")
	for i, r := range results {
		if i > 0 {
			b.WriteByte(',')
		}
		writeResult(&b, &r)
	}
	b.WriteString("],\"walk_forward_segments\":[")
	for i, s := range segments {
		if i > 0 {
			b.WriteByte(',')
		}
		writeSegment(&b, &s)
	}
	b.WriteString("],\"walk_forward_aggregate\":")
	if agg == nil {
		b.WriteString("null")
	} else {
		writeAggregate(&b, agg)
	}
	b.WriteString("}")
	return []byte(b.String())
}

func writeResult(b *strings.Builder, r *domain.ValidationResult) {
	fmt.Fprintf(b, "{\"method\":%q,\"statistic\":%q,\"observed\":%s,\"trial_count\":%d,\"distribution_digest\":%q",
		r.Method, r.Statistic, idhash.FormatFloat(r.Observed), r.TrialCount, r.DistributionDigest)
	writeOptFloat(b, "p_value", r.PValue)
	writeOptFloat(b, "ci_low", r.CILow)
	writeOptFloat(b, "ci_high", r.CIHigh)
	writeOptFloat(b, "ci_width", r.CIWidth)
	if r.GatePassed != nil {
		fmt.Fprintf(b, ",\"gate_passed\":%t", *r.GatePassed)
	}
	if r.Skipped {
		fmt.Fprintf(b, ",\"skipped\":true,\"skip_reason\":%q", r.SkipReason)
	}
	b.WriteString("}")
}

// writeOptFloat writes an optional float field. An absent value still
// emits the key with an explicit null so placeholders are visible in
// the artifact bytes, never omitted.
func writeOptFloat(b *strings.Builder, field string, v *float64) {
	if v == nil {
		fmt.Fprintf(b, ",%q:null", field)
		return
	}
	fmt.Fprintf(b, ",%q:%s", field, idhash.FormatFloat(*v))
}

func writeSegment(b *strings.Builder, s *domain.WalkForwardSegment) {
	fmt.Fprintf(b, "{\"index\":%d,\"train_start\":%d,\"train_end\":%d,\"test_start\":%d,\"test_end\":%d,\"warmup_bars\":%d,\"chosen_params_digest\":%q,\"stable\":%t",
		s.Index, s.TrainStart, s.TrainEnd, s.TestStart, s.TestEnd, s.WarmupBars, s.ChosenParamsDigest, s.Stable)
	writeMetricMap(b, "in_sample", s.InSampleMetrics)
	writeMetricMap(b, "out_of_sample", s.OutOfSampleMetrics)
	b.WriteString("}")
}

func writeAggregate(b *strings.Builder, a *domain.WalkForwardAggregate) {
	fmt.Fprintf(b, "{\"total_segments\":%d,\"profitable_segments\":%d,\"oos_consistency\":%s,\"aggregate_oos_return\":%s,\"aggregate_oos_sharpe\":%s,\"extreme_tail_ratio\":%s,\"composite_score\":%s}",
		a.TotalSegments, a.ProfitableSegments,
		idhash.FormatFloat(a.OOSConsistency),
		idhash.FormatFloat(a.AggregateOOSReturn),
		idhash.FormatFloat(a.AggregateOOSSharpe),
		idhash.FormatFloat(a.ExtremeTailRatio),
		idhash.FormatFloat(a.CompositeScore),
	)
}

// writeMetricMap writes a metric map with sorted keys.
func writeMetricMap(b *strings.Builder, field string, m map[string]float64) {
	fmt.Fprintf(b, ",%q:{", field)
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(b, "%q:%s", k, idhash.FormatFloat(m[k]))
	}
	b.WriteString("}")
}

// EncodeManifest renders a run manifest as canonical JSON. The
// PrevManifestDigest field chains manifests for tamper evidence.
func EncodeManifest(m *domain.RunManifest) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "{\"run_id\":%q,\"run_hash\":%q,\"config_hash\":%q,\"dataset_digest\":%q,\"float_precision\":%d,\"created_at\":%d,\"status\":%q,\"final_phase\":%q",
		m.RunID, m.RunHash, m.ConfigHash, m.DatasetDigest, m.FloatPrecision, m.CreatedAt, m.Status, m.FinalPhase)
	if m.FailureCause != "" {
		fmt.Fprintf(&b, ",\"failure_cause\":%q", m.FailureCause)
	}

	b.WriteString(",\"seed_tree\":{")
	scopes := make([]string, 0, len(m.SeedTree))
	for scope := range m.SeedTree {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	for i, scope := range scopes {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%d", scope, m.SeedTree[scope])
	}
	b.WriteString("},\"artifacts\":[")
	for i, a := range m.Artifacts {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "{\"name\":%q,\"digest\":%q,\"size\":%d}", a.Name, a.Digest, a.Size)
	}
	fmt.Fprintf(&b, "],\"anomalies\":{\"gaps\":%d,\"duplicates\":%d,\"nan_signals\":%d,\"zero_volume_bars\":%d}",
		m.Anomalies.Gaps, m.Anomalies.Duplicates, m.Anomalies.NaNSignals, m.Anomalies.ZeroVolumeBars)
	fmt.Fprintf(&b, ",\"violation_count\":%d", m.Violations.ViolationCount)
	fmt.Fprintf(&b, ",\"prev_manifest_digest\":%q}", m.PrevManifestDigest)
	return []byte(b.String())
}
