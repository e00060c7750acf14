package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders a report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# Backtest Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Identity
	sb.WriteString("## Run Identity\n\n")
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run ID | %s |\n", r.RunID))
	sb.WriteString(fmt.Sprintf("| Run Hash | %s |\n", r.RunHash))
	sb.WriteString(fmt.Sprintf("| Config Hash | %s |\n", r.ConfigHash))
	sb.WriteString(fmt.Sprintf("| Dataset Digest | %s |\n", r.DatasetDigest))
	sb.WriteString(fmt.Sprintf("| Status | %s |\n", r.Status))
	if r.FailureCause != "" {
		sb.WriteString(fmt.Sprintf("| Failure Cause | %s |\n", r.FailureCause))
	}
	sb.WriteString("\n")

	// Performance
	sb.WriteString("## Performance\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Cumulative Return | %.4f |\n", r.Metrics.CumulativeReturn))
	sb.WriteString(fmt.Sprintf("| Annualized Vol | %.4f |\n", r.Metrics.AnnualizedVol))
	sb.WriteString(fmt.Sprintf("| Sharpe | %.4f |\n", r.Metrics.Sharpe))
	sb.WriteString(fmt.Sprintf("| Max Drawdown | %.4f |\n", r.Metrics.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max Drawdown Duration (bars) | %d |\n", r.Metrics.MaxDrawdownDuration))
	sb.WriteString(fmt.Sprintf("| Turnover | %.4f |\n", r.Metrics.Turnover))
	sb.WriteString(fmt.Sprintf("| Exposure | %.4f |\n", r.Metrics.ExposurePct))
	sb.WriteString(fmt.Sprintf("| Trades | %d |\n", r.Metrics.TradeCount))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", r.Metrics.WinRate))
	sb.WriteString("\n")

	// Data quality
	sb.WriteString("## Data Quality\n\n")
	sb.WriteString("| Counter | Value |\n")
	sb.WriteString("|---------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Gaps | %d |\n", r.Anomalies.Gaps))
	sb.WriteString(fmt.Sprintf("| Duplicates | %d |\n", r.Anomalies.Duplicates))
	sb.WriteString(fmt.Sprintf("| NaN Signals | %d |\n", r.Anomalies.NaNSignals))
	sb.WriteString(fmt.Sprintf("| Zero-Volume Bars | %d |\n", r.Anomalies.ZeroVolumeBars))
	sb.WriteString(fmt.Sprintf("| Causality Violations | %d |\n", r.Violations))
	sb.WriteString("\n")

	// Validation
	sb.WriteString("## Validation\n\n")
	if len(r.Validation) > 0 {
		sb.WriteString("| Method | Observed | Trials | P-Value | CI | Gate | Status |\n")
		sb.WriteString("|--------|----------|--------|---------|----|------|--------|\n")
		for _, v := range r.Validation {
			sb.WriteString(fmt.Sprintf("| %s | %.4f | %d | %s | %s | %s | %s |\n",
				v.Method, v.Observed, v.TrialCount,
				fmtOptFloat(v.PValue), fmtCI(v.CILow, v.CIHigh), fmtGate(v.GatePassed), fmtStatus(v)))
		}
	} else {
		sb.WriteString("No validation methods were configured.\n")
	}
	sb.WriteString("\n")

	// Walk-forward
	if len(r.Segments) > 0 {
		sb.WriteString("## Walk-Forward Segments\n\n")
		sb.WriteString("| Seg | Train | Test | IS Return | OOS Return | OOS Sharpe | Stable |\n")
		sb.WriteString("|-----|-------|------|-----------|------------|------------|--------|\n")
		for _, s := range r.Segments {
			sb.WriteString(fmt.Sprintf("| %d | [%d, %d) | [%d, %d) | %.4f | %.4f | %.4f | %t |\n",
				s.Index, s.TrainStart, s.TrainEnd, s.TestStart, s.TestEnd,
				s.ISReturn, s.OOSReturn, s.OOSSharpe, s.Stable))
		}
		sb.WriteString("\n")

		if agg := r.WFAggregate; agg != nil {
			sb.WriteString(fmt.Sprintf("Segments: %d total, %d profitable | OOS consistency: %.4f | Aggregate OOS return: %.4f\n\n",
				agg.TotalSegments, agg.ProfitableSegments, agg.OOSConsistency, agg.AggregateOOSReturn))
		}
	}

	if r.CompositeScore != nil {
		sb.WriteString(fmt.Sprintf("## Robustness\n\nComposite score: **%.8f**\n", *r.CompositeScore))
	}

	return sb.String()
}

func fmtOptFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func fmtCI(lo, hi *float64) string {
	if lo == nil || hi == nil {
		return "-"
	}
	return fmt.Sprintf("[%.4f, %.4f]", *lo, *hi)
}

func fmtGate(passed *bool) string {
	if passed == nil {
		return "-"
	}
	if *passed {
		return "PASS"
	}
	return "FAIL"
}

func fmtStatus(v ValidationRow) string {
	if v.Skipped {
		return "SKIPPED: " + v.SkipReason
	}
	return "OK"
}
