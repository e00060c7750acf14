package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the report's metric and validation rows as CSV,
// one section per document. Values use fixed-point formatting so the
// same report always renders to the same bytes.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	sb.WriteString("section,key,value\n")
	sb.WriteString(fmt.Sprintf("identity,run_id,%s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("identity,run_hash,%s\n", r.RunHash))
	sb.WriteString(fmt.Sprintf("identity,config_hash,%s\n", r.ConfigHash))
	sb.WriteString(fmt.Sprintf("identity,dataset_digest,%s\n", r.DatasetDigest))
	sb.WriteString(fmt.Sprintf("identity,status,%s\n", r.Status))

	sb.WriteString(fmt.Sprintf("metrics,cumulative_return,%.6f\n", r.Metrics.CumulativeReturn))
	sb.WriteString(fmt.Sprintf("metrics,annualized_vol,%.6f\n", r.Metrics.AnnualizedVol))
	sb.WriteString(fmt.Sprintf("metrics,sharpe,%.6f\n", r.Metrics.Sharpe))
	sb.WriteString(fmt.Sprintf("metrics,max_drawdown,%.6f\n", r.Metrics.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("metrics,max_drawdown_duration,%d\n", r.Metrics.MaxDrawdownDuration))
	sb.WriteString(fmt.Sprintf("metrics,turnover,%.6f\n", r.Metrics.Turnover))
	sb.WriteString(fmt.Sprintf("metrics,exposure_pct,%.6f\n", r.Metrics.ExposurePct))
	sb.WriteString(fmt.Sprintf("metrics,trade_count,%d\n", r.Metrics.TradeCount))
	sb.WriteString(fmt.Sprintf("metrics,win_rate,%.6f\n", r.Metrics.WinRate))

	sb.WriteString(fmt.Sprintf("anomalies,gaps,%d\n", r.Anomalies.Gaps))
	sb.WriteString(fmt.Sprintf("anomalies,duplicates,%d\n", r.Anomalies.Duplicates))
	sb.WriteString(fmt.Sprintf("anomalies,nan_signals,%d\n", r.Anomalies.NaNSignals))
	sb.WriteString(fmt.Sprintf("anomalies,zero_volume_bars,%d\n", r.Anomalies.ZeroVolumeBars))
	sb.WriteString(fmt.Sprintf("anomalies,causality_violations,%d\n", r.Violations))

	for _, v := range r.Validation {
		sb.WriteString(fmt.Sprintf("validation,%s_observed,%.6f\n", v.Method, v.Observed))
		sb.WriteString(fmt.Sprintf("validation,%s_trials,%d\n", v.Method, v.TrialCount))
		if v.PValue != nil {
			sb.WriteString(fmt.Sprintf("validation,%s_p_value,%.6f\n", v.Method, *v.PValue))
		}
		if v.CILow != nil && v.CIHigh != nil {
			sb.WriteString(fmt.Sprintf("validation,%s_ci_low,%.6f\n", v.Method, *v.CILow))
			sb.WriteString(fmt.Sprintf("validation,%s_ci_high,%.6f\n", v.Method, *v.CIHigh))
		}
		if v.Skipped {
			sb.WriteString(fmt.Sprintf("validation,%s_skipped,%s\n", v.Method, csvEscape(v.SkipReason)))
		}
	}

	if r.CompositeScore != nil {
		sb.WriteString(fmt.Sprintf("robustness,composite_score,%.8f\n", *r.CompositeScore))
	}

	return sb.String()
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}
