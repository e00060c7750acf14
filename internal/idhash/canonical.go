// Package idhash derives the deterministic identity of a run:
// canonical config bytes, config/run hashes, the seed tree and the
// short run id. Identical config + dataset digest always yields
// identical output regardless of process, thread count, or map
// iteration order upstream.
package idhash

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"backtest-lab/internal/domain"
)

// CanonicalBytes encodes a RunConfig into a canonical byte form:
// fields in fixed declaration order, map keys sorted, floats formatted
// with exactly 8 fractional digits, UTF-8 throughout.
// Non-canonicalizable values (NaN, Inf) are a fatal ConfigError.
func CanonicalBytes(cfg *domain.RunConfig) ([]byte, error) {
	var b strings.Builder
	w := &canonicalWriter{b: &b}

	w.field("run_seed", strconv.FormatInt(cfg.RunSeed, 10))
	w.field("causality_shift", strconv.FormatBool(cfg.CausalityShift))
	w.field("guard_mode", string(cfg.GuardMode))

	for i, f := range cfg.Features {
		prefix := "features." + strconv.Itoa(i)
		w.field(prefix+".name", f.Name)
		w.field(prefix+".version", f.Version)
		w.params(prefix+".params", f.Params)
		w.field(prefix+".shift_applied", strconv.FormatBool(f.ShiftApplied))
	}

	w.field("strategy.type", cfg.Strategy.Type)
	w.params("strategy.params", cfg.Strategy.Params)

	w.field("execution.fill_policy", string(cfg.Execution.FillPolicy))
	w.float("execution.lot_size", cfg.Execution.LotSize)
	w.float("execution.sizing_fraction", cfg.Execution.SizingFraction)
	w.float("execution.initial_cash", cfg.Execution.InitialCash)
	w.field("execution.auto_flatten", strconv.FormatBool(cfg.Execution.AutoFlatten))

	w.float("costs.slippage_bps", cfg.Costs.SlippageBps)
	w.float("costs.fee_bps", cfg.Costs.FeeBps)
	w.float("costs.borrow_bps", cfg.Costs.BorrowBps)
	w.optFloat("costs.spread_pct", cfg.Costs.SpreadPct)
	w.optFloat("costs.participation_rate", cfg.Costs.ParticipationRate)

	w.field("validation.statistic", cfg.Validation.Statistic)
	if p := cfg.Validation.Permutation; p != nil {
		w.field("validation.permutation.trials", strconv.Itoa(p.Trials))
	}
	if bs := cfg.Validation.Bootstrap; bs != nil {
		w.field("validation.bootstrap.trials", strconv.Itoa(bs.Trials))
		w.field("validation.bootstrap.block_length", strconv.Itoa(bs.BlockLength))
		w.float("validation.bootstrap.confidence", bs.Confidence)
		w.float("validation.bootstrap.ci_width_threshold", bs.CIWidthThreshold)
	}

	if wf := cfg.WalkForward; wf != nil {
		w.field("walk_forward.train_bars", strconv.Itoa(wf.TrainBars))
		w.field("walk_forward.test_bars", strconv.Itoa(wf.TestBars))
		w.field("walk_forward.step_bars", strconv.Itoa(wf.StepBars))
		w.field("walk_forward.warmup_bars", strconv.Itoa(wf.WarmupBars))
		w.field("walk_forward.min_segments", strconv.Itoa(wf.MinSegments))
	}

	w.float("robustness.p_value", cfg.Robustness.PValue)
	w.float("robustness.stability", cfg.Robustness.Stability)
	w.float("robustness.profitability", cfg.Robustness.Profitability)
	w.float("robustness.tail", cfg.Robustness.Tail)

	w.field("float_precision", strconv.Itoa(cfg.FloatPrecision))

	if w.err != nil {
		return nil, w.err
	}
	return []byte(b.String()), nil
}

// canonicalWriter writes "key=value\n" lines and latches the first
// canonicalization failure.
type canonicalWriter struct {
	b   *strings.Builder
	err error
}

func (w *canonicalWriter) field(key, value string) {
	if w.err != nil {
		return
	}
	w.b.WriteString(key)
	w.b.WriteByte('=')
	w.b.WriteString(value)
	w.b.WriteByte('\n')
}

func (w *canonicalWriter) float(key string, v float64) {
	if w.err != nil {
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		w.err = domain.NewConfigError(key, "value %v is not canonicalizable", v)
		return
	}
	w.field(key, FormatFloat(v))
}

func (w *canonicalWriter) optFloat(key string, v *float64) {
	if v == nil {
		return
	}
	w.float(key, *v)
}

func (w *canonicalWriter) params(key string, params map[string]float64) {
	if w.err != nil || len(params) == 0 {
		return
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		w.float(key+"."+name, params[name])
	}
}

// FormatFloat renders a float with the fixed 8-fractional-digit policy
// used for every hashed encoding in the engine.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 8, 64)
}
