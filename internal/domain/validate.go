package domain

import "math"

// Validate performs pre-flight validation of the config. All failures
// are ConfigError: fatal before any computation begins.
func (c *RunConfig) Validate() error {
	switch c.GuardMode {
	case GuardStrict, GuardPermissive:
	default:
		return NewConfigError("GuardMode", "unknown mode %q", c.GuardMode)
	}

	for i, f := range c.Features {
		if f.Name == "" {
			return NewConfigError("Features", "feature %d has empty name", i)
		}
		if f.ShiftApplied && !c.CausalityShift {
			return NewConfigError("Features", "feature %q has ShiftApplied without CausalityShift", f.Name)
		}
		for k, v := range f.Params {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return NewConfigError("Features", "feature %q param %q is not canonicalizable", f.Name, k)
			}
		}
	}

	if c.Strategy.Type == "" {
		return NewConfigError("Strategy", "empty strategy type")
	}
	for k, v := range c.Strategy.Params {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewConfigError("Strategy", "param %q is not canonicalizable", k)
		}
	}

	switch c.Execution.FillPolicy {
	case FillNextBarOpen, FillNextTickSurrogate:
	default:
		return NewConfigError("Execution.FillPolicy", "unknown policy %q", c.Execution.FillPolicy)
	}
	if c.Execution.LotSize <= 0 {
		return NewConfigError("Execution.LotSize", "must be positive, got %g", c.Execution.LotSize)
	}
	if c.Execution.SizingFraction <= 0 || c.Execution.SizingFraction > 1 {
		return NewConfigError("Execution.SizingFraction", "must be in (0, 1], got %g", c.Execution.SizingFraction)
	}
	if c.Execution.InitialCash <= 0 {
		return NewConfigError("Execution.InitialCash", "must be positive, got %g", c.Execution.InitialCash)
	}

	if c.Costs.SpreadPct != nil && c.Costs.ParticipationRate != nil {
		return NewConfigError("Costs", "%v", ErrBothAdaptersSet)
	}
	for field, v := range map[string]float64{
		"Costs.SlippageBps": c.Costs.SlippageBps,
		"Costs.FeeBps":      c.Costs.FeeBps,
		"Costs.BorrowBps":   c.Costs.BorrowBps,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return NewConfigError(field, "must be a non-negative finite number, got %g", v)
		}
	}

	switch c.Validation.Statistic {
	case "", StatisticTotalReturn, StatisticSharpe:
	default:
		return NewConfigError("Validation.Statistic", "unknown statistic %q", c.Validation.Statistic)
	}
	if p := c.Validation.Permutation; p != nil && p.Trials < 0 {
		return NewConfigError("Validation.Permutation.Trials", "must be >= 0, got %d", p.Trials)
	}
	if b := c.Validation.Bootstrap; b != nil {
		if b.Trials < 0 {
			return NewConfigError("Validation.Bootstrap.Trials", "must be >= 0, got %d", b.Trials)
		}
		if b.BlockLength <= 0 {
			return NewConfigError("Validation.Bootstrap.BlockLength", "must be positive, got %d", b.BlockLength)
		}
		if b.Confidence <= 0 || b.Confidence >= 1 {
			return NewConfigError("Validation.Bootstrap.Confidence", "must be in (0, 1), got %g", b.Confidence)
		}
	}

	if wf := c.WalkForward; wf != nil {
		if wf.TrainBars <= 0 || wf.TestBars <= 0 {
			return NewConfigError("WalkForward", "TrainBars and TestBars must be positive, got %d/%d", wf.TrainBars, wf.TestBars)
		}
		if wf.StepBars < 0 || wf.WarmupBars < 0 {
			return NewConfigError("WalkForward", "StepBars and WarmupBars must be >= 0")
		}
		if wf.WarmupBars >= wf.TrainBars {
			return NewConfigError("WalkForward.WarmupBars", "warm-up %d must be smaller than train window %d", wf.WarmupBars, wf.TrainBars)
		}
	}

	w := c.Robustness
	if w.PValue < 0 || w.Stability < 0 || w.Profitability < 0 || w.Tail < 0 {
		return NewConfigError("Robustness", "weights must be non-negative")
	}

	if c.FloatPrecision < 0 || c.FloatPrecision > 15 {
		return NewConfigError("FloatPrecision", "must be in [0, 15], got %d", c.FloatPrecision)
	}

	return nil
}

// Normalized returns a copy with defaults applied. The original config
// is never mutated.
func (c RunConfig) Normalized() RunConfig {
	if c.FloatPrecision == 0 {
		c.FloatPrecision = DefaultFloatPrecision
	}
	if c.Validation.Statistic == "" {
		c.Validation.Statistic = StatisticTotalReturn
	}
	if c.Validation.Workers <= 0 {
		c.Validation.Workers = 1
	}
	if b := c.Validation.Bootstrap; b != nil {
		nb := *b
		if nb.Trials == 0 {
			nb.Trials = 500
		}
		if nb.BlockLength == 0 {
			nb.BlockLength = 20
		}
		if nb.Confidence == 0 {
			nb.Confidence = 0.95
		}
		c.Validation.Bootstrap = &nb
	}
	if wf := c.WalkForward; wf != nil {
		nwf := *wf
		if nwf.StepBars == 0 {
			nwf.StepBars = nwf.TestBars
		}
		if nwf.MinSegments == 0 {
			nwf.MinSegments = 2
		}
		c.WalkForward = &nwf
	}
	if c.Robustness == (RobustnessWeights{}) {
		c.Robustness = DefaultRobustnessWeights()
	}
	return c
}
