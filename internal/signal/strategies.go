package signal

import (
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/feature"
)

// maCross goes long on a golden cross (fast MA crossing above slow)
// and flat on the death cross. Exposure target is +1 long, 0 flat.
type maCross struct {
	fast, slow int
	fastKey    string
	slowKey    string
	stance     float64 // current desired exposure
}

func newMACross(cfg domain.StrategyConfig) (Strategy, error) {
	fast, ok := cfg.Params["fast"]
	if !ok || fast < 1 {
		return nil, fmt.Errorf("MA_CROSS requires a positive fast param")
	}
	slow, ok := cfg.Params["slow"]
	if !ok || slow <= fast {
		return nil, fmt.Errorf("MA_CROSS requires slow > fast")
	}
	return &maCross{
		fast:    int(fast),
		slow:    int(slow),
		fastKey: feature.Key(domain.FeatureSpec{Name: "sma", Params: map[string]float64{"window": fast}}),
		slowKey: feature.Key(domain.FeatureSpec{Name: "sma", Params: map[string]float64{"window": slow}}),
	}, nil
}

func (s *maCross) ID() string {
	return fmt.Sprintf("MA_CROSS_f%d_s%d", s.fast, s.slow)
}

func (s *maCross) OnBar(bar int, acc *Accessor) (Decision, error) {
	if bar < 1 {
		return Decision{}, nil
	}

	fastView, err := acc.Feature(s.fastKey)
	if err != nil {
		return Decision{}, err
	}
	slowView, err := acc.Feature(s.slowKey)
	if err != nil {
		return Decision{}, err
	}

	fastPrev, err := fastView.At(bar - 1)
	if err != nil {
		return Decision{}, err
	}
	fastNow, err := fastView.At(bar)
	if err != nil {
		return Decision{}, err
	}
	slowPrev, err := slowView.At(bar - 1)
	if err != nil {
		return Decision{}, err
	}
	slowNow, err := slowView.At(bar)
	if err != nil {
		return Decision{}, err
	}

	if !feature.IsAvailable(fastPrev) || !feature.IsAvailable(slowPrev) ||
		!feature.IsAvailable(fastNow) || !feature.IsAvailable(slowNow) {
		return Decision{}, nil // warm-up
	}

	goldenCross := fastPrev <= slowPrev && fastNow > slowNow
	deathCross := fastPrev >= slowPrev && fastNow < slowNow

	switch {
	case goldenCross && s.stance < 1:
		delta := 1 - s.stance
		s.stance = 1
		return Decision{TargetDelta: delta, Diagnostic: "golden_cross"}, nil
	case deathCross && s.stance > 0:
		delta := -s.stance
		s.stance = 0
		return Decision{TargetDelta: delta, Diagnostic: "death_cross"}, nil
	}
	return Decision{}, nil
}

// momentumThreshold goes long when momentum exceeds +threshold, short
// below -threshold, flat in between.
type momentumThreshold struct {
	window    int
	threshold float64
	key       string
	stance    float64
}

func newMomentumThreshold(cfg domain.StrategyConfig) (Strategy, error) {
	window, ok := cfg.Params["window"]
	if !ok || window < 1 {
		return nil, fmt.Errorf("MOMENTUM_THRESHOLD requires a positive window param")
	}
	threshold, ok := cfg.Params["threshold"]
	if !ok || threshold < 0 {
		return nil, fmt.Errorf("MOMENTUM_THRESHOLD requires a non-negative threshold param")
	}
	return &momentumThreshold{
		window:    int(window),
		threshold: threshold,
		key:       feature.Key(domain.FeatureSpec{Name: "momentum", Params: map[string]float64{"window": window}}),
	}, nil
}

func (s *momentumThreshold) ID() string {
	return fmt.Sprintf("MOMENTUM_w%d_t%g", s.window, s.threshold)
}

func (s *momentumThreshold) OnBar(bar int, acc *Accessor) (Decision, error) {
	view, err := acc.Feature(s.key)
	if err != nil {
		return Decision{}, err
	}
	mom, err := view.At(bar)
	if err != nil {
		return Decision{}, err
	}
	if !feature.IsAvailable(mom) {
		return Decision{}, nil
	}

	var target float64
	switch {
	case mom > s.threshold:
		target = 1
	case mom < -s.threshold:
		target = -1
	}
	if target == s.stance {
		return Decision{}, nil
	}
	delta := target - s.stance
	s.stance = target
	return Decision{TargetDelta: delta, Diagnostic: fmt.Sprintf("momentum=%g", mom)}, nil
}

// buyHold enters a full long position on the first bar and holds.
type buyHold struct {
	entered bool
}

func newBuyHold(domain.StrategyConfig) (Strategy, error) {
	return &buyHold{}, nil
}

func (s *buyHold) ID() string {
	return "BUY_HOLD"
}

func (s *buyHold) OnBar(bar int, acc *Accessor) (Decision, error) {
	if s.entered {
		return Decision{}, nil
	}
	if _, err := acc.Close.At(bar); err != nil {
		return Decision{}, err
	}
	s.entered = true
	return Decision{TargetDelta: 1, Diagnostic: "initial_entry"}, nil
}
