// Package signal runs strategy logic under the causality guard and
// produces the signal timeline consumed by the execution simulator.
package signal

import (
	"errors"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/feature"
	"backtest-lab/internal/guard"
)

// Factory errors.
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
	ErrMissingFeature      = errors.New("strategy requires a feature that was not built")
)

// Decision is the per-bar strategy output.
type Decision struct {
	// TargetDelta is the change in desired exposure, in fractions of
	// equity (-1..1). Zero means no action.
	TargetDelta float64
	Diagnostic  string
}

// Strategy evaluates one bar at a time. Implementations read market
// data exclusively through the guarded accessor; raw series are never
// handed to a strategy.
type Strategy interface {
	// OnBar is invoked once per bar with the fence already advanced to
	// that bar.
	OnBar(bar int, acc *Accessor) (Decision, error)

	// ID returns the strategy identifier including parameters.
	ID() string
}

// Accessor bundles the guarded views a strategy may read.
type Accessor struct {
	Close    *guard.SeriesView
	features map[string]*guard.SeriesView
}

// NewAccessor builds the guarded accessor for one run. All views share
// the run's single guard instance.
func NewAccessor(g *guard.Guard, series *domain.Series, features *feature.Set) *Accessor {
	acc := &Accessor{
		Close:    g.View("close", series.Close),
		features: make(map[string]*guard.SeriesView, len(features.Names)),
	}
	for _, name := range features.Names {
		acc.features[name] = g.View(name, features.Series[name])
	}
	return acc
}

// Feature returns the guarded view for a built feature key.
func (a *Accessor) Feature(key string) (*guard.SeriesView, error) {
	view, ok := a.features[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingFeature, key)
	}
	return view, nil
}

// strategyFactory builds a strategy from its config. The registry is
// an explicit table populated at process start; no reflection.
type strategyFactory func(cfg domain.StrategyConfig) (Strategy, error)

var strategyRegistry = map[string]strategyFactory{
	StrategyTypeMACross:  newMACross,
	StrategyTypeMomentum: newMomentumThreshold,
	StrategyTypeBuyHold:  newBuyHold,
}

// Strategy type keys.
const (
	StrategyTypeMACross  = "MA_CROSS"
	StrategyTypeMomentum = "MOMENTUM_THRESHOLD"
	StrategyTypeBuyHold  = "BUY_HOLD"
)

// FromConfig creates a Strategy from its config, validating required
// parameters per type.
func FromConfig(cfg domain.StrategyConfig) (Strategy, error) {
	factory, ok := strategyRegistry[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategyType, cfg.Type)
	}
	return factory(cfg)
}

// RequiredFeatures returns the feature specs a strategy config needs,
// so callers can verify the run config builds them.
func RequiredFeatures(cfg domain.StrategyConfig, shift bool) []domain.FeatureSpec {
	switch cfg.Type {
	case StrategyTypeMACross:
		return []domain.FeatureSpec{
			{Name: "sma", Version: "1", Params: map[string]float64{"window": cfg.Params["fast"]}, ShiftApplied: shift},
			{Name: "sma", Version: "1", Params: map[string]float64{"window": cfg.Params["slow"]}, ShiftApplied: shift},
		}
	case StrategyTypeMomentum:
		return []domain.FeatureSpec{
			{Name: "momentum", Version: "1", Params: map[string]float64{"window": cfg.Params["window"]}, ShiftApplied: shift},
		}
	default:
		return nil
	}
}
