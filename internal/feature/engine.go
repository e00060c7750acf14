// Package feature builds named indicator series from a dataset and
// applies the one-bar causal shift. Building a feature set is a pure
// function of (series, specs); the same inputs always produce the same
// output bytes.
package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"backtest-lab/internal/domain"
)

// Registry errors.
var (
	ErrUnknownIndicator = errors.New("unknown indicator")
)

// builderFunc computes a raw indicator series from the dataset.
type builderFunc func(series *domain.Series, params map[string]float64) ([]float64, error)

// registry maps stable indicator keys to typed factory functions.
// Populated once at process start; no reflection-based discovery.
var registry = map[string]builderFunc{
	"sma":      buildSMA,
	"ema":      buildEMA,
	"momentum": buildMomentum,
	"vol":      buildRollingVol,
}

// RegisteredIndicators returns the sorted registry keys.
func RegisteredIndicators() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set is one built feature set: named series aligned to the dataset's
// time index.
type Set struct {
	Names  []string             // insertion order, one per spec
	Series map[string][]float64 // keyed by spec key
}

// Key returns the unique series key for a spec: name plus sorted
// params, so two windows of the same indicator coexist.
func Key(spec domain.FeatureSpec) string {
	key := spec.Name
	params := make([]string, 0, len(spec.Params))
	for name := range spec.Params {
		params = append(params, name)
	}
	sort.Strings(params)
	for _, name := range params {
		key += fmt.Sprintf("_%s%g", name, spec.Params[name])
	}
	return key
}

// Build computes every requested feature and, when a FeatureSpec carries
// ShiftApplied, shifts values forward by exactly one bar: the value
// computed at bar i becomes available at bar i+1, and bar 0 holds the
// explicit unavailable sentinel.
func Build(series *domain.Series, specs []domain.FeatureSpec) (*Set, error) {
	set := &Set{
		Names:  make([]string, 0, len(specs)),
		Series: make(map[string][]float64, len(specs)),
	}

	for _, spec := range specs {
		build, ok := registry[spec.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, spec.Name)
		}
		values, err := build(series, spec.Params)
		if err != nil {
			return nil, fmt.Errorf("build feature %q: %w", spec.Name, err)
		}
		if spec.ShiftApplied {
			values = ShiftForward(values)
		}

		key := Key(spec)
		set.Names = append(set.Names, key)
		set.Series[key] = values
	}

	return set, nil
}

// ShiftForward moves every value one bar later and marks bar 0 as
// unavailable. The sentinel is NaN, never a guessed value.
func ShiftForward(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(out) == 0 {
		return out
	}
	out[0] = math.NaN()
	copy(out[1:], values[:len(values)-1])
	return out
}

// IsAvailable reports whether a feature value is usable (not the
// unavailable sentinel).
func IsAvailable(v float64) bool {
	return !math.IsNaN(v)
}

func windowParam(params map[string]float64, spec string) (int, error) {
	w, ok := params["window"]
	if !ok {
		return 0, fmt.Errorf("%s requires a window param", spec)
	}
	if w < 1 || w != math.Trunc(w) {
		return 0, fmt.Errorf("%s window must be a positive integer, got %g", spec, w)
	}
	return int(w), nil
}

func buildSMA(series *domain.Series, params map[string]float64) ([]float64, error) {
	w, err := windowParam(params, "sma")
	if err != nil {
		return nil, err
	}
	return SMA(series.Close, w), nil
}

func buildEMA(series *domain.Series, params map[string]float64) ([]float64, error) {
	w, err := windowParam(params, "ema")
	if err != nil {
		return nil, err
	}
	return EMA(series.Close, w), nil
}

func buildMomentum(series *domain.Series, params map[string]float64) ([]float64, error) {
	w, err := windowParam(params, "momentum")
	if err != nil {
		return nil, err
	}
	return Momentum(series.Close, w), nil
}

func buildRollingVol(series *domain.Series, params map[string]float64) ([]float64, error) {
	w, err := windowParam(params, "vol")
	if err != nil {
		return nil, err
	}
	return RollingVol(series.Close, w), nil
}
