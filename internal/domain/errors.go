package domain

import (
	"errors"
	"fmt"
)

// Shared sentinel errors.
var (
	// ErrBothAdaptersSet is returned when SpreadPct and
	// ParticipationRate are both configured.
	ErrBothAdaptersSet = errors.New("slippage adapters are mutually exclusive: both SpreadPct and ParticipationRate set")

	// ErrFenceBackward is returned when the causality guard fence is
	// advanced backward.
	ErrFenceBackward = errors.New("causality guard fence cannot move backward")
)

// ConfigError is a fatal, pre-execution configuration failure.
// No computation begins once a ConfigError is raised.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FutureAccessError reports a read past the causality fence.
// Fatal in Strict mode; counted in Permissive mode.
type FutureAccessError struct {
	Series string
	Index  int
	Fence  int
}

func (e *FutureAccessError) Error() string {
	return fmt.Sprintf("future access: series %q index %d is past fence %d", e.Series, e.Index, e.Fence)
}

// InsufficientDataError marks a validation method that cannot run on
// the given dataset. Fatal for that method only; the run continues and
// the method's result carries an explicit skipped marker.
type InsufficientDataError struct {
	Method ValidationMethod
	Reason string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: %s", e.Method, e.Reason)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsFutureAccess reports whether err is (or wraps) a FutureAccessError.
func IsFutureAccess(err error) bool {
	var fe *FutureAccessError
	return errors.As(err, &fe)
}

// IsInsufficientData reports whether err is (or wraps) an
// InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}
