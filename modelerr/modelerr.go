// Package modelerr defines the error taxonomy shared by every package in
// the model: configuration errors, parameter-bound violations, and
// numerical errors.
//
// Configuration and numerical errors are always fatal; callers should
// propagate them to the top-level run and abort, per the error
// handling design in the model specification.
package modelerr

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the broad class of a failure. Use
// errors.Is against these to route a wrapped error to the right exit
// code without string matching.
var (
	// ErrConfiguration marks a schema violation or cross-reference
	// failure detected during validate/build. Always fatal before
	// any execution.
	ErrConfiguration = errors.New("configuration error")

	// ErrBounds marks an estimate write that would violate its
	// declared bounds.
	ErrBounds = errors.New("parameter bounds error")

	// ErrNumerical marks a negative partition value, a non-positive
	// variance, or a failed Cholesky factorisation.
	ErrNumerical = errors.New("numerical error")
)

// Configuration wraps err as a configuration error with context.
func Configuration(context string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{context: context, cause: err, sentinel: ErrConfiguration}
}

// Configurationf builds a configuration error from a format string.
func Configurationf(format string, args ...any) error {
	return &wrapped{context: sprintf(format, args...), sentinel: ErrConfiguration}
}

// Bounds wraps err as a parameter-bounds error.
func Bounds(context string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{context: context, cause: err, sentinel: ErrBounds}
}

// Boundsf builds a parameter-bounds error from a format string.
func Boundsf(format string, args ...any) error {
	return &wrapped{context: sprintf(format, args...), sentinel: ErrBounds}
}

// Numerical wraps err as a numerical error.
func Numerical(context string, err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{context: context, cause: err, sentinel: ErrNumerical}
}

// Numericalf builds a numerical error from a format string.
func Numericalf(format string, args ...any) error {
	return &wrapped{context: sprintf(format, args...), sentinel: ErrNumerical}
}

type wrapped struct {
	context  string
	cause    error
	sentinel error
}

func (w *wrapped) Error() string {
	if w.cause == nil {
		return w.context
	}
	return w.context + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() error {
	if w.cause != nil {
		return errors.Join(w.sentinel, w.cause)
	}
	return w.sentinel
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
