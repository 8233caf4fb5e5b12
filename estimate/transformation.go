package estimate

import "math"

// Transformation maps a natural-scale estimate value onto the scale a
// minimiser actually searches over, and back (spec.md §4.5
// "Transformation is applied when the minimiser reads/writes; inverse
// transform restores the natural-scale value before any partition
// execution").
type Transformation interface {
	Label() string
	Transform(natural float64) float64
	Untransform(transformed float64) float64
}

// Identity searches the natural scale directly.
type Identity struct{}

func (Identity) Label() string                    { return "identity" }
func (Identity) Transform(v float64) float64       { return v }
func (Identity) Untransform(v float64) float64     { return v }

// Log searches log(natural); natural must stay positive.
type Log struct{}

func (Log) Label() string                { return "log" }
func (Log) Transform(v float64) float64   { return math.Log(v) }
func (Log) Untransform(v float64) float64 { return math.Exp(v) }

// Inverse searches 1/natural; natural must stay non-zero.
type Inverse struct{}

func (Inverse) Label() string                { return "inverse" }
func (Inverse) Transform(v float64) float64   { return 1 / v }
func (Inverse) Untransform(v float64) float64 { return 1 / v }

// SquareRoot searches sqrt(natural); natural must stay non-negative.
type SquareRoot struct{}

func (SquareRoot) Label() string                { return "square_root" }
func (SquareRoot) Transform(v float64) float64   { return math.Sqrt(v) }
func (SquareRoot) Untransform(v float64) float64 { return v * v }

// LogOdds searches logit(natural), for a natural value constrained to
// (0,1).
type LogOdds struct{}

func (LogOdds) Label() string { return "log_odds" }
func (LogOdds) Transform(v float64) float64 {
	return math.Log(v / (1 - v))
}
func (LogOdds) Untransform(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}
