// Package minimiser implements the Minimiser contract of spec.md §4.6:
// given a list of enabled (transformed) parameter values, an evaluator
// that sets them, runs a full iteration and returns the objective
// score, a tolerance and an iteration cap, search for the values that
// minimise the score.
package minimiser

import "fmt"

// Status is the outcome enum spec.md §4.6 names: "success,
// step-too-small, too-many-iterations, local-infeasibility, error".
type Status int

const (
	Success Status = iota
	StepTooSmall
	TooManyIterations
	LocalInfeasibility
	Error
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case StepTooSmall:
		return "step-too-small"
	case TooManyIterations:
		return "too-many-iterations"
	case LocalInfeasibility:
		return "local-infeasibility"
	case Error:
		return "error"
	}
	return "unknown"
}

// Evaluator sets the given transformed-scale values onto the model's
// enabled estimates, runs a full partition iteration, and returns the
// resulting objective score. A non-nil error signals the values were
// infeasible (e.g. violated bounds once untransformed).
type Evaluator func(values []float64) (score float64, err error)

// Result is what a Minimiser run produces: the final transformed-scale
// values, an approximate covariance matrix (row-major, n*n), the
// iteration count actually used, and the outcome status.
type Result struct {
	Values     []float64
	Covariance [][]float64
	Iterations int
	Status     Status
	Score      float64
}

// Minimiser is the shared contract every minimiser variant implements.
type Minimiser interface {
	Label() string
	Minimise(start []float64, eval Evaluator, tolerance float64, maxIterations int) (Result, error)
}

// identityCovariance returns an n*n identity matrix, the fallback
// covariance approximation when a minimiser cannot estimate curvature
// directly.
func identityCovariance(n int) [][]float64 {
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		cov[i][i] = 1
	}
	return cov
}

func validateStart(start []float64) error {
	if len(start) == 0 {
		return fmt.Errorf("minimiser: at least one estimate is required")
	}
	return nil
}
