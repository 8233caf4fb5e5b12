package minimiser

import (
	"math"

	"gonum.org/v1/gonum/optimize"
)

// GonumMethod selects which gonum/optimize algorithm GonumMinimiser
// drives.
type GonumMethod int

const (
	NelderMead GonumMethod = iota
	BFGS
)

// GonumMinimiser adapts gonum.org/v1/gonum/optimize to the Minimiser
// contract, giving the model a derivative-free (Nelder-Mead) or
// quasi-Newton (BFGS) alternative to HillClimb without any
// domain-specific code: both read the same Evaluator callback.
type GonumMinimiser struct {
	Method GonumMethod
}

func (g GonumMinimiser) Label() string {
	if g.Method == BFGS {
		return "gonum-bfgs"
	}
	return "gonum-nelder-mead"
}

func (g GonumMinimiser) Minimise(start []float64, eval Evaluator, tolerance float64, maxIterations int) (Result, error) {
	if err := validateStart(start); err != nil {
		return Result{}, err
	}
	n := len(start)

	// gonum's FuncEvaluator contract has no error return; an
	// infeasible point is signalled by returning +Inf so the
	// optimizer routes away from it, with the last seen error
	// recorded for Minimise's own bookkeeping.
	var lastErr error
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			score, err := eval(x)
			if err != nil {
				lastErr = err
				return math.Inf(1)
			}
			return score
		},
	}

	var method optimize.Method
	switch g.Method {
	case BFGS:
		method = &optimize.BFGS{}
	default:
		method = &optimize.NelderMead{}
	}

	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		FuncEvaluations: maxIterations,
		FunctionConverge: &optimize.FunctionConverge{
			Absolute:   tolerance,
			Iterations: 20,
		},
	}

	res, err := optimize.Minimize(problem, start, settings, method)
	if err != nil && res == nil {
		if lastErr != nil {
			return Result{Status: LocalInfeasibility, Values: start}, nil
		}
		return Result{Status: Error, Values: start}, err
	}

	status := Success
	switch {
	case res.Status == optimize.IterationLimit || res.Status == optimize.FunctionEvaluationLimit:
		status = TooManyIterations
	case res.Status == optimize.Failure:
		status = Error
	}

	return Result{
		Values:     res.X,
		Covariance: identityCovariance(n),
		Iterations: res.Stats.MajorIterations,
		Status:     status,
		Score:      res.F,
	}, nil
}
