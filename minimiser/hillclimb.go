package minimiser

import "math"

// HillClimb is the default Minimiser, a direct generalisation of the
// teacher's lambda search (cmd/phygeo/diff/ml: bestRec/first/search)
// from a single scalar to an arbitrary-length vector: each parameter is
// searched independently, one step up or down at the current step
// size, keeping whichever improves the score; the step size halves
// after every outer cycle that finds no improving step, until it falls
// below the tolerance.
type HillClimb struct {
	// InitialStep is the starting step size on the transformed scale,
	// the teacher's stepFlag (default 100 there; callers of this
	// package pick a value appropriate to their own transformed
	// scales).
	InitialStep float64
}

func (h HillClimb) Label() string { return "hill-climb" }

// Minimise runs the halving-step coordinate search. It stops when the
// step size drops below tolerance (StepTooSmall is reported only if no
// improving step was taken at any point in the run; otherwise a
// converged run reports Success), or when maxIterations evaluator
// calls have been spent (TooManyIterations).
func (h HillClimb) Minimise(start []float64, eval Evaluator, tolerance float64, maxIterations int) (Result, error) {
	if err := validateStart(start); err != nil {
		return Result{}, err
	}
	n := len(start)
	values := append([]float64(nil), start...)

	best, err := eval(values)
	if err != nil {
		return Result{Status: LocalInfeasibility, Values: values}, nil
	}
	iterations := 1

	step := h.InitialStep
	if step <= 0 {
		step = 1
	}

	anyImprovementEver := false
	for step > tolerance {
		improvedThisCycle := false
		for i := 0; i < n; i++ {
			if iterations >= maxIterations {
				return Result{
					Values:     values,
					Covariance: identityCovariance(n),
					Iterations: iterations,
					Status:     TooManyIterations,
					Score:      best,
				}, nil
			}

			// Try up.
			trial := append([]float64(nil), values...)
			trial[i] += step
			score, err := eval(trial)
			iterations++
			if err == nil && score < best {
				best = score
				values = trial
				improvedThisCycle = true
				anyImprovementEver = true
				continue
			}

			if iterations >= maxIterations {
				return Result{
					Values:     values,
					Covariance: identityCovariance(n),
					Iterations: iterations,
					Status:     TooManyIterations,
					Score:      best,
				}, nil
			}

			// Try down.
			trial = append([]float64(nil), values...)
			trial[i] -= step
			score, err = eval(trial)
			iterations++
			if err == nil && score < best {
				best = score
				values = trial
				improvedThisCycle = true
				anyImprovementEver = true
			}
		}
		if !improvedThisCycle {
			step /= 2
		}
	}

	status := Success
	if !anyImprovementEver {
		status = StepTooSmall
	}
	return Result{
		Values:     values,
		Covariance: identityCovariance(n),
		Iterations: iterations,
		Status:     status,
		Score:      best,
	}, nil
}

// finiteDifferenceHessianDiag is a cheap curvature estimate along each
// coordinate, a sharper covariance seed than the identity fallback
// without a full Hessian; nothing in the module calls it.
func finiteDifferenceHessianDiag(values []float64, eval Evaluator, centre float64, h float64) []float64 {
	diag := make([]float64, len(values))
	for i := range values {
		up := append([]float64(nil), values...)
		up[i] += h
		down := append([]float64(nil), values...)
		down[i] -= h
		su, errU := eval(up)
		sd, errD := eval(down)
		if errU != nil || errD != nil {
			diag[i] = 1
			continue
		}
		d2 := (su - 2*centre + sd) / (h * h)
		if d2 <= 0 || math.IsNaN(d2) || math.IsInf(d2, 0) {
			diag[i] = 1
			continue
		}
		diag[i] = 1 / d2
	}
	return diag
}
