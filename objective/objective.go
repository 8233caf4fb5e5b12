// Package objective implements the objective function spec.md §4.5
// sums: observation (likelihood) scores, estimate prior scores,
// additional (standalone) prior scores, and process penalties.
package objective

import (
	"github.com/fishmodel/asa/estimate"
	"github.com/fishmodel/asa/penalty"
)

// ObservationScorer is anything that can report its total score once
// calculate_score has run, decoupling objective from the concrete
// observation type (spec.md §4.4).
type ObservationScorer interface {
	Label() string
	TotalScore() float64
}

// AdditionalPrior is a standalone penalty-like prior not tied to any
// estimate (spec.md §4.5 "additional_prior_scores").
type AdditionalPrior interface {
	Label() string
	NegLogDensity() float64
}

// Breakdown is the per-component decomposition of one objective
// evaluation, matching the fields spec.md §6 names for a report:
// {iteration, score, likelihood, prior, penalty, additional_priors}.
type Breakdown struct {
	Iteration         int
	Score             float64
	Likelihood        float64
	Prior             float64
	Penalty           float64
	AdditionalPriors  float64

	PerObservation map[string]float64
	PerEstimate    map[string]float64
	PerPenalty     map[string]float64
}

// Objective sums an observation set, an estimate registry's priors, a
// set of additional priors, and a penalty registry into one scalar
// score, recomputed after every full partition iteration (spec.md
// §4.5).
type Objective struct {
	Observations     []ObservationScorer
	Estimates        *estimate.Registry
	AdditionalPriors []AdditionalPrior
	Penalties        *penalty.Registry

	iteration int
}

// New returns an empty Objective; callers append to Observations and
// AdditionalPriors and assign Estimates/Penalties directly.
func New(estimates *estimate.Registry, penalties *penalty.Registry) *Objective {
	return &Objective{Estimates: estimates, Penalties: penalties}
}

// Evaluate sums every component and returns the full breakdown.
// spec.md §4.5: "score = Σ obs_scores + Σ prior_scores +
// Σ additional_prior_scores + Σ process_penalties."
func (o *Objective) Evaluate() Breakdown {
	o.iteration++
	b := Breakdown{
		Iteration:      o.iteration,
		PerObservation: make(map[string]float64, len(o.Observations)),
		PerEstimate:    make(map[string]float64),
		PerPenalty:     make(map[string]float64),
	}

	for _, obs := range o.Observations {
		s := obs.TotalScore()
		b.PerObservation[obs.Label()] = s
		b.Likelihood += s
	}

	if o.Estimates != nil {
		for _, label := range o.Estimates.Labels() {
			e, _ := o.Estimates.Get(label)
			s := e.PriorScore()
			b.PerEstimate[label] = s
			b.Prior += s
		}
	}

	for _, p := range o.AdditionalPriors {
		b.AdditionalPriors += p.NegLogDensity()
	}

	if o.Penalties != nil {
		for _, label := range o.Penalties.Labels() {
			pen, _ := o.Penalties.Get(label)
			v := pen.Value()
			b.PerPenalty[label] = v
			b.Penalty += v
		}
	}

	b.Score = b.Likelihood + b.Prior + b.AdditionalPriors + b.Penalty
	return b
}

// Reset clears the iteration counter, used between independent
// minimiser/MCMC runs.
func (o *Objective) Reset() {
	o.iteration = 0
}
