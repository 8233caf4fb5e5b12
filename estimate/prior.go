package estimate

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Prior scores a natural-scale value under a configured prior
// distribution, returning -log P(value) (spec.md §4.5 "Each returns a
// -logP score; they are summed into the objective").
//
// Evaluated with gonum.org/v1/gonum/stat/distuv, following the
// teacher's own use of that package for parametric distributions
// (cats.Gamma/cats.LogNormal).
type Prior interface {
	Label() string
	NegLogDensity(natural float64) float64
}

// UniformPrior is flat over [Lower,Upper] and scores +Inf outside it.
type UniformPrior struct {
	Label_ string
	Lower  float64
	Upper  float64
}

func (u UniformPrior) Label() string { return u.Label_ }
func (u UniformPrior) NegLogDensity(v float64) float64 {
	d := distuv.Uniform{Min: u.Lower, Max: u.Upper}
	p := d.Prob(v)
	if p <= 0 {
		return math.Inf(1)
	}
	return -math.Log(p)
}

// UniformLogPrior is flat over log(natural) between log(Lower) and
// log(Upper).
type UniformLogPrior struct {
	Label_ string
	Lower  float64
	Upper  float64
}

func (u UniformLogPrior) Label() string { return u.Label_ }
func (u UniformLogPrior) NegLogDensity(v float64) float64 {
	if v <= 0 {
		return math.Inf(1)
	}
	d := distuv.Uniform{Min: math.Log(u.Lower), Max: math.Log(u.Upper)}
	p := d.Prob(math.Log(v))
	if p <= 0 {
		return math.Inf(1)
	}
	// Jacobian of the log transform: d(log v)/dv = 1/v.
	return -math.Log(p) + math.Log(v)
}

// NormalPrior scores v under Normal(Mu, Sigma).
type NormalPrior struct {
	Label_ string
	Mu     float64
	Sigma  float64
}

func (n NormalPrior) Label() string { return n.Label_ }
func (n NormalPrior) NegLogDensity(v float64) float64 {
	d := distuv.Normal{Mu: n.Mu, Sigma: n.Sigma}
	return -math.Log(d.Prob(v))
}

// NormalByStdevPrior scores v under Normal(Mu, Stdev), the same density
// NormalPrior computes (whose Sigma is also a standard deviation), kept
// as a distinct label to match CASAL2's two normal-prior spellings.
type NormalByStdevPrior struct {
	Label_ string
	Mu     float64
	Stdev  float64
}

func (n NormalByStdevPrior) Label() string { return n.Label_ }
func (n NormalByStdevPrior) NegLogDensity(v float64) float64 {
	d := distuv.Normal{Mu: n.Mu, Sigma: n.Stdev}
	return -math.Log(d.Prob(v))
}

// LognormalPrior scores v, which must be positive, under a lognormal
// distribution parameterised by the mean and CV of the natural-scale
// quantity.
type LognormalPrior struct {
	Label_ string
	Mean   float64
	CV     float64
}

func (l LognormalPrior) Label() string { return l.Label_ }
func (l LognormalPrior) NegLogDensity(v float64) float64 {
	if v <= 0 {
		return math.Inf(1)
	}
	sigma2 := math.Log(l.CV*l.CV + 1)
	mu := math.Log(l.Mean) - sigma2/2
	d := distuv.LogNormal{Mu: mu, Sigma: math.Sqrt(sigma2)}
	return -math.Log(d.Prob(v))
}

// BetaPrior scores v, constrained to (0,1), under Beta(Alpha,Beta).
type BetaPrior struct {
	Label_ string
	Alpha  float64
	Beta   float64
}

func (b BetaPrior) Label() string { return b.Label_ }
func (b BetaPrior) NegLogDensity(v float64) float64 {
	d := distuv.Beta{Alpha: b.Alpha, Beta: b.Beta}
	p := d.Prob(v)
	if p <= 0 {
		return math.Inf(1)
	}
	return -math.Log(p)
}
