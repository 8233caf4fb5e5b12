package likelihood

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DataWeight post-multiplies a comparison set's error values (or
// scores, for methods that operate after scoring) according to its own
// rule (spec.md §4.4 "Data weights (multiplicative, francis,
// dispersion, none)").
type DataWeight interface {
	Label() string
	Apply(comparisons []*Comparison) error
}

// NoDataWeight leaves every comparison's error value untouched.
type NoDataWeight struct{ Label_ string }

func (n NoDataWeight) Label() string                     { return n.Label_ }
func (n NoDataWeight) Apply(cs []*Comparison) error { return nil }

// MultiplicativeDataWeight scales every comparison's error value by a
// single configured multiplier.
type MultiplicativeDataWeight struct {
	Label_     string
	Multiplier float64
}

func (m MultiplicativeDataWeight) Label() string { return m.Label_ }
func (m MultiplicativeDataWeight) Apply(cs []*Comparison) error {
	for _, c := range cs {
		c.ErrorValue *= m.Multiplier
	}
	return nil
}

// DispersionDataWeight scales every comparison's error value by
// sqrt(Phi), an estimated overdispersion factor, matching CASAL2's
// "dispersion" method for count-based likelihoods.
type DispersionDataWeight struct {
	Label_ string
	Phi    float64
}

func (d DispersionDataWeight) Label() string { return d.Label_ }
func (d DispersionDataWeight) Apply(cs []*Comparison) error {
	if d.Phi <= 0 {
		return nil
	}
	scale := math.Sqrt(d.Phi)
	for _, c := range cs {
		c.ErrorValue *= scale
	}
	return nil
}

// FrancisDataWeight implements the Francis (2011) mean-effective-N
// reweighting method for composition data: the multiplier is the square
// root of the ratio of the expected (unit) variance to the observed
// variance of the standardised residuals (O-E)/ErrorValue across the
// comparison set, i.e. 1/sd, computed once per data-weight application
// and applied uniformly.
type FrancisDataWeight struct {
	Label_ string

	multiplier float64
	computed   bool
}

func (f *FrancisDataWeight) Label() string { return f.Label_ }

// Apply computes the Francis multiplier from the current comparison set
// the first time it is called, then applies that multiplier to every
// subsequent call's error values (mirroring CASAL2's behaviour of
// fixing the reweighting factor from an initial model run).
func (f *FrancisDataWeight) Apply(cs []*Comparison) error {
	if !f.computed {
		residuals := make([]float64, 0, len(cs))
		for _, c := range cs {
			if c.ErrorValue <= 0 {
				continue
			}
			residuals = append(residuals, (c.Observed-c.Expected)/c.ErrorValue)
		}
		if len(residuals) > 1 {
			variance := stat.Variance(residuals, nil)
			if variance > 0 {
				f.multiplier = 1 / math.Sqrt(variance)
			}
		}
		if f.multiplier == 0 {
			f.multiplier = 1
		}
		f.computed = true
	}
	for _, c := range cs {
		c.ErrorValue *= f.multiplier
	}
	return nil
}

// Reset clears the cached multiplier so the next Apply call
// recomputes it from a fresh comparison set.
func (f *FrancisDataWeight) Reset() {
	f.computed = false
	f.multiplier = 0
}
