// Package agelength implements the AgeLength/GrowthIncrement family
// (spec.md §3, §4.4): mean length and mean weight at age, per-(year,
// time step, age) CV, and the cumulative-normal machinery that converts
// an age-cohort's length distribution into bin probabilities for the
// age→length conversion subsystem.
package agelength

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is the shape assumed for the length-at-age distribution.
type Distribution int

const (
	// Normal assumes length-at-age is normally distributed.
	Normal Distribution = iota
	// Lognormal assumes length-at-age is lognormally distributed;
	// parameters are transformed into log-space before use, with
	// variance log(cv²+1).
	Lognormal
)

// AgeLength answers mean-length, mean-weight and CV queries for a
// category, keyed by time step and (for CV) model year.
type AgeLength interface {
	Label() string
	MeanLength(year int, timeStep string, age float64) float64
	CV(year int, timeStep string, age float64) float64
	Distribution() Distribution
}

// LengthWeight converts a mean length into a mean weight using the
// power-law relationship weight = a * length^b.
type LengthWeight struct {
	Label_ string
	A, B   float64
}

// MeanWeight returns a*length^b.
func (lw LengthWeight) MeanWeight(length float64) float64 {
	return lw.A * math.Pow(length, lw.B)
}

// VonBertalanffy is the classic three-parameter growth curve:
// length(age) = Linf * (1 - exp(-k*(age - t0))).
type VonBertalanffy struct {
	Label_ string
	Linf   float64
	K      float64
	T0     float64
	Dist   Distribution
	// CVs maps time step label to a constant CV used for every year
	// and age; a zero entry falls back to CVDefault.
	CVs      map[string]float64
	CVDefault float64
}

func (v VonBertalanffy) Label() string { return v.Label_ }

func (v VonBertalanffy) MeanLength(year int, timeStep string, age float64) float64 {
	return v.Linf * (1 - math.Exp(-v.K*(age-v.T0)))
}

func (v VonBertalanffy) CV(year int, timeStep string, age float64) float64 {
	if v.CVs != nil {
		if cv, ok := v.CVs[timeStep]; ok && cv != 0 {
			return cv
		}
	}
	return v.CVDefault
}

func (v VonBertalanffy) Distribution() Distribution { return v.Dist }

// DataPoint is one observed mean length at a given year and age.
type DataPoint struct {
	Year int
	Age  float64
	Mean float64
}

// DataSource is an AgeLength backed by an explicit table of observed
// mean lengths by year and age, rather than a parametric growth curve
// (CASAL2's "Data" age-length source).
//
// spec.md §9 flags that the original source computes, but never
// assigns, a linear interpolation between ages using
// time_step_proportion; this implementation performs that
// interpolation explicitly: MeanLength linearly interpolates between
// the mean length at floor(age) and ceil(age) in the given year,
// weighted by the fractional part of age (which callers derive from
// time_step_proportion before calling MeanLength).
type DataSource struct {
	Label_    string
	Dist      Distribution
	CVDefault float64
	// ByYear[year][age] = mean length, for integer ages.
	ByYear map[int]map[int]float64
}

func (d DataSource) Label() string { return d.Label_ }

// MeanLength keys only on year and age, matching the original table
// shape; timeStep is accepted for interface symmetry with the other
// AgeLength variants. Errors (missing year/age data) are swallowed to
// zero here to satisfy the AgeLength interface; callers that need the
// error should use MeanLengthAt directly.
func (d DataSource) MeanLength(year int, timeStep string, age float64) float64 {
	m, err := d.MeanLengthAt(year, age)
	if err != nil {
		return 0
	}
	return m
}

func (d DataSource) CV(year int, timeStep string, age float64) float64 {
	return d.CVDefault
}

func (d DataSource) Distribution() Distribution { return d.Dist }

// MeanLengthAt interpolates the mean length for year and a fractional
// age, resolving the ambiguous interpolation flagged in spec.md §9.
func (d DataSource) MeanLengthAt(year int, age float64) (float64, error) {
	table, ok := d.ByYear[year]
	if !ok {
		return 0, fmt.Errorf("agelength %q: no data for year %d", d.Label_, year)
	}
	lo := int(math.Floor(age))
	hi := lo + 1
	frac := age - float64(lo)

	loV, haveLo := table[lo]
	hiV, haveHi := table[hi]
	switch {
	case haveLo && haveHi:
		return loV + frac*(hiV-loV), nil
	case haveLo:
		return loV, nil
	case haveHi:
		return hiV, nil
	default:
		return 0, fmt.Errorf("agelength %q: no data for year %d age %v", d.Label_, year, age)
	}
}

// CumulativeNormal computes, for a cohort with the given mean length and
// CV, the probability that its length falls within each of the supplied
// bins (bins[i] is the lower edge of bin i; the last bin always extends
// to +∞ as a plus-group, and plusGroup does not change the result).
//
// legacyCASAL switches between the exact normal/lognormal CDF (false)
// and the historical CASAL approximation that clamps the lower tail of
// the first bin to zero probability mass below it (true), per spec.md
// §4.4.
func CumulativeNormal(mean, cv float64, dist Distribution, bins []float64, plusGroup bool, legacyCASAL bool) []float64 {
	n := len(bins)
	probs := make([]float64, n)
	if n == 0 {
		return probs
	}

	cdf := normalCDF
	mu, sigma := mean, cv*mean
	if dist == Lognormal {
		sigma2 := math.Log(cv*cv + 1)
		mu = math.Log(mean) - sigma2/2
		sigma = math.Sqrt(sigma2)
		cdf = func(x, mu, sigma float64) float64 {
			if x <= 0 {
				return 0
			}
			return normalCDF(math.Log(x), mu, sigma)
		}
	}
	if sigma <= 0 {
		// Degenerate distribution: all mass at the bin containing
		// mean.
		idx := n - 1
		for i := 0; i < n-1; i++ {
			if mean < bins[i+1] {
				idx = i
				break
			}
		}
		probs[idx] = 1
		return probs
	}

	edges := make([]float64, n+1)
	copy(edges[:n], bins)
	edges[n] = math.Inf(1)

	cum := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		if i == 0 && legacyCASAL {
			cum[i] = 0
			continue
		}
		if math.IsInf(edges[i], 1) {
			cum[i] = 1
			continue
		}
		cum[i] = cdf(edges[i], mu, sigma)
	}

	for i := 0; i < n; i++ {
		p := cum[i+1] - cum[i]
		if p < 0 {
			p = 0
		}
		probs[i] = p
	}
	if plusGroup && n > 0 {
		// The last bin already absorbs everything from its lower
		// edge to +∞.
	}
	return probs
}

func normalCDF(x, mu, sigma float64) float64 {
	return distuv.Normal{Mu: mu, Sigma: sigma}.CDF(x)
}

// ErrorMatrix is a square mis-classification matrix applied to an age
// distribution (CASAL2's AgeingError): Apply(n)[j] = Σ_i n[i]*M[i][j].
type ErrorMatrix struct {
	Label_ string
	M      [][]float64
}

// Apply returns the numbers-at-age vector after mis-classification.
func (e ErrorMatrix) Apply(n []float64) ([]float64, error) {
	size := len(e.M)
	if len(n) != size {
		return nil, fmt.Errorf("ageing error %q: expected %d ages, got %d", e.Label_, size, len(n))
	}
	out := make([]float64, size)
	for i, row := range e.M {
		if len(row) != size {
			return nil, fmt.Errorf("ageing error %q: row %d has %d columns, want %d", e.Label_, i, len(row), size)
		}
		for j, p := range row {
			out[j] += n[i] * p
		}
	}
	return out, nil
}
