package partition

import (
	"fmt"

	"github.com/fishmodel/asa/agelength"
	"github.com/fishmodel/asa/modelerr"
	"github.com/fishmodel/asa/selectivity"
)

// Accessor provides read and write access to a declared subset of a
// Partition's categories, plus a cached view representing the state at
// the start of the current time step (spec.md §4.1).
type Accessor struct {
	p      *Partition
	labels []string
	cached map[string]*Category
}

// Init acquires the set of categories the accessor will operate on, in
// a fixed iteration order matching labels. Looking up an unknown label
// is a fatal configuration error.
func Init(p *Partition, labels []string) (*Accessor, error) {
	a := &Accessor{p: p, labels: append([]string(nil), labels...)}
	for _, l := range labels {
		if _, err := p.Category(l); err != nil {
			return nil, modelerr.Configuration("partition accessor", err)
		}
	}
	return a, nil
}

// Labels returns the category labels this accessor operates on.
func (a *Accessor) Labels() []string {
	return append([]string(nil), a.labels...)
}

// BuildCache clones the current data vectors of the accessor's
// categories into the cached view. The cached view is only valid until
// the next BuildCache call.
func (a *Accessor) BuildCache() {
	a.cached = make(map[string]*Category, len(a.labels))
	for _, l := range a.labels {
		c, _ := a.p.Category(l)
		a.cached[l] = c.Clone()
	}
}

// Category returns the current (live) category for label.
func (a *Accessor) Category(label string) (*Category, error) {
	return a.p.Category(label)
}

// Cached returns the start-of-time-step snapshot for label. It is an
// error to call this before BuildCache has run at least once this time
// step.
func (a *Accessor) Cached(label string) (*Category, error) {
	if a.cached == nil {
		return nil, fmt.Errorf("partition accessor: BuildCache has not been called")
	}
	c, ok := a.cached[label]
	if !ok {
		return nil, modelerr.Configurationf("partition accessor: unknown category %q", label)
	}
	return c, nil
}

// AgeLengthSource supplies the AgeLength used to build a category's
// age-length matrix, resolved by the Model's registry (the accessor
// itself holds only weak, label-keyed references per spec.md §3
// ownership rules).
type AgeLengthSource func(categoryLabel string) (agelength.AgeLength, error)

// UpdateAgeLengthData fills an age×length matrix per category using
// each category's AgeLength and CV at (year, timeStep), converting the
// per-age length distribution into probabilities over lengthBins via
// agelength.CumulativeNormal.
func (a *Accessor) UpdateAgeLengthData(year int, timeStep string, lengthBins []float64, plusGroup, legacyCASAL bool, sel selectivity.Selectivity, source AgeLengthSource) error {
	for _, l := range a.labels {
		c, err := a.p.Category(l)
		if err != nil {
			return err
		}
		al, err := source(l)
		if err != nil {
			return err
		}
		for age := c.MinAge; age <= c.MaxAge; age++ {
			mean := al.MeanLength(year, timeStep, float64(age))
			cv := al.CV(year, timeStep, float64(age))
			row := agelength.CumulativeNormal(mean, cv, al.Distribution(), lengthBins, plusGroup, legacyCASAL)
			if sel != nil {
				w := sel.At(float64(age))
				for i := range row {
					row[i] *= w
				}
			}
			if err := c.SetAgeLengthRow(age, row); err != nil {
				return err
			}
			c.SetMeanLength(timeStep, age, mean)
			c.SetCV(year, timeStep, age, cv)
		}
	}
	return nil
}

// CollapseAgeLengthToLength sums each length column of the built
// age-length matrices into a per-category numbers-at-length vector,
// weighted by the category's current numbers-at-age.
func (a *Accessor) CollapseAgeLengthToLength(numBins int) (map[string][]float64, error) {
	out := make(map[string][]float64, len(a.labels))
	for _, l := range a.labels {
		c, err := a.p.Category(l)
		if err != nil {
			return nil, err
		}
		col := make([]float64, numBins)
		for age := c.MinAge; age <= c.MaxAge; age++ {
			row, err := c.AgeLengthRow(age)
			if err != nil {
				return nil, err
			}
			n, _ := c.At(age)
			for i, p := range row {
				if i >= numBins {
					break
				}
				col[i] += n * p
			}
		}
		out[l] = col
	}
	return out, nil
}
