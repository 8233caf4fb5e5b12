// Package derivedquantity implements per-year weighted sampling of the
// partition (spec.md §3, §4.2/§4.3): a configured subset of categories,
// ages and a selectivity are combined into a single scalar — typically
// spawning stock biomass — recorded once per model year at a
// configured point in the annual cycle.
//
// It implements process.SSBSource so a Beverton-Holt recruitment
// process can read the values it records.
package derivedquantity

import (
	"fmt"
	"sort"

	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

// Kind selects whether a derived quantity sums biomass (numbers ×
// weight) or raw abundance (numbers) across its categories.
type Kind int

const (
	Biomass Kind = iota
	Abundance
)

// DerivedQuantity samples a weighted scalar from a partition once per
// model year, at a configured (time step, proportion-through-step)
// point in the annual cycle.
type DerivedQuantity struct {
	Label_      string
	Kind        Kind
	Categories  []string
	Selectivity map[string]selectivity.Selectivity // category -> selectivity, nil means unweighted
	TimeStep    string

	// TimeStepProportion is the fractional point within TimeStep the
	// sample is taken at (0 = start, 1 = end). It is stored for
	// reporting only: Sample reads the partition exactly as passed and
	// does not interpolate between pre- and post-mortality state.
	TimeStepProportion float64

	values             map[int]float64
	lastInitialisation float64
	hasLastInit        bool
}

// New returns an empty derived quantity.
func New(label string, kind Kind, categories []string, timeStep string, proportion float64) *DerivedQuantity {
	return &DerivedQuantity{
		Label_:             label,
		Kind:               kind,
		Categories:         append([]string(nil), categories...),
		TimeStep:           timeStep,
		TimeStepProportion: proportion,
		values:             make(map[int]float64),
	}
}

// Label returns the derived quantity's registered name.
func (d *DerivedQuantity) Label() string { return d.Label_ }

// Sample computes the weighted scalar from p for the given year and
// records it. timeStep is provided so weight lookups key correctly
// against the category's per-time-step mean-weight cache.
func (d *DerivedQuantity) Sample(p *partition.Partition, year int, timeStep string) (float64, error) {
	var total float64
	for _, label := range d.Categories {
		c, err := p.Category(label)
		if err != nil {
			return 0, err
		}
		sel := d.Selectivity[label]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			n, err := c.At(age)
			if err != nil {
				return 0, err
			}
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			switch d.Kind {
			case Biomass:
				weight, ok := c.MeanWeight(timeStep, age)
				if !ok {
					return 0, fmt.Errorf("derived quantity %q: no mean weight cached for category %q, time step %q, age %d", d.Label_, label, timeStep, age)
				}
				total += n * weight * w
			case Abundance:
				total += n * w
			}
		}
	}
	d.values[year] = total
	return total, nil
}

// At returns the value recorded for year, if any.
func (d *DerivedQuantity) At(year int) (float64, bool) {
	v, ok := d.values[year]
	return v, ok
}

// RecordInitialisationValue stores the value produced at the end of the
// previously executed initialisation phase, used by recruitment when a
// requested year predates the model's first year.
func (d *DerivedQuantity) RecordInitialisationValue(v float64) {
	d.lastInitialisation = v
	d.hasLastInit = true
}

// LastInitialisationValue returns the value recorded by
// RecordInitialisationValue.
func (d *DerivedQuantity) LastInitialisationValue() (float64, bool) {
	return d.lastInitialisation, d.hasLastInit
}

// Years returns every recorded (year, value) pair's years, in
// ascending order, for reporting.
func (d *DerivedQuantity) Years() []int {
	years := make([]int, 0, len(d.values))
	for y := range d.values {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Reset clears every recorded value, ready for a fresh run.
func (d *DerivedQuantity) Reset() {
	d.values = make(map[int]float64)
	d.hasLastInit = false
	d.lastInitialisation = 0
}

// Clone returns an independent copy with its own recorded-values map,
// so sampling into a cloned model never writes back into the original.
func (d *DerivedQuantity) Clone() *DerivedQuantity {
	nd := *d
	nd.Categories = append([]string(nil), d.Categories...)
	nd.Selectivity = make(map[string]selectivity.Selectivity, len(d.Selectivity))
	for k, v := range d.Selectivity {
		nd.Selectivity[k] = v
	}
	nd.values = make(map[int]float64, len(d.values))
	for k, v := range d.values {
		nd.values[k] = v
	}
	return &nd
}

// Registry is an ordered, label-keyed collection of derived quantities.
type Registry struct {
	order []string
	byKey map[string]*DerivedQuantity
}

// NewRegistry returns an empty derived-quantity registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*DerivedQuantity)}
}

// Add registers d under its own label.
func (r *Registry) Add(d *DerivedQuantity) error {
	if _, ok := r.byKey[d.Label_]; ok {
		return fmt.Errorf("derived quantity %q: already registered", d.Label_)
	}
	r.byKey[d.Label_] = d
	r.order = append(r.order, d.Label_)
	return nil
}

// Get looks up a derived quantity by label.
func (r *Registry) Get(label string) (*DerivedQuantity, bool) {
	d, ok := r.byKey[label]
	return d, ok
}

// Labels returns the registered labels in insertion order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// Clone returns a registry of independently cloned derived quantities.
func (r *Registry) Clone() *Registry {
	nr := &Registry{order: append([]string(nil), r.order...), byKey: make(map[string]*DerivedQuantity, len(r.byKey))}
	for label, d := range r.byKey {
		nr.byKey[label] = d.Clone()
	}
	return nr
}
