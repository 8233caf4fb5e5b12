// Package observation implements the Observation/Accessor contract
// spec.md §4.4 describes: a configured year-set, time step, category
// and selectivity collection scores a vector of Comparison records
// against a likelihood every time its observed time step completes.
//
// The pre_execute/execute/calculate_score three-step shape follows the
// same "snapshot, then compute, then score" ordering the Annual-Cycle
// Engine (cycle.Engine) uses for hooks fired around a process
// execution: build_cache snapshots the categories an observation reads
// (mirroring partition.Partition.Clone's use elsewhere for the
// initialisation algorithm's snapshot/restore steps), execute computes
// the comparisons, calculate_score hands them to a likelihood.
package observation

import (
	"fmt"
	"sort"

	"github.com/fishmodel/asa/agelength"
	"github.com/fishmodel/asa/likelihood"
	"github.com/fishmodel/asa/objective"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/rng"
	"github.com/fishmodel/asa/selectivity"
)

// Kind distinguishes a single-series index observation (e.g. a
// biomass survey, scored independently per bin) from a
// proportions-at-age/length observation scored jointly across bins,
// renormalised to sum to one (spec.md §4.4).
type Kind int

const (
	Index Kind = iota
	Proportion
)

// Structure selects whether an observation's bins are ages (read
// directly from a category's numbers-at-age) or length bins (read by
// converting each age's numbers through an AgeLength source, spec.md
// §4.4 "Age-length conversion").
type Structure int

const (
	AgeStructure Structure = iota
	LengthStructure
)

// Bin identifies one comparison's position: Age for an
// age-structured observation, LengthIndex (an index into LengthBins)
// for a length-structured one.
type Bin struct {
	Age         int
	LengthIndex int
}

// Record is one configured data point: the observed value and its
// error statistics at a given (year, bin).
type Record struct {
	Year         int
	Bin          Bin
	Observed     float64
	ErrorValue   float64
	ProcessError float64
	N            float64
}

// Observation is the shared contract every configured observation
// implements: a year-set, time step, category/selectivity collection
// and likelihood, producing Comparison records each time its time step
// completes and scoring them (spec.md §4.4).
type Observation struct {
	Label_      string
	Kind        Kind
	Structure   Structure
	Categories  []string
	Selectivity map[string]string // category -> selectivity label
	Resolve     func(label string) (selectivity.Selectivity, error)

	// AgeLengths supplies the growth source per category, used only
	// when Structure == LengthStructure.
	AgeLengths   map[string]agelength.AgeLength
	LengthBins   []float64
	PlusGroupBin bool
	LegacyCASAL  bool

	TimeStep string
	Years    map[int]bool

	// Delta replaces an expected proportion that falls below
	// Tolerance, guarding the likelihood against a zero expected value
	// (spec.md §4.4, the CASAL2-style robustification constant).
	Delta     float64
	Tolerance float64

	Likelihood likelihood.Likelihood
	DataWeight likelihood.DataWeight

	// Data is every configured (year, bin) observation, supplied by
	// configuration.
	Data []Record

	accessor    *partition.Accessor
	comparisons map[int][]*likelihood.Comparison
	totalScore  float64
}

func (o *Observation) Label() string       { return o.Label_ }
func (o *Observation) TotalScore() float64 { return o.totalScore }

func (o *Observation) active(year int) bool {
	if o.Years == nil {
		return true
	}
	return o.Years[year]
}

// PreExecute acquires an Accessor over the configured categories and
// triggers its build_cache step, snapshotting the start-of-time-step
// view (spec.md §4.1 "pre_execute() triggers build_cache() on the
// accessor").
func (o *Observation) PreExecute(p *partition.Partition) error {
	acc, err := partition.Init(p, o.Categories)
	if err != nil {
		return err
	}
	acc.BuildCache()
	o.accessor = acc
	return nil
}

// Cached returns the start-of-time-step snapshot PreExecute captured
// for label, or an error if PreExecute has not run.
func (o *Observation) Cached(label string) (*partition.Category, error) {
	if o.accessor == nil {
		return nil, fmt.Errorf("observation %q: PreExecute has not run", o.Label_)
	}
	return o.accessor.Cached(label)
}

func (o *Observation) resolveSel(label string) (selectivity.Selectivity, error) {
	if label == "" || o.Resolve == nil {
		return nil, nil
	}
	return o.Resolve(label)
}

func (o *Observation) resolveSelectivities() (map[string]selectivity.Selectivity, error) {
	sels := make(map[string]selectivity.Selectivity, len(o.Categories))
	for _, label := range o.Categories {
		sel, err := o.resolveSel(o.Selectivity[label])
		if err != nil {
			return nil, err
		}
		sels[label] = sel
	}
	return sels, nil
}

func (o *Observation) recordsForYear(year int) []Record {
	var out []Record
	for _, r := range o.Data {
		if r.Year == year {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bin.Age != out[j].Bin.Age {
			return out[i].Bin.Age < out[j].Bin.Age
		}
		return out[i].Bin.LengthIndex < out[j].Bin.LengthIndex
	})
	return out
}

func (o *Observation) expectedByAge(p *partition.Partition, sels map[string]selectivity.Selectivity) (map[int]float64, error) {
	out := make(map[int]float64)
	for _, label := range o.Categories {
		c, err := p.Category(label)
		if err != nil {
			return nil, err
		}
		sel := sels[label]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			n, err := c.At(age)
			if err != nil {
				continue
			}
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			out[age] += n * w
		}
	}
	return out, nil
}

// expectedByLength converts every category's numbers-at-age into
// length-bin totals, delegating the per-category age-length conversion
// to a partition.Accessor (spec.md §4.1 update_age_length_data /
// collapse_age_length_to_length) built fresh per category so each can
// carry its own selectivity weighting.
func (o *Observation) expectedByLength(p *partition.Partition, year int, sels map[string]selectivity.Selectivity) (map[int]float64, error) {
	out := make(map[int]float64, len(o.LengthBins))
	for _, label := range o.Categories {
		al, ok := o.AgeLengths[label]
		if !ok {
			return nil, fmt.Errorf("observation %q: no age-length source configured for category %q", o.Label_, label)
		}
		acc, err := partition.Init(p, []string{label})
		if err != nil {
			return nil, err
		}
		source := func(string) (agelength.AgeLength, error) { return al, nil }
		if err := acc.UpdateAgeLengthData(year, o.TimeStep, o.LengthBins, o.PlusGroupBin, o.LegacyCASAL, sels[label], source); err != nil {
			return nil, err
		}
		cols, err := acc.CollapseAgeLengthToLength(len(o.LengthBins))
		if err != nil {
			return nil, err
		}
		for i, v := range cols[label] {
			out[i] += v
		}
	}
	return out, nil
}

// Execute computes one Comparison per configured bin for year by
// sampling the current partition state, renormalising a Proportion
// observation's expected values to sum to one (spec.md §4.4 "for
// proportion-style observations, the expected values are renormalised
// to sum to one before scoring").
func (o *Observation) Execute(p *partition.Partition, year int) error {
	if !o.active(year) {
		return nil
	}
	records := o.recordsForYear(year)
	if len(records) == 0 {
		return nil
	}

	sels, err := o.resolveSelectivities()
	if err != nil {
		return err
	}

	var expectedByBin map[int]float64
	switch o.Structure {
	case LengthStructure:
		expectedByBin, err = o.expectedByLength(p, year, sels)
	default:
		expectedByBin, err = o.expectedByAge(p, sels)
	}
	if err != nil {
		return err
	}

	comps := make([]*likelihood.Comparison, 0, len(records))
	var total float64
	for _, rec := range records {
		key := rec.Bin.Age
		if o.Structure == LengthStructure {
			key = rec.Bin.LengthIndex
		}
		comp := &likelihood.Comparison{
			Label:        o.Label_,
			Year:         year,
			Observed:     rec.Observed,
			Expected:     expectedByBin[key],
			ErrorValue:   rec.ErrorValue,
			ProcessError: rec.ProcessError,
			N:            rec.N,
		}
		comps = append(comps, comp)
		total += comp.Expected
	}

	if o.Kind == Proportion && total > 0 {
		for _, c := range comps {
			c.Expected /= total
			if o.Tolerance > 0 && c.Expected < o.Tolerance {
				c.Expected = o.Delta
			}
		}
	}

	if o.comparisons == nil {
		o.comparisons = make(map[int][]*likelihood.Comparison)
	}
	o.comparisons[year] = comps
	return nil
}

// CalculateScore applies the configured data weight and likelihood to
// every year's comparisons, accumulating TotalScore (spec.md §4.4
// "calculate_score() calls the likelihood on the comparisons").
func (o *Observation) CalculateScore() error {
	o.totalScore = 0
	years := make([]int, 0, len(o.comparisons))
	for y := range o.comparisons {
		years = append(years, y)
	}
	sort.Ints(years)

	for _, y := range years {
		cs := o.comparisons[y]
		if o.DataWeight != nil {
			if err := o.DataWeight.Apply(cs); err != nil {
				return err
			}
		}
		if o.Likelihood == nil {
			return fmt.Errorf("observation %q: no likelihood configured", o.Label_)
		}
		if err := o.Likelihood.InitialScore(y, cs); err != nil {
			return err
		}
		if err := o.Likelihood.GetScores(cs); err != nil {
			return err
		}
		for _, c := range cs {
			o.totalScore += c.Score
		}
	}
	return nil
}

// Comparisons returns the comparison records Execute built for year,
// or nil if the observation produced none (inactive year, or Execute
// not yet called).
func (o *Observation) Comparisons(year int) []*likelihood.Comparison {
	return o.comparisons[year]
}

// Simulate overwrites every built comparison's Observed field via the
// configured likelihood's sampler, then writes the simulated values
// back into Data so a caller persisting a simulated observation set
// sees them (spec.md §4.4 "simulation mode").
func (o *Observation) Simulate(r *rng.Source) error {
	if o.Likelihood == nil {
		return fmt.Errorf("observation %q: no likelihood configured", o.Label_)
	}
	for _, cs := range o.comparisons {
		if err := o.Likelihood.Simulate(cs, r); err != nil {
			return err
		}
	}
	o.writeBackSimulated()
	return nil
}

func (o *Observation) writeBackSimulated() {
	index := make(map[int]map[Bin]float64, len(o.comparisons))
	for year, cs := range o.comparisons {
		recs := o.recordsForYear(year)
		m := make(map[Bin]float64, len(cs))
		for i, c := range cs {
			if i < len(recs) {
				m[recs[i].Bin] = c.Observed
			}
		}
		index[year] = m
	}
	for i := range o.Data {
		rec := &o.Data[i]
		m, ok := index[rec.Year]
		if !ok {
			continue
		}
		if v, ok := m[rec.Bin]; ok {
			rec.Observed = v
		}
	}
}

// Reset clears cached and computed state, readying the observation for
// a fresh full iteration.
func (o *Observation) Reset() {
	o.accessor = nil
	o.comparisons = nil
	o.totalScore = 0
}

// Registry is an ordered, label-keyed collection of observations.
type Registry struct {
	order []string
	byKey map[string]*Observation
}

// NewRegistry returns an empty observation registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Observation)}
}

// Add registers o under its own label.
func (r *Registry) Add(o *Observation) error {
	if _, ok := r.byKey[o.Label_]; ok {
		return fmt.Errorf("observation %q: already registered", o.Label_)
	}
	r.byKey[o.Label_] = o
	r.order = append(r.order, o.Label_)
	return nil
}

// Get looks up an observation by label.
func (r *Registry) Get(label string) (*Observation, bool) {
	o, ok := r.byKey[label]
	return o, ok
}

// Labels returns the registered labels in insertion order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// Scorers returns every registered observation as an
// objective.ObservationScorer, in registration order, ready to assign
// to Objective.Observations.
func (r *Registry) Scorers() []objective.ObservationScorer {
	out := make([]objective.ObservationScorer, 0, len(r.order))
	for _, l := range r.order {
		out = append(out, r.byKey[l])
	}
	return out
}

// ResetAll resets every registered observation.
func (r *Registry) ResetAll() {
	for _, l := range r.order {
		r.byKey[l].Reset()
	}
}
