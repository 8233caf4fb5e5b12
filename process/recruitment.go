package process

import (
	"fmt"
	"math"

	"github.com/fishmodel/asa/modelerr"
	"github.com/fishmodel/asa/partition"
)

// RecruitmentConstant adds R0×proportion[i] to Age of each target
// category, every execution (spec.md §4.3 "Recruitment (constant)").
type RecruitmentConstant struct {
	Label_      string
	R0          float64
	Proportions map[string]float64
	Age         int
	Categories  []string
}

func (r *RecruitmentConstant) Label() string        { return r.Label_ }
func (r *RecruitmentConstant) Type() Type            { return Recruitment }
func (r *RecruitmentConstant) Structure() Structure  { return AgeStructure }

func (r *RecruitmentConstant) Validate() error {
	if r.R0 < 0 {
		return modelerr.Configurationf("recruitment %q: R0 must be non-negative", r.Label_)
	}
	var sum float64
	for _, c := range r.Categories {
		p, ok := r.Proportions[c]
		if !ok {
			return modelerr.Configurationf("recruitment %q: no proportion declared for category %q", r.Label_, c)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return modelerr.Configurationf("recruitment %q: proportions sum to %v, want 1", r.Label_, sum)
	}
	return nil
}

func (r *RecruitmentConstant) Build() error { return nil }
func (r *RecruitmentConstant) Reset()       {}

func (r *RecruitmentConstant) Execute(p *partition.Partition, ctx Context) error {
	for _, label := range r.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		amount := r.R0 * r.Proportions[label]
		if err := c.Add(r.Age, amount); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy with its own Proportions map, so an
// Estimate bound to one copy's R0 never touches the other's.
func (r *RecruitmentConstant) Clone() Process {
	nr := *r
	nr.Proportions = make(map[string]float64, len(r.Proportions))
	for k, v := range r.Proportions {
		nr.Proportions[k] = v
	}
	nr.Categories = append([]string(nil), r.Categories...)
	return &nr
}

// SSBSource answers the spawning-stock-biomass derived-quantity lookup
// a Beverton-Holt recruitment needs.
type SSBSource interface {
	// At returns the SSB value recorded for year, and whether a
	// value was recorded at all.
	At(year int) (float64, bool)
	// LastInitialisationValue returns the last SSB value produced by
	// the previously executed initialisation phase, used when the
	// requested year predates the model.
	LastInitialisationValue() (float64, bool)
}

// RecruitmentBevertonHolt implements the Beverton-Holt stock-recruit
// relationship (spec.md §4.3 "Recruitment (Beverton-Holt)").
type RecruitmentBevertonHolt struct {
	Label_ string

	// Exactly one of R0Value/B0Value is used; HasB0 selects which.
	R0Value float64
	B0Value float64
	HasB0   bool

	Proportions map[string]float64
	Age         int
	Steepness   float64
	B0Phase     string
	Categories  []string

	// YCS is the year-class-strength multiplier per model year.
	YCS map[int]float64

	// StandardiseYears restricts the standardisation mean to this
	// year subset; nil means "every year in YCS".
	StandardiseYears []int

	// SSBOffset is the lag (in years) between the SSB that produced
	// a cohort and the year that cohort recruits. If zero it must be
	// supplied explicitly by the caller (see spec.md §9 Open
	// Questions: ambiguous when more than one ageing process
	// exists).
	SSBOffset int

	// Proj, if non-nil, is consulted for a per-year projected ycs
	// value in projection mode. A projected value, once supplied, is
	// authoritative: the standardised value equals the projected
	// value unchanged (spec.md §9 Open Questions).
	Proj map[int]float64

	ssb SSBSource

	// scaled marks whether the partition has already been rescaled
	// to B0 by the initialisation algorithm (spec.md §4.2 step 4).
	scaled bool
}

// SetSSBSource wires the derived quantity this recruitment reads SSB
// from; it is called during Build by the model assembling the process
// graph.
func (r *RecruitmentBevertonHolt) SetSSBSource(s SSBSource) {
	r.ssb = s
}

// SetScaled records whether the partition has been rescaled to B0.
func (r *RecruitmentBevertonHolt) SetScaled(v bool) {
	r.scaled = v
}

func (r *RecruitmentBevertonHolt) Label() string       { return r.Label_ }
func (r *RecruitmentBevertonHolt) Type() Type           { return Recruitment }
func (r *RecruitmentBevertonHolt) Structure() Structure { return AgeStructure }

func (r *RecruitmentBevertonHolt) Validate() error {
	if r.Steepness <= 0 || r.Steepness > 1 {
		return modelerr.Configurationf("recruitment %q: steepness %v must be in (0,1]", r.Label_, r.Steepness)
	}
	var sum float64
	for _, c := range r.Categories {
		p, ok := r.Proportions[c]
		if !ok {
			return modelerr.Configurationf("recruitment %q: no proportion declared for category %q", r.Label_, c)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-6 {
		return modelerr.Configurationf("recruitment %q: proportions sum to %v, want 1", r.Label_, sum)
	}
	return nil
}

func (r *RecruitmentBevertonHolt) Build() error {
	if r.ssb == nil {
		return fmt.Errorf("recruitment %q: SSB source not wired", r.Label_)
	}
	return nil
}

func (r *RecruitmentBevertonHolt) Reset() { r.scaled = false }

// StandardiseYCS rewrites the YCS values in StandardiseYears (or the
// whole YCS map, if StandardiseYears is nil) to raw/mean, so they
// average to 1.0 across the standardise set (spec.md P6). Projection
// values already present in Proj for a given year are left unchanged
// and are not incorporated into the mean.
func (r *RecruitmentBevertonHolt) StandardiseYCS() {
	years := r.StandardiseYears
	if years == nil {
		for y := range r.YCS {
			years = append(years, y)
		}
	}
	var sum float64
	n := 0
	for _, y := range years {
		if _, projected := r.Proj[y]; projected {
			continue
		}
		if v, ok := r.YCS[y]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return
	}
	mean := sum / float64(n)
	for _, y := range years {
		if _, projected := r.Proj[y]; projected {
			continue
		}
		if v, ok := r.YCS[y]; ok {
			r.YCS[y] = v / mean
		}
	}
}

func (r *RecruitmentBevertonHolt) ycsFor(year int) float64 {
	if r.Proj != nil {
		if v, ok := r.Proj[year]; ok {
			return v
		}
	}
	if v, ok := r.YCS[year]; ok {
		return v
	}
	return 1
}

func (r *RecruitmentBevertonHolt) b0() float64 {
	if r.HasB0 {
		return r.B0Value
	}
	// Equilibrium B0 implied by R0 is computed by the initialisation
	// algorithm and cached via SetScaled/B0Value; callers running a
	// BH recruitment configured with R0 directly must still supply an
	// SSB-based B0 once initialisation has computed it.
	return r.B0Value
}

// baseAmount computes the deterministic recruitment for the current
// execution, before any process-error deviation is applied (shared by
// Execute and RecruitmentBevertonHoltDeviations.Execute).
func (r *RecruitmentBevertonHolt) baseAmount(ctx Context) (float64, error) {
	// ctx carries only the running phase's label, not its position in
	// the calendar's initialisation sequence (calendar.Phase has no
	// ordering field either), so "at or before B0Phase" collapses to
	// equality here: every initialisation phase up to and including
	// B0Phase runs the unscaled R0/unit-recruit branch, and nothing in
	// the data passed to a process can distinguish "before" from "at".
	duringB0Phase := ctx.IsInitialising && (r.B0Phase == "" || ctx.Phase == r.B0Phase || ctx.Phase == "")

	if duringB0Phase {
		if r.HasB0 && !r.scaled {
			return 1, nil // unit recruit, rescaled later by initialisation
		}
		return r.R0Value, nil
	}

	year := ctx.Year - r.SSBOffset
	var ssb float64
	if v, ok := r.ssb.At(year); ok {
		ssb = v
	} else if v, ok := r.ssb.LastInitialisationValue(); ok {
		ssb = v
	} else {
		return 0, fmt.Errorf("recruitment %q: no SSB available for year %d", r.Label_, year)
	}
	b0 := r.b0()
	if b0 <= 0 {
		return 0, fmt.Errorf("recruitment %q: B0 must be positive", r.Label_)
	}
	ratio := ssb / b0
	h := r.Steepness
	denom := 1 - ((5*h-1)/(4*h))*(1-ratio)
	ycs := r.ycsFor(ctx.Year)
	trueYCS := ycs * ratio / denom
	return r.R0Value * trueYCS, nil
}

func (r *RecruitmentBevertonHolt) Execute(p *partition.Partition, ctx Context) error {
	amount, err := r.baseAmount(ctx)
	if err != nil {
		return err
	}

	for _, label := range r.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		if err := c.Add(r.Age, amount*r.Proportions[label]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy with its own YCS, Proj and
// Proportions maps. The cloned ssb source is left as-is; a caller
// cloning a whole Model is responsible for rewiring it to the cloned
// derived-quantity registry via SetSSBSource.
func (r *RecruitmentBevertonHolt) Clone() Process {
	nr := *r
	nr.Proportions = make(map[string]float64, len(r.Proportions))
	for k, v := range r.Proportions {
		nr.Proportions[k] = v
	}
	nr.YCS = make(map[int]float64, len(r.YCS))
	for k, v := range r.YCS {
		nr.YCS[k] = v
	}
	if r.Proj != nil {
		nr.Proj = make(map[int]float64, len(r.Proj))
		for k, v := range r.Proj {
			nr.Proj[k] = v
		}
	}
	nr.Categories = append([]string(nil), r.Categories...)
	nr.StandardiseYears = append([]int(nil), r.StandardiseYears...)
	return &nr
}

// RecruitmentBevertonHoltDeviations layers a lognormal process-error
// deviation on top of RecruitmentBevertonHolt (spec.md §3, §4.3
// "Recruitment (Beverton-Holt, with deviations)"): the deterministic
// recruitment that Execute would otherwise add is multiplied by a
// bias-corrected exp(dev[year] - 0.5*sigma²) term, with one addressable
// deviation per recruitment year.
type RecruitmentBevertonHoltDeviations struct {
	RecruitmentBevertonHolt

	// Deviations[year] is the raw, unscaled lognormal deviation applied
	// to that year's recruitment; ordinarily an addressable estimate
	// with a Normal(0, Sigma) prior.
	Deviations map[int]float64
	Sigma      float64
}

func (r *RecruitmentBevertonHoltDeviations) Execute(p *partition.Partition, ctx Context) error {
	amount, err := r.baseAmount(ctx)
	if err != nil {
		return err
	}
	if dev, ok := r.Deviations[ctx.Year]; ok {
		amount *= math.Exp(dev - 0.5*r.Sigma*r.Sigma)
	}

	for _, label := range r.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		if err := c.Add(r.Age, amount*r.Proportions[label]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent copy with its own Deviations map, on
// top of RecruitmentBevertonHolt.Clone's usual per-field copying.
func (r *RecruitmentBevertonHoltDeviations) Clone() Process {
	base := r.RecruitmentBevertonHolt.Clone().(*RecruitmentBevertonHolt)
	nr := &RecruitmentBevertonHoltDeviations{RecruitmentBevertonHolt: *base, Sigma: r.Sigma}
	nr.Deviations = make(map[int]float64, len(r.Deviations))
	for k, v := range r.Deviations {
		nr.Deviations[k] = v
	}
	return nr
}
