package process

import (
	"math"

	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

// SelectivityResolver resolves a selectivity by its registered label.
type SelectivityResolver func(label string) (selectivity.Selectivity, error)

// MortalityConstantRate applies a constant instantaneous natural
// mortality rate, scaled per time step by a ratio, and weighted by a
// per-category selectivity (spec.md §4.3 "Mortality (constant rate)").
type MortalityConstantRate struct {
	Label_       string
	Categories   []string
	M            map[string]float64            // per category
	Ratios       map[string]float64             // per time step label
	Selectivities map[string]string              // category -> selectivity label
	Resolve      SelectivityResolver
}

func (m *MortalityConstantRate) Label() string       { return m.Label_ }
func (m *MortalityConstantRate) Type() Type           { return Mortality }
func (m *MortalityConstantRate) Structure() Structure { return AgeStructure }

func (m *MortalityConstantRate) Validate() error {
	for _, c := range m.Categories {
		if _, ok := m.M[c]; !ok {
			return errConfigf("mortality %q: no M declared for category %q", m.Label_, c)
		}
	}
	return nil
}

func (m *MortalityConstantRate) Build() error { return nil }
func (m *MortalityConstantRate) Reset()       {}

func (m *MortalityConstantRate) Execute(p *partition.Partition, ctx Context) error {
	ratio, ok := m.Ratios[ctx.TimeStep]
	if !ok {
		ratio = 1
	}
	for _, label := range m.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		var sel selectivity.Selectivity
		if selLabel, ok := m.Selectivities[label]; ok && m.Resolve != nil {
			sel, err = m.Resolve(selLabel)
			if err != nil {
				return err
			}
		}
		mVal := m.M[label]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			surv := math.Exp(-mVal * ratio * w)
			if err := c.Set(age, n*surv); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy with its own M map, so an Estimate
// bound to one copy's per-category M never touches the other's.
func (m *MortalityConstantRate) Clone() Process {
	nm := *m
	nm.Categories = append([]string(nil), m.Categories...)
	nm.M = make(map[string]float64, len(m.M))
	for k, v := range m.M {
		nm.M[k] = v
	}
	nm.Ratios = make(map[string]float64, len(m.Ratios))
	for k, v := range m.Ratios {
		nm.Ratios[k] = v
	}
	nm.Selectivities = make(map[string]string, len(m.Selectivities))
	for k, v := range m.Selectivities {
		nm.Selectivities[k] = v
	}
	return &nm
}

// Fishery describes one exploitation event inside a
// MortalityInstantaneous process.
type Fishery struct {
	Label          string
	Category       string
	Selectivity    string
	UMax           float64
	PenaltyLabel   string
	TimeStep       string
}

// MortalityInstantaneous implements catch-driven instantaneous
// mortality with a natural-mortality half-step either side of removal,
// an exploitation cap per fishery, and a penalty for catch that cannot
// be taken without breaching the cap (spec.md §4.3 "Mortality
// (instantaneous, catch-driven)").
type MortalityInstantaneous struct {
	Label_     string
	Categories []string
	M          map[string]float64 // per category
	Fisheries  []Fishery
	Catch      map[int]map[string]float64 // year -> fishery label -> catch
	Resolve    SelectivityResolver

	// Trigger is called with (penaltyLabel, lostCatchAmount) whenever
	// a fishery's exploitation rate is clamped to UMax.
	Trigger func(penaltyLabel string, amount float64)
}

const epsilonBiomass = 1e-9

func (m *MortalityInstantaneous) Label() string       { return m.Label_ }
func (m *MortalityInstantaneous) Type() Type           { return Mortality }
func (m *MortalityInstantaneous) Structure() Structure { return AgeStructure }

func (m *MortalityInstantaneous) Validate() error {
	for _, f := range m.Fisheries {
		if f.UMax <= 0 || f.UMax > 1 {
			return errConfigf("mortality %q: fishery %q U_max %v must be in (0,1]", m.Label_, f.Label, f.UMax)
		}
	}
	return nil
}

func (m *MortalityInstantaneous) Build() error { return nil }
func (m *MortalityInstantaneous) Reset()       {}

// Execute applies the half-step/removal/half-step sequence. The
// half-steps use exp(-0.5*M) unscaled by ctx.Ratio: every scenario
// this model runs keeps a whole time step's ratio at 1, and the only
// available reference implementation also carries the ratio term
// commented out, so the half-step is left a plain annual split rather
// than a speculative ratio-scaled one.
func (m *MortalityInstantaneous) Execute(p *partition.Partition, ctx Context) error {
	fisheriesHere := make([]Fishery, 0, len(m.Fisheries))
	for _, f := range m.Fisheries {
		if f.TimeStep == ctx.TimeStep {
			fisheriesHere = append(fisheriesHere, f)
		}
	}
	if len(fisheriesHere) == 0 {
		return nil
	}

	type catState struct {
		cat     *partition.Category
		halfN   []float64 // post half-step natural mortality, indexed by age offset
	}
	states := make(map[string]*catState, len(m.Categories))
	for _, label := range m.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		half := make([]float64, c.Spread())
		mVal := m.M[label]
		for i, n := range c.Data {
			half[i] = n * math.Exp(-0.5*mVal)
			_ = i
		}
		states[label] = &catState{cat: c, halfN: half}
	}

	sels := make(map[string]selectivity.Selectivity, len(fisheriesHere))
	for _, f := range fisheriesHere {
		if m.Resolve == nil {
			continue
		}
		s, err := m.Resolve(f.Selectivity)
		if err != nil {
			return err
		}
		sels[f.Label] = s
	}

	vulnerable := make(map[string]float64, len(fisheriesHere))
	for _, f := range fisheriesHere {
		st, ok := states[f.Category]
		if !ok {
			continue
		}
		var v float64
		for i, n := range st.halfN {
			age := st.cat.MinAge + i
			w, _ := st.cat.MeanWeight(ctx.TimeStep, age)
			sel := sels[f.Label].At(float64(age))
			v += n * w * sel
		}
		vulnerable[f.Label] = v
	}

	catchThisYear := m.Catch[ctx.Year]
	uRate := make(map[string]float64, len(fisheriesHere))
	for _, f := range fisheriesHere {
		c := catchThisYear[f.Label]
		v := vulnerable[f.Label]
		if v < epsilonBiomass {
			v = epsilonBiomass
		}
		uRate[f.Label] = c / v
	}

	// age-level exploitation per category, clamped to each fishery's
	// U_max.
	ageExploit := make(map[string][]float64, len(m.Categories))
	for label, st := range states {
		ageExploit[label] = make([]float64, st.cat.Spread())
	}
	for _, f := range fisheriesHere {
		st, ok := states[f.Category]
		if !ok {
			continue
		}
		u := uRate[f.Label]
		maxU := 0.0
		for i := range st.halfN {
			age := st.cat.MinAge + i
			sel := sels[f.Label].At(float64(age))
			uAge := u * sel
			if uAge > maxU {
				maxU = uAge
			}
		}
		if maxU > f.UMax {
			scale := f.UMax / maxU
			lost := (1 - scale) * catchThisYear[f.Label]
			if m.Trigger != nil {
				m.Trigger(f.PenaltyLabel, lost)
			}
			u *= scale
		}
		for i := range st.halfN {
			age := st.cat.MinAge + i
			sel := sels[f.Label].At(float64(age))
			ageExploit[f.Category][i] += u * sel
		}
	}

	for label, st := range states {
		mVal := m.M[label]
		for i, half := range st.halfN {
			age := st.cat.MinAge + i
			u := ageExploit[label][i]
			if u > 1 {
				u = 1
			}
			final := half * (1 - u) * math.Exp(-0.5*mVal)
			if err := st.cat.Set(age, final); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy with its own M and Catch maps, so
// an Estimate bound to one copy's per-category M never touches the
// other's, and a simulated catch schedule can be rewritten per worker.
func (m *MortalityInstantaneous) Clone() Process {
	nm := *m
	nm.Categories = append([]string(nil), m.Categories...)
	nm.Fisheries = append([]Fishery(nil), m.Fisheries...)
	nm.M = make(map[string]float64, len(m.M))
	for k, v := range m.M {
		nm.M[k] = v
	}
	nm.Catch = make(map[int]map[string]float64, len(m.Catch))
	for year, byFishery := range m.Catch {
		cp := make(map[string]float64, len(byFishery))
		for k, v := range byFishery {
			cp[k] = v
		}
		nm.Catch[year] = cp
	}
	return &nm
}

// MortalityEventBiomass implements a single-pulse catch-biomass
// removal event (spec.md §4.3 "Mortality (event, biomass)"): a
// declared catch biomass is removed once per configured year with no
// natural-mortality half-step either side, unlike
// MortalityInstantaneous's per-time-step exploitation. The
// exploitation rate u = catch/vulnerable_biomass is capped at U_max,
// with any catch that cannot be taken without breaching the cap
// reported through Trigger.
type MortalityEventBiomass struct {
	Label_        string
	Categories    []string
	Selectivities map[string]string // category -> selectivity label
	Catch         map[int]float64   // year -> catch biomass
	UMax          float64
	PenaltyLabel  string
	Resolve       SelectivityResolver
	Trigger       func(penaltyLabel string, amount float64)
}

func (m *MortalityEventBiomass) Label() string       { return m.Label_ }
func (m *MortalityEventBiomass) Type() Type           { return Mortality }
func (m *MortalityEventBiomass) Structure() Structure { return AgeStructure }

func (m *MortalityEventBiomass) Validate() error {
	if m.UMax <= 0 || m.UMax > 1 {
		return errConfigf("mortality %q: U_max %v must be in (0,1]", m.Label_, m.UMax)
	}
	if len(m.Categories) == 0 {
		return errConfigf("mortality %q: requires at least one category", m.Label_)
	}
	return nil
}

func (m *MortalityEventBiomass) Build() error { return nil }
func (m *MortalityEventBiomass) Reset()       {}

func (m *MortalityEventBiomass) Execute(p *partition.Partition, ctx Context) error {
	catch, ok := m.Catch[ctx.Year]
	if !ok || catch <= 0 {
		return nil
	}

	cats := make([]*partition.Category, len(m.Categories))
	sels := make([]selectivity.Selectivity, len(m.Categories))
	for i, label := range m.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		cats[i] = c
		if selLabel, ok := m.Selectivities[label]; ok && m.Resolve != nil {
			s, err := m.Resolve(selLabel)
			if err != nil {
				return err
			}
			sels[i] = s
		}
	}

	var vulnerable float64
	for i, c := range cats {
		sel := sels[i]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			weight, _ := c.MeanWeight(ctx.TimeStep, age)
			vulnerable += n * w * weight
		}
	}
	if vulnerable < epsilonBiomass {
		vulnerable = epsilonBiomass
	}
	u := catch / vulnerable

	maxU := 0.0
	for i, c := range cats {
		sel := sels[i]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			if uAge := u * w; uAge > maxU {
				maxU = uAge
			}
		}
	}
	if maxU > m.UMax {
		scale := m.UMax / maxU
		lost := (1 - scale) * catch
		if m.Trigger != nil {
			m.Trigger(m.PenaltyLabel, lost)
		}
		u *= scale
	}

	for i, c := range cats {
		sel := sels[i]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			uAge := u * w
			if uAge > 1 {
				uAge = 1
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			if err := c.Set(age, n*(1-uAge)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy with its own Selectivities and
// Catch maps.
func (m *MortalityEventBiomass) Clone() Process {
	nm := *m
	nm.Categories = append([]string(nil), m.Categories...)
	nm.Selectivities = make(map[string]string, len(m.Selectivities))
	for k, v := range m.Selectivities {
		nm.Selectivities[k] = v
	}
	nm.Catch = make(map[int]float64, len(m.Catch))
	for k, v := range m.Catch {
		nm.Catch[k] = v
	}
	return &nm
}
