package process

import (
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

// PreyCategory pairs one prey category with the selectivity and
// electivity (relative preference) a predator applies to it.
type PreyCategory struct {
	Category    string
	Selectivity string
	Electivity  float64
}

// PredatorCategory pairs one predator category with the selectivity
// that determines its vulnerable abundance.
type PredatorCategory struct {
	Category    string
	Selectivity string
}

// MortalityPreySuitability implements CASAL2's predator-prey
// exploitation process (spec.md §3, §4.3 "Mortality (prey
// suitability)"): a fixed predator vulnerable biomass is divided among
// prey categories in proportion to each category's vulnerable
// abundance weighted by its electivity, the whole scaled by a
// consumption rate and capped per category at U_max.
type MortalityPreySuitability struct {
	Label_ string

	Prey            []PreyCategory
	Predators       []PredatorCategory
	ConsumptionRate float64
	UMax            float64
	PenaltyLabel    string

	// Years is the set of model years this process removes prey; a
	// year outside the set is a no-op.
	Years map[int]bool

	Resolve SelectivityResolver
	Trigger func(penaltyLabel string, amount float64)
}

func (m *MortalityPreySuitability) Label() string       { return m.Label_ }
func (m *MortalityPreySuitability) Type() Type           { return Mortality }
func (m *MortalityPreySuitability) Structure() Structure { return AgeStructure }

func (m *MortalityPreySuitability) Validate() error {
	if m.ConsumptionRate < 0 || m.ConsumptionRate > 1 {
		return errConfigf("mortality %q: consumption rate %v must be in [0,1]", m.Label_, m.ConsumptionRate)
	}
	if m.UMax <= 0 || m.UMax > 1 {
		return errConfigf("mortality %q: U_max %v must be in (0,1]", m.Label_, m.UMax)
	}
	if len(m.Prey) == 0 {
		return errConfigf("mortality %q: requires at least one prey category", m.Label_)
	}
	if len(m.Predators) == 0 {
		return errConfigf("mortality %q: requires at least one predator category", m.Label_)
	}
	for _, pc := range m.Prey {
		if pc.Electivity < 0 || pc.Electivity > 1 {
			return errConfigf("mortality %q: prey %q electivity %v must be in [0,1]", m.Label_, pc.Category, pc.Electivity)
		}
	}
	return nil
}

func (m *MortalityPreySuitability) Build() error { return nil }
func (m *MortalityPreySuitability) Reset()       {}

func (m *MortalityPreySuitability) resolveSel(label string) (selectivity.Selectivity, error) {
	if label == "" || m.Resolve == nil {
		return nil, nil
	}
	return m.Resolve(label)
}

func (m *MortalityPreySuitability) Execute(p *partition.Partition, ctx Context) error {
	if m.Years != nil && !m.Years[ctx.Year] {
		return nil
	}

	preyCats := make([]*partition.Category, len(m.Prey))
	preySels := make([]selectivity.Selectivity, len(m.Prey))
	for i, pc := range m.Prey {
		c, err := p.Category(pc.Category)
		if err != nil {
			return err
		}
		preyCats[i] = c
		sel, err := m.resolveSel(pc.Selectivity)
		if err != nil {
			return err
		}
		preySels[i] = sel
	}

	// Vulnerable-by-prey is the selectivity-weighted abundance of each
	// prey category; total prey availability sums that across every
	// category, and total prey vulnerable weights it further by
	// electivity before normalising by availability.
	vulnerableByPrey := make([]float64, len(m.Prey))
	var totalPreyAvailability, totalPreyVulnerable float64
	for i, c := range preyCats {
		sel := preySels[i]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			v := n * w
			if v < 0 {
				v = 0
			}
			vulnerableByPrey[i] += v
			totalPreyAvailability += v
			totalPreyVulnerable += v * m.Prey[i].Electivity
		}
	}
	if totalPreyAvailability <= 0 {
		totalPreyAvailability = epsilonBiomass
	}
	totalPreyVulnerable /= totalPreyAvailability
	if totalPreyVulnerable <= 0 {
		totalPreyVulnerable = epsilonBiomass
	}

	var totalPredatorVulnerable float64
	for _, pd := range m.Predators {
		c, err := p.Category(pd.Category)
		if err != nil {
			return err
		}
		sel, err := m.resolveSel(pd.Selectivity)
		if err != nil {
			return err
		}
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			v := n * w
			if v < 0 {
				v = 0
			}
			totalPredatorVulnerable += v
		}
	}

	exploitation := make([]float64, len(m.Prey))
	for i := range m.Prey {
		e := totalPredatorVulnerable * m.ConsumptionRate *
			((vulnerableByPrey[i] / totalPreyAvailability) * m.Prey[i].Electivity) / totalPreyVulnerable
		switch {
		case e > m.UMax:
			if m.Trigger != nil {
				m.Trigger(m.PenaltyLabel, vulnerableByPrey[i]*m.UMax)
			}
			e = m.UMax
		case e < 0:
			e = 0
		}
		exploitation[i] = e
	}

	for i, c := range preyCats {
		sel := preySels[i]
		for age := c.MinAge; age <= c.MaxAge; age++ {
			w := 1.0
			if sel != nil {
				w = sel.At(float64(age))
			}
			n, err := c.At(age)
			if err != nil {
				return err
			}
			removed := n * w * exploitation[i]
			if removed <= 0 {
				continue
			}
			if err := c.Add(age, -removed); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy with its own Prey/Predators
// slices and Years set.
func (m *MortalityPreySuitability) Clone() Process {
	nm := *m
	nm.Prey = append([]PreyCategory(nil), m.Prey...)
	nm.Predators = append([]PredatorCategory(nil), m.Predators...)
	if m.Years != nil {
		nm.Years = make(map[int]bool, len(m.Years))
		for k, v := range m.Years {
			nm.Years[k] = v
		}
	}
	return &nm
}
