package process

import (
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

// TagSource pairs one source category with the destination it tags
// into, and the selectivity used both to split a shared per-age tag
// target across sources and to weight vulnerability for the U_max
// check.
type TagSource struct {
	Category       string
	Destination    string
	Selectivity    string
	TagLossRate    float64
	TagLossSelectivity string
}

// TagByAge implements age-based tagging with tag loss and optional
// initial mortality (spec.md §4.3 "Tag-by-age and tag-by-length"). The
// same type and algorithm serve tag-by-length partitions; Structure
// reports which axis the configured ages/lengths refer to.
type TagByAge struct {
	Label_  string
	Sources []TagSource

	// Years is the set of model years new tags are released.
	Years map[int]bool

	// Targets[year][age] is the number of tags released at that age
	// in that year, shared across every source and split between
	// them by relative vulnerable stock, numbers × selectivity (spec.md: either a direct numbers
	// table, or a proportions table times a year-indexed total N —
	// both reduce to this per-age target once resolved by a caller).
	Targets map[int]map[int]float64

	UMax                    float64
	PenaltyLabel            string
	InitialMortality        float64
	InitialMortalitySelectivity string

	Resolve SelectivityResolver
	Trigger func(penaltyLabel string, amount float64)

	structure Structure
}

func (t *TagByAge) Label() string { return t.Label_ }
func (t *TagByAge) Type() Type     { return Other }
func (t *TagByAge) Structure() Structure {
	if t.structure == "" {
		return AgeStructure
	}
	return t.structure
}

func (t *TagByAge) Validate() error {
	if t.UMax <= 0 || t.UMax > 1 {
		return errConfigf("tagging %q: U_max %v must be in (0,1]", t.Label_, t.UMax)
	}
	if len(t.Sources) == 0 {
		return errConfigf("tagging %q: requires at least one source", t.Label_)
	}
	return nil
}

func (t *TagByAge) Build() error { return nil }
func (t *TagByAge) Reset()       {}

func (t *TagByAge) resolveSel(label string) (selectivity.Selectivity, error) {
	if label == "" || t.Resolve == nil {
		return nil, nil
	}
	return t.Resolve(label)
}

func (t *TagByAge) Execute(p *partition.Partition, ctx Context) error {
	if t.Years != nil && !t.Years[ctx.Year] {
		return t.applyTagLoss(p)
	}

	targets := t.Targets[ctx.Year]
	if targets == nil {
		return t.applyTagLoss(p)
	}

	srcCats := make([]*partition.Category, len(t.Sources))
	sels := make([]selectivity.Selectivity, len(t.Sources))
	imSels := make([]selectivity.Selectivity, len(t.Sources))
	for i, s := range t.Sources {
		c, err := p.Category(s.Category)
		if err != nil {
			return err
		}
		srcCats[i] = c
		sel, err := t.resolveSel(s.Selectivity)
		if err != nil {
			return err
		}
		sels[i] = sel
		imSel, err := t.resolveSel(t.InitialMortalitySelectivity)
		if err != nil {
			return err
		}
		imSels[i] = imSel
	}

	for age, target := range targets {
		// vulnerable[i] is n[i]*selectivity(age): the tag target is
		// split across sources by vulnerable stock, not by
		// selectivity alone, and the U_max cap below compares
		// exploited tags against that same vulnerable-stock quantity.
		vulnerable := make([]float64, len(t.Sources))
		var sumVulnerable float64
		for i := range t.Sources {
			w := 1.0
			if sels[i] != nil {
				w = sels[i].At(float64(age))
			}
			n, err := srcCats[i].At(age)
			if err != nil {
				return err
			}
			vulnerable[i] = n * w
			sumVulnerable += vulnerable[i]
		}
		if sumVulnerable <= 0 {
			continue
		}

		for i, s := range t.Sources {
			exploited := target * vulnerable[i] / sumVulnerable

			if vulnerable[i] > 0 {
				u := exploited / vulnerable[i]
				if u > t.UMax {
					lost := (u - t.UMax) / u * exploited
					if t.Trigger != nil {
						t.Trigger(t.PenaltyLabel, lost)
					}
					exploited = t.UMax * vulnerable[i]
				}
			}

			imW := 1.0
			if imSels[i] != nil {
				imW = imSels[i].At(float64(age))
			}
			moved := exploited * (1 - t.InitialMortality*imW)

			dst, err := p.Category(s.Destination)
			if err != nil {
				return err
			}
			if err := dst.Add(age, moved); err != nil {
				return err
			}
			if err := srcCats[i].Add(age, -exploited); err != nil {
				return err
			}
		}
	}
	return t.applyTagLoss(p)
}

// Clone returns an independent copy with its own Targets map.
func (t *TagByAge) Clone() Process {
	nt := *t
	nt.Sources = append([]TagSource(nil), t.Sources...)
	if t.Years != nil {
		nt.Years = make(map[int]bool, len(t.Years))
		for k, v := range t.Years {
			nt.Years[k] = v
		}
	}
	nt.Targets = make(map[int]map[int]float64, len(t.Targets))
	for year, byAge := range t.Targets {
		cp := make(map[int]float64, len(byAge))
		for k, v := range byAge {
			cp[k] = v
		}
		nt.Targets[year] = cp
	}
	return &nt
}

func (t *TagByAge) applyTagLoss(p *partition.Partition) error {
	for _, s := range t.Sources {
		if s.TagLossRate <= 0 {
			continue
		}
		dst, err := p.Category(s.Destination)
		if err != nil {
			return err
		}
		src, err := p.Category(s.Category)
		if err != nil {
			return err
		}
		lossSel, err := t.resolveSel(s.TagLossSelectivity)
		if err != nil {
			return err
		}
		for age := dst.MinAge; age <= dst.MaxAge; age++ {
			w := 1.0
			if lossSel != nil {
				w = lossSel.At(float64(age))
			}
			n, err := dst.At(age)
			if err != nil {
				return err
			}
			loss := s.TagLossRate * w * n
			if loss <= 0 {
				continue
			}
			if err := dst.Add(age, -loss); err != nil {
				return err
			}
			if err := src.Add(age, loss); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewTagByLength returns a TagByAge configured to operate over a length-structured
// partition; the algorithm is identical, only the axis label differs.
func NewTagByLength(t TagByAge) *TagByAge {
	t.structure = LengthStructure
	return &t
}
