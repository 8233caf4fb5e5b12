package process

import (
	"math"

	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

// Transition implements both category transition and Markovian
// movement (spec.md §4.3): given a source category set and a
// destination set with a full |sources|×|destinations| proportions
// matrix, it moves sel_f(age)×prop[f,t]×n[f,age] from each source f to
// each destination t.
//
// The two spec.md variants share this exact execution contract; they
// differ only in configuration intent (category transition moves
// between life-history stages, movement moves between spatial/stock
// categories), so one type serves both, selected by Label and Kind for
// reporting purposes only.
type Transition struct {
	Label_       string
	Kind         string // "category_transition" or "markovian_movement"
	Sources      []string
	Destinations []string
	Proportions  [][]float64 // [source index][destination index]
	Selectivity  map[string]string
	Resolve      SelectivityResolver

	tolerance float64
}

func (t *Transition) Label() string       { return t.Label_ }
func (t *Transition) Type() Type           { return TransitionType }
func (t *Transition) Structure() Structure { return AgeStructure }

// Validate checks that the proportions matrix has the right shape and
// that every row sums to 1 within the configured tolerance (default
// 1e-3, per spec.md P5).
func (t *Transition) Validate() error {
	if t.tolerance == 0 {
		t.tolerance = 1e-3
	}
	if len(t.Proportions) != len(t.Sources) {
		return errConfigf("transition %q: proportions has %d rows, want %d (one per source)", t.Label_, len(t.Proportions), len(t.Sources))
	}
	for i, row := range t.Proportions {
		if len(row) != len(t.Destinations) {
			return errConfigf("transition %q: row %d has %d columns, want %d (one per destination)", t.Label_, i, len(row), len(t.Destinations))
		}
		var sum float64
		for _, v := range row {
			sum += v
		}
		if math.Abs(sum-1) > t.tolerance {
			return errConfigf("transition %q: row %d (source %q) sums to %v, want 1 within %v", t.Label_, i, t.Sources[i], sum, t.tolerance)
		}
	}
	return nil
}

func (t *Transition) Build() error { return nil }
func (t *Transition) Reset()       {}

func (t *Transition) Execute(p *partition.Partition, ctx Context) error {
	srcCats := make([]*partition.Category, len(t.Sources))
	for i, l := range t.Sources {
		c, err := p.Category(l)
		if err != nil {
			return err
		}
		srcCats[i] = c
	}
	dstCats := make([]*partition.Category, len(t.Destinations))
	for i, l := range t.Destinations {
		c, err := p.Category(l)
		if err != nil {
			return err
		}
		dstCats[i] = c
	}

	sels := make([]selectivity.Selectivity, len(t.Sources))
	for i, l := range t.Sources {
		selLabel, ok := t.Selectivity[l]
		if !ok || t.Resolve == nil {
			continue
		}
		s, err := t.Resolve(selLabel)
		if err != nil {
			return err
		}
		sels[i] = s
	}

	minAge, maxAge := srcCats[0].MinAge, srcCats[0].MaxAge
	for age := minAge; age <= maxAge; age++ {
		for i, src := range srcCats {
			n, err := src.At(age)
			if err != nil {
				return err
			}
			if n == 0 {
				continue
			}
			w := 1.0
			if sels[i] != nil {
				w = sels[i].At(float64(age))
			}
			var totalMoved float64
			for j, dst := range dstCats {
				moved := w * t.Proportions[i][j] * n
				if moved == 0 {
					continue
				}
				if err := dst.Add(age, moved); err != nil {
					return err
				}
				totalMoved += moved
			}
			if err := src.Add(age, -totalMoved); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy with its own Proportions matrix, so
// an Estimate bound to one copy's entries never touches the other's.
func (t *Transition) Clone() Process {
	nt := *t
	nt.Sources = append([]string(nil), t.Sources...)
	nt.Destinations = append([]string(nil), t.Destinations...)
	nt.Proportions = make([][]float64, len(t.Proportions))
	for i, row := range t.Proportions {
		nt.Proportions[i] = append([]float64(nil), row...)
	}
	nt.Selectivity = make(map[string]string, len(t.Selectivity))
	for k, v := range t.Selectivity {
		nt.Selectivity[k] = v
	}
	return &nt
}
