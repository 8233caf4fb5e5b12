package process

import (
	"github.com/fishmodel/asa/agelength"
	"github.com/fishmodel/asa/partition"
)

// Ageing shifts each declared category's numbers-at-age vector up by
// one age index; when the category has a plus group, the value shifted
// out of the top age is folded back into the new plus-group total
// (spec.md §4.3 "Ageing").
type Ageing struct {
	Label_     string
	Categories []string

	// ErrorMatrix, if set, is applied to every category's
	// numbers-at-age after the shift (CASAL2's AgeingError, spec.md
	// §3/§9 supplemented feature).
	ErrorMatrix *agelength.ErrorMatrix
}

func (a *Ageing) Label() string       { return a.Label_ }
func (a *Ageing) Type() Type           { return AgeingType }
func (a *Ageing) Structure() Structure { return AgeStructure }

func (a *Ageing) Validate() error {
	if len(a.Categories) == 0 {
		return errConfigf("ageing %q: requires at least one category", a.Label_)
	}
	return nil
}

func (a *Ageing) Build() error { return nil }
func (a *Ageing) Reset()       {}

func (a *Ageing) Execute(p *partition.Partition, ctx Context) error {
	for _, label := range a.Categories {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		old := append([]float64(nil), c.Data...)
		n := len(old)
		if n == 0 {
			continue
		}
		next := make([]float64, n)
		for i := 1; i < n; i++ {
			next[i] = old[i-1]
		}
		if c.PlusGroup {
			next[n-1] += old[n-1]
		}
		if a.ErrorMatrix != nil {
			classified, err := a.ErrorMatrix.Apply(next)
			if err != nil {
				return err
			}
			next = classified
		}
		for i, v := range next {
			if err := c.Set(c.MinAge+i, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// Clone returns an independent copy. ErrorMatrix is immutable after
// Build, so it is shared rather than deep-copied.
func (a *Ageing) Clone() Process {
	na := *a
	na.Categories = append([]string(nil), a.Categories...)
	return &na
}
