// Package partition implements the structured population state every
// process reads from or writes to: a keyed collection of Category
// objects, each holding a numbers-at-age (or -length) vector and
// per-timestep caches of mean length, mean weight, CV, and age-length
// matrices (spec.md §3, §4.1).
//
// The recursive, owned-map-of-entities shape (a Partition owning
// Categories by label, each Category its own per-stage caches) follows
// pruning.Tree/pruning.node: a map of owned child state built once at
// construction, then mutated in place by later passes.
package partition

import (
	"fmt"

	"github.com/fishmodel/asa/modelerr"
)

// stepAgeKey indexes a per-(time step, age) cache entry.
type stepAgeKey struct {
	step string
	age  int
}

// yearStepAgeKey indexes a per-(year, time step, age) cache entry.
type yearStepAgeKey struct {
	year int
	step string
	age  int
}

// Category is one labelled subset of the population sharing
// demographics: an age range [MinAge,MaxAge] (or length-bin range), an
// optional plus-group flag, and the numbers-at-age vector.
type Category struct {
	Label     string
	MinAge    int
	MaxAge    int
	PlusGroup bool

	// Data is numbers-at-age, indexed from 0 == MinAge.
	Data []float64

	meanLength map[stepAgeKey]float64
	meanWeight map[stepAgeKey]float64
	cv         map[yearStepAgeKey]float64

	// ageLengthMatrix[age-MinAge] is the probability row over length
	// bins for that age, rebuilt per execution year/timestep.
	ageLengthMatrix [][]float64
}

// NewCategory returns a Category spanning [minAge,maxAge] with a
// zeroed numbers vector.
func NewCategory(label string, minAge, maxAge int, plusGroup bool) *Category {
	return &Category{
		Label:      label,
		MinAge:     minAge,
		MaxAge:     maxAge,
		PlusGroup:  plusGroup,
		Data:       make([]float64, maxAge-minAge+1),
		meanLength: make(map[stepAgeKey]float64),
		meanWeight: make(map[stepAgeKey]float64),
		cv:         make(map[yearStepAgeKey]float64),
	}
}

// Spread returns the number of age (or length) bins.
func (c *Category) Spread() int {
	return c.MaxAge - c.MinAge + 1
}

// offset translates a model age into a category-local index.
func (c *Category) offset(age int) (int, error) {
	i := age - c.MinAge
	if i < 0 || i >= len(c.Data) {
		return 0, fmt.Errorf("category %q: age %d outside [%d,%d]", c.Label, age, c.MinAge, c.MaxAge)
	}
	return i, nil
}

// At returns the numbers at the given age.
func (c *Category) At(age int) (float64, error) {
	i, err := c.offset(age)
	if err != nil {
		return 0, err
	}
	return c.Data[i], nil
}

// Set assigns the numbers at the given age. A negative value is fatal
// (spec.md §4.1: "Any negative value produced by a process is fatal").
func (c *Category) Set(age int, v float64) error {
	i, err := c.offset(age)
	if err != nil {
		return err
	}
	if v < 0 {
		return modelerr.Numericalf("category %q: negative value %v at age %d", c.Label, v, age)
	}
	c.Data[i] = v
	return nil
}

// Add adds delta to the numbers at the given age and returns the fatal
// error produced by Set if the result is negative.
func (c *Category) Add(age int, delta float64) error {
	v, err := c.At(age)
	if err != nil {
		return err
	}
	return c.Set(age, v+delta)
}

// SetMeanLength records the mean length at (timeStep, age).
func (c *Category) SetMeanLength(timeStep string, age int, v float64) {
	c.meanLength[stepAgeKey{timeStep, age}] = v
}

// MeanLength looks up the mean length at (timeStep, age).
func (c *Category) MeanLength(timeStep string, age int) (float64, bool) {
	v, ok := c.meanLength[stepAgeKey{timeStep, age}]
	return v, ok
}

// SetMeanWeight records the mean weight at (timeStep, age).
func (c *Category) SetMeanWeight(timeStep string, age int, v float64) {
	c.meanWeight[stepAgeKey{timeStep, age}] = v
}

// MeanWeight looks up the mean weight at (timeStep, age).
func (c *Category) MeanWeight(timeStep string, age int) (float64, bool) {
	v, ok := c.meanWeight[stepAgeKey{timeStep, age}]
	return v, ok
}

// SetCV records the length-at-age CV at (year, timeStep, age).
func (c *Category) SetCV(year int, timeStep string, age int, v float64) {
	c.cv[yearStepAgeKey{year, timeStep, age}] = v
}

// CV looks up the length-at-age CV at (year, timeStep, age).
func (c *Category) CV(year int, timeStep string, age int) (float64, bool) {
	v, ok := c.cv[yearStepAgeKey{year, timeStep, age}]
	return v, ok
}

// SetAgeLengthRow sets the age-length probability row for the given
// age, over however many length bins the caller is using.
func (c *Category) SetAgeLengthRow(age int, row []float64) error {
	i, err := c.offset(age)
	if err != nil {
		return err
	}
	if c.ageLengthMatrix == nil {
		c.ageLengthMatrix = make([][]float64, len(c.Data))
	}
	c.ageLengthMatrix[i] = append([]float64(nil), row...)
	return nil
}

// AgeLengthRow returns the age-length probability row for the given
// age.
func (c *Category) AgeLengthRow(age int) ([]float64, error) {
	i, err := c.offset(age)
	if err != nil {
		return nil, err
	}
	if c.ageLengthMatrix == nil || c.ageLengthMatrix[i] == nil {
		return nil, fmt.Errorf("category %q: age-length matrix not built for age %d", c.Label, age)
	}
	return c.ageLengthMatrix[i], nil
}

// AgeLengthMatrix returns every built row, in age order.
func (c *Category) AgeLengthMatrix() [][]float64 {
	return c.ageLengthMatrix
}

// Clone returns a deep copy of the category, including its numbers
// vector and caches. Used to snapshot the partition for the cached
// "start of time step" view and for the post-initialisation reset
// snapshot.
func (c *Category) Clone() *Category {
	nc := &Category{
		Label:      c.Label,
		MinAge:     c.MinAge,
		MaxAge:     c.MaxAge,
		PlusGroup:  c.PlusGroup,
		Data:       append([]float64(nil), c.Data...),
		meanLength: make(map[stepAgeKey]float64, len(c.meanLength)),
		meanWeight: make(map[stepAgeKey]float64, len(c.meanWeight)),
		cv:         make(map[yearStepAgeKey]float64, len(c.cv)),
	}
	for k, v := range c.meanLength {
		nc.meanLength[k] = v
	}
	for k, v := range c.meanWeight {
		nc.meanWeight[k] = v
	}
	for k, v := range c.cv {
		nc.cv[k] = v
	}
	if c.ageLengthMatrix != nil {
		nc.ageLengthMatrix = make([][]float64, len(c.ageLengthMatrix))
		for i, row := range c.ageLengthMatrix {
			nc.ageLengthMatrix[i] = append([]float64(nil), row...)
		}
	}
	return nc
}

// Partition is a mapping from category label to Category, ordered by
// insertion.
type Partition struct {
	order []string
	cats  map[string]*Category
}

// New builds a Partition from the given categories. It is a
// configuration error for two categories to share a label, or for a
// category's age range to differ from the first one registered ("all
// categories share the model min/max age").
func New(cats []*Category) (*Partition, error) {
	p := &Partition{cats: make(map[string]*Category, len(cats))}
	var minAge, maxAge int
	for i, c := range cats {
		if _, ok := p.cats[c.Label]; ok {
			return nil, modelerr.Configurationf("partition: duplicate category label %q", c.Label)
		}
		if i == 0 {
			minAge, maxAge = c.MinAge, c.MaxAge
		} else if c.MinAge != minAge || c.MaxAge != maxAge {
			return nil, modelerr.Configurationf("partition: category %q age range [%d,%d] does not match model range [%d,%d]", c.Label, c.MinAge, c.MaxAge, minAge, maxAge)
		}
		p.cats[c.Label] = c
		p.order = append(p.order, c.Label)
	}
	return p, nil
}

// Labels returns every registered category label, in insertion order.
func (p *Partition) Labels() []string {
	return append([]string(nil), p.order...)
}

// Category looks up a category by label.
func (p *Partition) Category(label string) (*Category, error) {
	c, ok := p.cats[label]
	if !ok {
		return nil, modelerr.Configurationf("partition: unknown category %q", label)
	}
	return c, nil
}

// Clone returns a deep copy of the whole partition.
func (p *Partition) Clone() *Partition {
	np := &Partition{
		order: append([]string(nil), p.order...),
		cats:  make(map[string]*Category, len(p.cats)),
	}
	for k, c := range p.cats {
		np.cats[k] = c.Clone()
	}
	return np
}

// Restore overwrites every category's data and caches in place from a
// snapshot returned by Clone, preserving the receiver's own Category
// pointers so that components holding a *Category or *Partition
// reference observe the restored state (used by the initialisation
// algorithm's snapshot/restore steps, which must not replace identity
// that other components have already captured).
func (p *Partition) Restore(snapshot *Partition) {
	for _, label := range p.order {
		dst, ok := p.cats[label]
		if !ok {
			continue
		}
		src, ok := snapshot.cats[label]
		if !ok {
			continue
		}
		copy(dst.Data, src.Data)
		dst.meanLength = make(map[stepAgeKey]float64, len(src.meanLength))
		for k, v := range src.meanLength {
			dst.meanLength[k] = v
		}
		dst.meanWeight = make(map[stepAgeKey]float64, len(src.meanWeight))
		for k, v := range src.meanWeight {
			dst.meanWeight[k] = v
		}
		dst.cv = make(map[yearStepAgeKey]float64, len(src.cv))
		for k, v := range src.cv {
			dst.cv[k] = v
		}
		if src.ageLengthMatrix != nil {
			dst.ageLengthMatrix = make([][]float64, len(src.ageLengthMatrix))
			for i, row := range src.ageLengthMatrix {
				dst.ageLengthMatrix[i] = append([]float64(nil), row...)
			}
		} else {
			dst.ageLengthMatrix = nil
		}
	}
}

// TotalAt sums the numbers at the given age across every category.
func (p *Partition) TotalAt(age int) float64 {
	var sum float64
	for _, label := range p.order {
		v, err := p.cats[label].At(age)
		if err == nil {
			sum += v
		}
	}
	return sum
}
