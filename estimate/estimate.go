// Package estimate implements the addressable parameter store and
// estimable-parameter bookkeeping described in spec.md §4.5: an
// Addressable generalises a single scalar field into four arms (scalar,
// vector, string-keyed map, unsigned-keyed map) labelled with a
// `block[label].param{index}`-style path, and an Estimate wraps one
// Addressable with bounds, a Transformation and a Prior.
//
// The path is a label only: each constructor binds its Addressable
// directly to the target value, and the package does no path parsing
// and reads no parameter file.
package estimate

import (
	"fmt"

	"github.com/fishmodel/asa/modelerr"
)

// Kind identifies which of the four addressable arms backs a value.
type Kind int

const (
	Scalar Kind = iota
	Vector
	StringMap
	UintMap
)

// Addressable is a generalised handle onto a mutable float64, a
// []float64 element, a map[string]float64 entry or a map[uint]float64
// entry, bound by its constructor and reused for every subsequent
// read/write (spec.md §4.5 Addressability). Path holds the
// `block[label].param{index}` label for reporting and is not parsed.
type Addressable struct {
	Path string
	kind Kind

	scalar    *float64
	vector    []float64
	vectorIdx int
	strMap    map[string]float64
	strKey    string
	uintMap   map[uint]float64
	uintKey   uint
}

// NewScalar returns an Addressable bound to *p.
func NewScalar(path string, p *float64) *Addressable {
	return &Addressable{Path: path, kind: Scalar, scalar: p}
}

// NewVectorElement returns an Addressable bound to v[idx-1] — vectors
// index from 1 in the configuration syntax (spec.md §4.5).
func NewVectorElement(path string, v []float64, idx int) (*Addressable, error) {
	if idx < 1 || idx > len(v) {
		return nil, modelerr.Configurationf("estimate %q: vector index %d out of range [1,%d]", path, idx, len(v))
	}
	return &Addressable{Path: path, kind: Vector, vector: v, vectorIdx: idx - 1}, nil
}

// NewStringMapEntry returns an Addressable bound to m[key].
func NewStringMapEntry(path string, m map[string]float64, key string) *Addressable {
	return &Addressable{Path: path, kind: StringMap, strMap: m, strKey: key}
}

// NewUintMapEntry returns an Addressable bound to m[key].
func NewUintMapEntry(path string, m map[uint]float64, key uint) *Addressable {
	return &Addressable{Path: path, kind: UintMap, uintMap: m, uintKey: key}
}

// Kind reports which arm backs this Addressable.
func (a *Addressable) Kind() Kind { return a.kind }

// Get reads the current natural-scale value.
func (a *Addressable) Get() float64 {
	switch a.kind {
	case Scalar:
		return *a.scalar
	case Vector:
		return a.vector[a.vectorIdx]
	case StringMap:
		return a.strMap[a.strKey]
	case UintMap:
		return a.uintMap[a.uintKey]
	}
	panic("estimate: unknown addressable kind")
}

// Set writes the natural-scale value.
func (a *Addressable) Set(v float64) {
	switch a.kind {
	case Scalar:
		*a.scalar = v
	case Vector:
		a.vector[a.vectorIdx] = v
	case StringMap:
		a.strMap[a.strKey] = v
	case UintMap:
		a.uintMap[a.uintKey] = v
	default:
		panic("estimate: unknown addressable kind")
	}
}

// Estimate is one estimable parameter: an Addressable, its bounds, the
// transformation the minimiser reads/writes through, its prior, and the
// labels of any other estimates whose value must mirror this one
// (spec.md §4.5 "write triggers propagation to every `same`").
type Estimate struct {
	Label          string
	Target         *Addressable
	LowerBound     float64
	UpperBound     float64
	Transformation Transformation
	Prior          Prior

	// Enabled marks whether the minimiser varies this estimate at all;
	// a disabled estimate stays at its configured starting value.
	Enabled bool

	// MCMCFixed marks an estimate the minimiser varies but MCMC holds
	// fixed at the minimiser's solution (spec.md §4.5 "mcmc_fixed").
	MCMCFixed bool

	sameLinks []*Estimate
}

// New returns an Estimate with an identity transformation and no
// prior, ready for further configuration.
func New(label string, target *Addressable, lower, upper float64) *Estimate {
	return &Estimate{Label: label, Target: target, LowerBound: lower, UpperBound: upper, Transformation: Identity{}, Enabled: true}
}

// Link registers other as a same-link: every SetNatural call on this
// Estimate also writes to other's Addressable.
func (e *Estimate) Link(other *Estimate) {
	e.sameLinks = append(e.sameLinks, other)
}

// SetNatural bound-checks and writes v (a natural-scale value) to this
// Estimate's Addressable and to every linked same-estimate.
func (e *Estimate) SetNatural(v float64) error {
	if v < e.LowerBound || v > e.UpperBound {
		return modelerr.Boundsf("estimate %q: value %v outside bounds [%v,%v]", e.Label, v, e.LowerBound, e.UpperBound)
	}
	e.Target.Set(v)
	for _, other := range e.sameLinks {
		if err := other.SetNatural(v); err != nil {
			return err
		}
	}
	return nil
}

// Natural returns the current natural-scale value.
func (e *Estimate) Natural() float64 {
	return e.Target.Get()
}

// SetTransformed un-transforms v and writes it via SetNatural — the
// path the minimiser uses (spec.md §4.5: "inverse transform restores
// the natural-scale value before any partition execution").
func (e *Estimate) SetTransformed(v float64) error {
	return e.SetNatural(e.Transformation.Untransform(v))
}

// Transformed returns the current value on the minimiser's transformed
// scale.
func (e *Estimate) Transformed() float64 {
	return e.Transformation.Transform(e.Natural())
}

// PriorScore returns -log P(value) under this estimate's prior, or 0
// if no prior is configured.
func (e *Estimate) PriorScore() float64 {
	if e.Prior == nil {
		return 0
	}
	return e.Prior.NegLogDensity(e.Natural())
}

// Registry is an ordered, label-keyed collection of estimates.
type Registry struct {
	order []string
	byKey map[string]*Estimate
}

// NewRegistry returns an empty estimate registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]*Estimate)}
}

// Add registers e under its own label.
func (r *Registry) Add(e *Estimate) error {
	if _, ok := r.byKey[e.Label]; ok {
		return fmt.Errorf("estimate %q: already registered", e.Label)
	}
	r.byKey[e.Label] = e
	r.order = append(r.order, e.Label)
	return nil
}

// Get looks up an estimate by label.
func (r *Registry) Get(label string) (*Estimate, bool) {
	e, ok := r.byKey[label]
	return e, ok
}

// Labels returns the registered labels in insertion order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// Enabled returns every registered estimate with Enabled set, in
// order — the list a minimiser operates on (spec.md §4.6 "a list of
// enabled estimates").
func (r *Registry) Enabled() []*Estimate {
	out := make([]*Estimate, 0, len(r.order))
	for _, l := range r.order {
		if e := r.byKey[l]; e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

// MCMCFree returns every enabled estimate not marked MCMCFixed — the
// subset MCMC actually varies (spec.md §4.5 "mcmc_fixed").
func (r *Registry) MCMCFree() []*Estimate {
	out := make([]*Estimate, 0, len(r.order))
	for _, l := range r.order {
		e := r.byKey[l]
		if e.Enabled && !e.MCMCFixed {
			out = append(out, e)
		}
	}
	return out
}
