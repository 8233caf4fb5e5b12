// Package process implements the polymorphic process library that
// transforms a Partition inside a time step (spec.md §3, §4.3): every
// variant (recruitment, ageing, mortality, category transition,
// movement, tagging) shares one execute contract and differs only in
// the transformation it applies.
//
// The one-interface-many-variants shape, plus a registry keyed by
// process label, follows the same pattern used for Selectivity
// (cats.Discrete / cats.Parse in the teacher repository): a small
// shared protocol and a concrete struct per variant. This package has
// no type-string factory; config.BuildModel maps each scenario keyword
// to its variant.
package process

import (
	"fmt"

	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/penalty"
	"github.com/fishmodel/asa/rng"
)

// Type classifies what a process does, independent of its concrete
// variant.
type Type string

const (
	Recruitment    Type = "recruitment"
	AgeingType     Type = "ageing"
	Mortality      Type = "mortality"
	TransitionType Type = "transition"
	Other          Type = "other"
)

// Structure is the partition shape a process expects to operate over.
type Structure string

const (
	AgeStructure    Structure = "age"
	LengthStructure Structure = "length"
)

// Context carries everything a process needs to mutate the partition
// for one execution: the current model year, the time step it is
// running within, that time step's ratio (used by constant-rate
// mortality), the initialisation phase label (empty for the main
// cycle), the shared RNG, and an accumulator for process penalties.
type Context struct {
	Year          int
	TimeStep      string
	Ratio         float64
	Phase         string
	IsInitialising bool
	RNG           *rng.Source
	Penalties     *penalty.Registry
}

// Process is the shared contract every process variant implements.
type Process interface {
	// Label is the process's registered name.
	Label() string

	// Type reports the broad process kind.
	Type() Type

	// Structure reports whether the process expects an age- or
	// length-structured partition.
	Structure() Structure

	// Validate checks parameter legality and resolves references.
	// It must be called once, after every referenced entity (other
	// processes, selectivities, categories, penalties) has been
	// registered.
	Validate() error

	// Build links to other objects and pre-computes invariants. It
	// runs once, after Validate succeeds across the whole model.
	Build() error

	// Reset returns internal caches to their validated state, ready
	// for a fresh run (e.g. a repeated estimation evaluation).
	Reset()

	// Execute mutates p for the current year/time-step described by
	// ctx.
	Execute(p *partition.Partition, ctx Context) error

	// Clone returns an independent copy of this process, deep-copying
	// any map or slice an Estimate or Execute call could mutate, so
	// that a worker holding the clone shares no mutable state with the
	// original (spec.md §5: "no shared mutable state is permitted
	// across evaluator invocations").
	Clone() Process
}

// Registry is an ordered, label-keyed collection of processes.
type Registry struct {
	order []string
	byKey map[string]Process
}

// NewRegistry returns an empty process registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Process)}
}

// Add registers p under its own label.
func (r *Registry) Add(p Process) error {
	if _, ok := r.byKey[p.Label()]; ok {
		return fmt.Errorf("process %q: already registered", p.Label())
	}
	r.byKey[p.Label()] = p
	r.order = append(r.order, p.Label())
	return nil
}

// Get looks up a process by label.
func (r *Registry) Get(label string) (Process, bool) {
	p, ok := r.byKey[label]
	return p, ok
}

// Labels returns the registered labels in insertion order.
func (r *Registry) Labels() []string {
	return append([]string(nil), r.order...)
}

// Clone returns a registry holding an independent Clone() of every
// registered process, in the same order.
func (r *Registry) Clone() *Registry {
	nr := &Registry{byKey: make(map[string]Process, len(r.byKey)), order: append([]string(nil), r.order...)}
	for _, label := range r.order {
		nr.byKey[label] = r.byKey[label].Clone()
	}
	return nr
}
