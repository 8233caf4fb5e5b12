// Package model implements the single authoritative state container
// spec.md §3/§9 names: the calendar, the partition, every named-entity
// registry, the objective function, and the shared RNG, threaded
// through the annual-cycle engine, the minimiser and MCMC instead of
// being reached for as package-level globals (spec.md §9 "Global
// mutable state ... confine to a single Model value threaded through
// calls").
package model

import (
	"fmt"

	"github.com/fishmodel/asa/calendar"
	"github.com/fishmodel/asa/cycle"
	"github.com/fishmodel/asa/derivedquantity"
	"github.com/fishmodel/asa/estimate"
	"github.com/fishmodel/asa/objective"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/penalty"
	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/rng"
	"github.com/fishmodel/asa/selectivity"
)

// RunMode selects which of the CLI's top-level modes is driving a
// Model (spec.md §6: "-r basic", "-e estimation", "-m MCMC",
// "-s simulation", "-f projection", "-p profile").
type RunMode int

const (
	Basic RunMode = iota
	Estimation
	MCMCMode
	Simulation
	Projection
	Profile
)

func (m RunMode) String() string {
	switch m {
	case Basic:
		return "basic"
	case Estimation:
		return "estimation"
	case MCMCMode:
		return "mcmc"
	case Simulation:
		return "simulation"
	case Projection:
		return "projection"
	case Profile:
		return "profile"
	}
	return "unknown"
}

// InitPhaseRun bundles the per-phase arguments cycle.Engine.
// ExecuteInitialisation needs, so a Model can drive its configured
// initialisation sequence without the caller re-deriving them each
// time.
type InitPhaseRun struct {
	Phase         calendar.Phase
	AgeSpread     int
	Rescaler      cycle.SSBRescaler
	B0            float64
	SSBAfterCycle func() (float64, error)
}

// Model is the single authoritative object a run is built around: it
// owns the calendar, the partition, every named-entity registry, the
// objective, and the RNG a process or observation requests during
// execution (spec.md §3 "Model state container").
type Model struct {
	Mode RunMode
	Seed uint64

	Calendar          *calendar.Calendar
	Partition         *partition.Partition
	Selectivities     *selectivity.Registry
	Processes         *process.Registry
	Penalties         *penalty.Registry
	DerivedQuantities *derivedquantity.Registry
	Estimates         *estimate.Registry
	Objective         *objective.Objective
	RNG               *rng.Source

	// InitPhases is the ordered sequence of initialisation phases
	// RunFullIteration drives before the main cycle's model years
	// (spec.md §4.2).
	InitPhases []InitPhaseRun

	// CasalCompat enables the initialisation algorithm's extra-cycle
	// CASAL-compatibility fallback (spec.md §4.2 "when casalCompat is
	// set, run one extra cycle").
	CasalCompat bool

	postInit *partition.Partition
}

// New returns a Model wired to an empty set of registries over the
// given calendar and partition, seeded deterministically.
func New(cal *calendar.Calendar, part *partition.Partition, seed uint64) *Model {
	ests := estimate.NewRegistry()
	pens := penalty.NewRegistry()
	return &Model{
		Mode:              Basic,
		Seed:              seed,
		Calendar:          cal,
		Partition:         part,
		Selectivities:     selectivity.NewRegistry(),
		Processes:         process.NewRegistry(),
		Penalties:         pens,
		DerivedQuantities: derivedquantity.NewRegistry(),
		Estimates:         ests,
		Objective:         objective.New(ests, pens),
		RNG:               rng.New(seed),
	}
}

// Engine returns a cycle.Engine wired to this Model's calendar,
// partition, processes, penalties and RNG.
func (m *Model) Engine() *cycle.Engine {
	return cycle.New(m.Calendar, m.Partition, m.Processes, m.Penalties, m.RNG)
}

// RunFullIteration drives the configured initialisation phases in
// order, snapshots the resulting partition as the Reset baseline, then
// executes every model year of the main cycle once (spec.md §4.2, §4.5
// "recomputed after every full partition iteration"). Penalty
// accumulators are cleared first so that every process penalty
// triggered during this call belongs to exactly this iteration (spec.md
// §3: a penalty "accumulates ... across a single full partition
// iteration").
func (m *Model) RunFullIteration() error {
	m.Penalties.ResetAll()
	e := m.Engine()

	for _, ip := range m.InitPhases {
		if err := e.ExecuteInitialisation(ip.Phase, ip.AgeSpread, ip.Rescaler, ip.B0, ip.SSBAfterCycle, m.CasalCompat); err != nil {
			return fmt.Errorf("model: initialisation phase %q: %w", ip.Phase.Label, err)
		}
	}
	m.postInit = m.Partition.Clone()

	first, last := m.Calendar.Years()
	for year := first; year <= last; year++ {
		if err := e.ExecuteYear(year, ""); err != nil {
			return fmt.Errorf("model: year %d: %w", year, err)
		}
	}
	return nil
}

// Reset restores the partition to the snapshot RunFullIteration took
// immediately after initialisation, and returns every process and
// derived quantity to its validated/reset state, readying the Model
// for another full iteration under different estimate values (spec.md
// §8 R1: "Reset after Reset returns the partition to the
// post-initialisation snapshot unchanged").
func (m *Model) Reset() error {
	if m.postInit == nil {
		return fmt.Errorf("model: Reset called before any RunFullIteration")
	}
	m.Partition.Restore(m.postInit)
	m.Penalties.ResetAll()
	for _, label := range m.Processes.Labels() {
		if p, ok := m.Processes.Get(label); ok {
			p.Reset()
		}
	}
	for _, label := range m.DerivedQuantities.Labels() {
		if dq, ok := m.DerivedQuantities.Get(label); ok {
			dq.Reset()
		}
	}
	return nil
}

// Clone returns an independent Model suitable for a private worker's
// objective evaluation (spec.md §5: "each thread owns a private Model
// clone; no shared mutable state is permitted across evaluator
// invocations"), mirroring how diffusion.New copies a source tree into
// an independent one before mutating per-node caches.
//
// Clone isolates partition state, the process registry (and therefore
// every process's own mutable fields an Estimate's Addressable could
// write through), penalties and derived quantities, and derives an
// independent RNG sub-stream keyed by workerIndex. The calendar and
// selectivity registry are immutable after build and are shared rather
// than copied.
//
// Clone does NOT rebuild the Estimates registry or the Objective's
// Observation list against the clone's copies: those still address the
// original Model's process fields. Clone is sufficient for read-only
// parallel evaluation that never writes through an Estimate bound to
// the original (e.g. a profile-likelihood grid that only reads derived
// quantities back out); a caller that needs the minimiser or MCMC
// itself to run concurrently against independently-writable estimates
// must re-resolve its Addressables against the clone's Processes
// registry before use.
func (m *Model) Clone(workerIndex uint64) *Model {
	return &Model{
		Mode:              m.Mode,
		Seed:              m.Seed,
		Calendar:          m.Calendar,
		Partition:         m.Partition.Clone(),
		Selectivities:     m.Selectivities,
		Processes:         m.Processes.Clone(),
		Penalties:         m.Penalties.Clone(),
		DerivedQuantities: m.DerivedQuantities.Clone(),
		Estimates:         m.Estimates,
		Objective:         m.Objective,
		RNG:               m.RNG.Sub(workerIndex),
		InitPhases:        append([]InitPhaseRun(nil), m.InitPhases...),
		CasalCompat:       m.CasalCompat,
		postInit:          m.postInit,
	}
}
