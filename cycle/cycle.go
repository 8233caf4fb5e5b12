// Package cycle implements the Annual-Cycle Engine (spec.md §4.2): it
// drives a Partition through a Calendar's ordered time steps and
// processes, runs the initialisation algorithm to equilibrium, and
// notifies observers around each process execution.
//
// The ordered-event-with-pre/post-hooks shape follows
// diffusion.Tree.DownPass/UpPass: a fixed traversal order, with
// observer callbacks fired immediately before and after each visited
// node (here, each process execution).
package cycle

import (
	"fmt"
	"math"

	"github.com/fishmodel/asa/calendar"
	"github.com/fishmodel/asa/modelerr"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/penalty"
	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/rng"
)

// Hook is a callback fired around a process execution. Event carries
// the year, time step, phase and process label the hook is firing for.
type Hook func(event Event)

// Event describes one point in the engine's traversal an observer can
// subscribe to.
type Event struct {
	Year     int
	TimeStep string
	Phase    string
	Process  string
	Pre      bool // true for pre_execute, false for post_execute
}

// Engine drives a Partition through a Calendar, invoking processes in
// their declared order.
type Engine struct {
	Calendar  *calendar.Calendar
	Partition *partition.Partition
	Processes *process.Registry
	Penalties *penalty.Registry
	RNG       *rng.Source

	// TimeStepHooks and ProcessHooks fire around every time step / process
	// execution respectively, in registration order.
	TimeStepHooks []Hook
	ProcessHooks  []Hook

	// MortalityBlockHooks fire after every mortality-typed process
	// inside a time step, with Event.Process naming the
	// process just completed and Event.Pre always false (spec.md §4.2:
	// "a mortality block ... recognised so derived quantities ... can
	// sample fraction-of-time between pre- and post-mortality state").
	MortalityBlockHooks []Hook
}

// New returns an Engine wired to the given components.
func New(cal *calendar.Calendar, p *partition.Partition, procs *process.Registry, pens *penalty.Registry, r *rng.Source) *Engine {
	return &Engine{Calendar: cal, Partition: p, Processes: procs, Penalties: pens, RNG: r}
}

func (e *Engine) fireTimeStep(ev Event) {
	for _, h := range e.TimeStepHooks {
		h(ev)
	}
}

func (e *Engine) fireProcess(ev Event) {
	for _, h := range e.ProcessHooks {
		h(ev)
	}
}

func (e *Engine) fireMortalityBlock(ev Event) {
	for _, h := range e.MortalityBlockHooks {
		h(ev)
	}
}

// ExecuteYear runs every time step of the calendar, in order, for the
// given year. phase is empty for the main cycle, or an initialisation
// phase label whose insertions/exclusions and process-order override
// apply.
func (e *Engine) ExecuteYear(year int, phase string) error {
	for _, ts := range e.Calendar.TimeSteps {
		if err := e.executeTimeStep(year, ts.Label, phase); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) executeTimeStep(year int, timeStepLabel, phase string) error {
	order, err := e.Calendar.ProcessOrder(timeStepLabel, phase)
	if err != nil {
		return err
	}

	e.fireTimeStep(Event{Year: year, TimeStep: timeStepLabel, Phase: phase, Pre: true})
	defer e.fireTimeStep(Event{Year: year, TimeStep: timeStepLabel, Phase: phase, Pre: false})

	inMortalityBlock := false
	for _, label := range order {
		proc, ok := e.Processes.Get(label)
		if !ok {
			return modelerr.Configurationf("cycle: time step %q references unknown process %q", timeStepLabel, label)
		}

		ev := Event{Year: year, TimeStep: timeStepLabel, Phase: phase, Process: label}
		ev.Pre = true
		e.fireProcess(ev)

		ctx := process.Context{
			Year:           year,
			TimeStep:       timeStepLabel,
			Phase:          phase,
			IsInitialising: phase != "",
			RNG:            e.RNG,
			Penalties:      e.Penalties,
		}
		if err := proc.Execute(e.Partition, ctx); err != nil {
			return fmt.Errorf("cycle: year %d, time step %q, process %q: %w", year, timeStepLabel, label, err)
		}

		ev.Pre = false
		e.fireProcess(ev)

		isMortality := proc.Type() == process.Mortality
		if isMortality {
			inMortalityBlock = true
			e.fireMortalityBlock(ev)
		} else if inMortalityBlock {
			inMortalityBlock = false
		}
	}
	return nil
}

// hasAgeing reports whether the given process order contains at least
// one ageing process.
func (e *Engine) hasAgeing(order []string) bool {
	for _, label := range order {
		if proc, ok := e.Processes.Get(label); ok && proc.Type() == process.AgeingType {
			return true
		}
	}
	return false
}

// plusGroupDeltas returns, per category, the relative change in that
// category's plus-group value between before and after snapshots
// (spec.md §4.2 step 2: "the per-year multiplicative change c ...
// estimated per category").
func plusGroupDeltas(before, after *partition.Partition) map[string]float64 {
	deltas := make(map[string]float64)
	for _, label := range after.Labels() {
		ac, err := after.Category(label)
		if err != nil {
			continue
		}
		if !ac.PlusGroup {
			continue
		}
		bc, err := before.Category(label)
		if err != nil {
			continue
		}
		bv, _ := bc.At(bc.MaxAge)
		av, _ := ac.At(ac.MaxAge)
		if bv == 0 {
			if av != 0 {
				deltas[label] = 1
			}
			continue
		}
		deltas[label] = math.Abs(av-bv) / bv
	}
	return deltas
}

// maxDelta returns the largest value in a per-category delta map, used
// for the step-3 convergence check (spec.md §4.2: "the max relative
// plus-group change across categories").
func maxDelta(deltas map[string]float64) float64 {
	var m float64
	for _, d := range deltas {
		if d > m {
			m = d
		}
	}
	return m
}

// scalePlusGroup multiplies each category's plus-group value by its
// own factor from factors, in place. A category absent from factors
// (or not a plus group) is left untouched.
func scalePlusGroup(p *partition.Partition, factors map[string]float64) error {
	for label, factor := range factors {
		c, err := p.Category(label)
		if err != nil {
			return err
		}
		if !c.PlusGroup {
			continue
		}
		v, _ := c.At(c.MaxAge)
		if err := c.Set(c.MaxAge, v*factor); err != nil {
			return err
		}
	}
	return nil
}

// SSBRescaler is implemented by a recruitment process that can report
// and accept a B0 rescale (only RecruitmentBevertonHolt does).
type SSBRescaler interface {
	SetScaled(bool)
}

// ExecuteInitialisation runs phase's process order to equilibrium,
// following the four-step algorithm in spec.md §4.2.
//
//  1. Run the cycle for an age-spread number of years (minus one if
//     the phase's first time step runs a recruitment process before any
//     ageing process — the cohort seeded in year one has already
//     completed its first age transition by the time the shortcut step
//     begins).
//  2. Plus-group shortcut: snapshot, run one more cycle, estimate the
//     per-category multiplicative change c in the plus group, clamp to
//     [0,0.99], restore the snapshot, then scale the plus group by
//     1/(1-c).
//  3. Loop running one cycle at a time until the max relative
//     plus-group change across categories drops below 0.5%.
//  4. If rescaler is non-nil (a B0-declared Beverton-Holt recruitment
//     is in play), rescale the whole partition so that ssbAfterCycle
//     equals b0 once more cycle has run; when casalCompat is set, run one
//     extra cycle and then restore the pre-cycle snapshot.
func (e *Engine) ExecuteInitialisation(phase calendar.Phase, ageSpread int, rescaler SSBRescaler, b0 float64, ssbAfterCycle func() (float64, error), casalCompat bool) error {
	year := 0 // initialisation years are relative; callers map to a display year if needed

	years := ageSpread
	if len(e.Calendar.TimeSteps) > 0 {
		order, err := e.Calendar.ProcessOrder(e.Calendar.TimeSteps[0].Label, phase.Label)
		if err != nil {
			return err
		}
		for _, label := range order {
			proc, ok := e.Processes.Get(label)
			if !ok {
				continue
			}
			if proc.Type() == process.Recruitment {
				years--
				break
			}
			if proc.Type() == process.AgeingType {
				break
			}
		}
	}
	if years < 0 {
		years = 0
	}

	hasAnyAgeing := false
	for _, ts := range e.Calendar.TimeSteps {
		order, err := e.Calendar.ProcessOrder(ts.Label, phase.Label)
		if err != nil {
			return err
		}
		if e.hasAgeing(order) {
			hasAnyAgeing = true
			break
		}
	}
	if !hasAnyAgeing {
		return modelerr.Configurationf("cycle: initialisation phase %q has no ageing process", phase.Label)
	}

	for i := 0; i < years; i++ {
		if err := e.ExecuteYear(year, phase.Label); err != nil {
			return err
		}
	}

	// Step 2: plus-group shortcut.
	snapshot := e.Partition.Clone()
	if err := e.ExecuteYear(year, phase.Label); err != nil {
		return err
	}
	deltas := plusGroupDeltas(snapshot, e.Partition)
	factors := make(map[string]float64, len(deltas))
	for label, c := range deltas {
		if c < 0 {
			c = 0
		}
		if c > 0.99 {
			c = 0.99
		}
		factors[label] = 1 / (1 - c)
	}
	e.Partition.Restore(snapshot)
	if err := scalePlusGroup(e.Partition, factors); err != nil {
		return err
	}

	// Step 3: converge.
	const tolerance = 0.005
	const maxIterations = 10000
	for i := 0; i < maxIterations; i++ {
		before := e.Partition.Clone()
		if err := e.ExecuteYear(year, phase.Label); err != nil {
			return err
		}
		delta := maxDelta(plusGroupDeltas(before, e.Partition))
		if delta < tolerance {
			break
		}
	}

	// Step 4: B0 rescale.
	if rescaler != nil && ssbAfterCycle != nil {
		preCycle := e.Partition.Clone()
		if err := e.ExecuteYear(year, phase.Label); err != nil {
			return err
		}
		ssb, err := ssbAfterCycle()
		if err != nil {
			return err
		}
		if ssb <= 0 {
			return modelerr.Numericalf("cycle: initialisation phase %q produced non-positive SSB %v", phase.Label, ssb)
		}
		factor := b0 / ssb
		e.Partition.Restore(preCycle)
		for _, label := range e.Partition.Labels() {
			cat, err := e.Partition.Category(label)
			if err != nil {
				return err
			}
			for age := cat.MinAge; age <= cat.MaxAge; age++ {
				v, _ := cat.At(age)
				if err := cat.Set(age, v*factor); err != nil {
					return err
				}
			}
		}
		rescaler.SetScaled(true)

		if casalCompat {
			extraSnapshot := e.Partition.Clone()
			if err := e.ExecuteYear(year, phase.Label); err != nil {
				return err
			}
			e.Partition.Restore(extraSnapshot)
		}
	}

	return nil
}
