// Package calendar implements the model calendar: the run of years,
// the ordered time steps within a year, and the per-initialisation-phase
// process-order overrides described in spec.md §3 (Model Calendar).
//
// The package holds the calendar in memory only; it does no file
// reading or writing.
package calendar

import (
	"fmt"
)

// TimeStep is one ordered container of process labels inside a model
// year.
type TimeStep struct {
	Label     string
	Processes []string
}

// Phase is an initialisation phase: it runs the annual cycle using its
// own process order per time step, optionally inserting or excluding
// processes relative to the main cycle. The number of years run is set
// by cycle.ExecuteInitialisation (the age spread, then convergence
// checks); Repeats is not read by the engine.
type Phase struct {
	Label   string
	Repeats int

	// Insertions maps a time step label to a list of
	// (anchor-process, before|after, new-process) insertions applied
	// to that time step's process order for the duration of the
	// phase.
	Insertions map[string][]Insertion

	// Exclusions lists process labels removed from the main cycle's
	// time steps for the duration of the phase.
	Exclusions map[string][]string
}

// Insertion describes inserting NewProcess immediately before or after
// Anchor in a time step's process list.
type Insertion struct {
	Anchor     string
	After      bool
	NewProcess string
}

// Calendar is the ordered run of years and time steps for a model.
type Calendar struct {
	StartYear         int
	FinalYear         int
	ProjectionFinal   int // 0 means "no projection"
	TimeSteps         []TimeStep
	InitialisationSeq []Phase
}

// New returns a Calendar spanning [startYear, finalYear] with no time
// steps or initialisation phases defined.
func New(startYear, finalYear int) *Calendar {
	return &Calendar{StartYear: startYear, FinalYear: finalYear}
}

// AddTimeStep appends a time step with the given process label order.
func (c *Calendar) AddTimeStep(label string, processes ...string) {
	c.TimeSteps = append(c.TimeSteps, TimeStep{Label: label, Processes: append([]string(nil), processes...)})
}

// AddPhase appends an initialisation phase.
func (c *Calendar) AddPhase(p Phase) {
	c.InitialisationSeq = append(c.InitialisationSeq, p)
}

// Years returns the inclusive model year range, including any
// projection extension.
func (c *Calendar) Years() (first, last int) {
	last = c.FinalYear
	if c.ProjectionFinal > last {
		last = c.ProjectionFinal
	}
	return c.StartYear, last
}

// Phase looks up an initialisation phase by label.
func (c *Calendar) Phase(label string) (Phase, bool) {
	for _, p := range c.InitialisationSeq {
		if p.Label == label {
			return p, true
		}
	}
	return Phase{}, false
}

// TimeStep looks up a time step by label.
func (c *Calendar) TimeStep(label string) (TimeStep, bool) {
	for _, ts := range c.TimeSteps {
		if ts.Label == label {
			return ts, true
		}
	}
	return TimeStep{}, false
}

// ProcessOrder returns the process label order for a time step during a
// given initialisation phase (or the main cycle order when phase is
// empty), applying that phase's insertions and exclusions.
func (c *Calendar) ProcessOrder(timeStepLabel, phaseLabel string) ([]string, error) {
	ts, ok := c.TimeStep(timeStepLabel)
	if !ok {
		return nil, fmt.Errorf("calendar: unknown time step %q", timeStepLabel)
	}
	order := append([]string(nil), ts.Processes...)
	if phaseLabel == "" {
		return order, nil
	}
	ph, ok := c.Phase(phaseLabel)
	if !ok {
		return nil, fmt.Errorf("calendar: unknown initialisation phase %q", phaseLabel)
	}
	for _, excl := range ph.Exclusions[timeStepLabel] {
		order = removeLabel(order, excl)
	}
	for _, ins := range ph.Insertions[timeStepLabel] {
		order = insertLabel(order, ins)
	}
	return order, nil
}

func removeLabel(order []string, label string) []string {
	out := order[:0]
	for _, p := range order {
		if p != label {
			out = append(out, p)
		}
	}
	return out
}

func insertLabel(order []string, ins Insertion) []string {
	idx := -1
	for i, p := range order {
		if p == ins.Anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return append(order, ins.NewProcess)
	}
	if ins.After {
		idx++
	}
	out := make([]string, 0, len(order)+1)
	out = append(out, order[:idx]...)
	out = append(out, ins.NewProcess)
	out = append(out, order[idx:]...)
	return out
}
