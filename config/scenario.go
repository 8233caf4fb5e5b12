package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fishmodel/asa/buildlog"
	"github.com/fishmodel/asa/calendar"
	"github.com/fishmodel/asa/estimate"
	"github.com/fishmodel/asa/model"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/selectivity"
)

// BuildModel reads a scenario file and constructs a Model from it,
// following the same per-line "keyword value..." idiom ReadFreeParams
// uses (one keyword per line, fields split on whitespace, blank and
// '#'-prefixed lines skipped). Supported keywords:
//
//	seed <value>
//	calendar <startYear> <finalYear>
//	timestep <label> <process label>...
//	category <label> <minAge> <maxAge> <plusGroup=true|false>
//	selectivity <label> <type> <key=value>...
//	process.null <label>
//	process.mortality_constant <label> <category> <M> [selectivity]
//	process.recruitment_constant <label> <category> <age> <R0>
//	process.ageing <label> <category>
//	estimate.scalar <process label>.<field> <lower> <upper>
//
// This covers the subset of process/selectivity kinds needed to wire a
// runnable single-category model end to end; a scenario needing a
// kind this loader does not recognise should be built programmatically
// against the model/process/selectivity packages directly instead.
//
// Every declared process's Validate and every requested estimate
// binding are checked together through a buildlog.Log, so a scenario
// with several independent mistakes reports all of them in one error
// instead of stopping at the first.
func BuildModel(name string) (*model.Model, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	b := newBuilder()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if err := b.apply(fields); err != nil {
			return nil, fmt.Errorf("on file %q: on line %d: %v", name, ln, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("on file %q: %v", name, err)
	}
	return b.build(name)
}

type timeStepDef struct {
	label     string
	processes []string
}

type builder struct {
	haveYears            bool
	startYear, finalYear int
	seed                 uint64

	categories []*partition.Category
	sels       *selectivity.Registry
	procs      *process.Registry
	timeSteps  []timeStepDef

	// scalarTargets exposes every addressable scalar field a process
	// declared while being built, keyed "<process label>.<field>".
	scalarTargets map[string]*float64
	estimates     []estimateDef
}

type estimateDef struct {
	target       string
	lower, upper float64
}

func newBuilder() *builder {
	return &builder{
		sels:          selectivity.NewRegistry(),
		procs:         process.NewRegistry(),
		scalarTargets: make(map[string]*float64),
	}
}

func (b *builder) apply(f []string) error {
	switch f[0] {
	case "seed":
		v, err := strconv.ParseUint(f[1], 10, 64)
		if err != nil {
			return err
		}
		b.seed = v

	case "calendar":
		if len(f) != 3 {
			return fmt.Errorf("calendar: expecting start and final year")
		}
		start, err := strconv.Atoi(f[1])
		if err != nil {
			return err
		}
		final, err := strconv.Atoi(f[2])
		if err != nil {
			return err
		}
		b.startYear, b.finalYear, b.haveYears = start, final, true

	case "timestep":
		if len(f) < 2 {
			return fmt.Errorf("timestep: expecting a label")
		}
		b.timeSteps = append(b.timeSteps, timeStepDef{label: f[1], processes: append([]string(nil), f[2:]...)})

	case "category":
		if len(f) != 5 {
			return fmt.Errorf("category: expecting label, minAge, maxAge, plusGroup")
		}
		minAge, err := strconv.Atoi(f[2])
		if err != nil {
			return err
		}
		maxAge, err := strconv.Atoi(f[3])
		if err != nil {
			return err
		}
		plusGroup, err := strconv.ParseBool(f[4])
		if err != nil {
			return err
		}
		b.categories = append(b.categories, partition.NewCategory(f[1], minAge, maxAge, plusGroup))

	case "selectivity":
		return b.applySelectivity(f)

	case "process.null":
		if len(f) != 2 {
			return fmt.Errorf("process.null: expecting a label")
		}
		return b.procs.Add(&process.Null{Label_: f[1]})

	case "process.mortality_constant":
		return b.applyMortalityConstant(f)

	case "process.recruitment_constant":
		return b.applyRecruitmentConstant(f)

	case "process.ageing":
		if len(f) != 3 {
			return fmt.Errorf("process.ageing: expecting label and category")
		}
		return b.procs.Add(&process.Ageing{Label_: f[1], Categories: []string{f[2]}})

	case "estimate.scalar":
		if len(f) != 4 {
			return fmt.Errorf("estimate.scalar: expecting target, lower, upper")
		}
		lower, err := strconv.ParseFloat(f[2], 64)
		if err != nil {
			return err
		}
		upper, err := strconv.ParseFloat(f[3], 64)
		if err != nil {
			return err
		}
		b.estimates = append(b.estimates, estimateDef{target: f[1], lower: lower, upper: upper})

	default:
		return fmt.Errorf("unknown keyword %q", f[0])
	}
	return nil
}

func (b *builder) applySelectivity(f []string) error {
	if len(f) < 3 {
		return fmt.Errorf("selectivity: expecting label and type")
	}
	label, typeName := f[1], f[2]
	var p selectivity.Params
	for _, kv := range f[3:] {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("selectivity %q: malformed parameter %q", label, kv)
		}
		key, val := parts[0], parts[1]
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("selectivity %q: parameter %q: %v", label, key, err)
		}
		switch key {
		case "c":
			p.C = v
		case "edge":
			p.Edge = v
		case "a50":
			p.A50 = v
		case "ato95":
			p.Ato95 = v
		case "mean":
			p.Mean = v
		case "std1":
			p.Std1 = v
		case "std2":
			p.Std2 = v
		case "alpha":
			p.Alpha = v
		default:
			return fmt.Errorf("selectivity %q: unknown parameter %q", label, key)
		}
	}
	sel, err := selectivity.New(label, typeName, p)
	if err != nil {
		return err
	}
	return b.sels.Add(sel)
}

func (b *builder) applyMortalityConstant(f []string) error {
	if len(f) < 4 {
		return fmt.Errorf("process.mortality_constant: expecting label, category, M")
	}
	label, category := f[1], f[2]
	m, err := strconv.ParseFloat(f[3], 64)
	if err != nil {
		return err
	}
	proc := &process.MortalityConstantRate{
		Label_:        label,
		Categories:    []string{category},
		M:             map[string]float64{category: m},
		Ratios:        map[string]float64{},
		Selectivities: map[string]string{},
		Resolve: func(l string) (selectivity.Selectivity, error) {
			s, ok := b.sels.Get(l)
			if !ok {
				return nil, fmt.Errorf("unknown selectivity %q", l)
			}
			return s, nil
		},
	}
	if len(f) >= 5 {
		proc.Selectivities[category] = f[4]
	}
	// M lives in a map, which has no addressable entries in Go, so it
	// cannot be registered as a scalarTargets entry; a scenario needing
	// to estimate M should bind an estimate.NewStringMapEntry against
	// proc.M programmatically instead of through this loader.
	return b.procs.Add(proc)
}

func (b *builder) applyRecruitmentConstant(f []string) error {
	if len(f) != 5 {
		return fmt.Errorf("process.recruitment_constant: expecting label, category, age, R0")
	}
	label, category := f[1], f[2]
	age, err := strconv.Atoi(f[3])
	if err != nil {
		return err
	}
	r0, err := strconv.ParseFloat(f[4], 64)
	if err != nil {
		return err
	}
	proc := &process.RecruitmentConstant{
		Label_:      label,
		R0:          r0,
		Proportions: map[string]float64{category: 1},
		Age:         age,
		Categories:  []string{category},
	}
	b.scalarTargets[label+".R0"] = &proc.R0
	return b.procs.Add(proc)
}

func (b *builder) build(name string) (*model.Model, error) {
	if !b.haveYears {
		return nil, fmt.Errorf("on file %q: missing calendar declaration", name)
	}
	if len(b.categories) == 0 {
		return nil, fmt.Errorf("on file %q: missing at least one category", name)
	}

	part, err := partition.New(b.categories)
	if err != nil {
		return nil, err
	}

	cal := calendar.New(b.startYear, b.finalYear)
	for _, ts := range b.timeSteps {
		cal.AddTimeStep(ts.label, ts.processes...)
	}

	m := model.New(cal, part, b.seed)
	m.Selectivities = b.sels
	m.Processes = b.procs

	log := buildlog.New()
	for _, label := range m.Processes.Labels() {
		proc, _ := m.Processes.Get(label)
		if err := proc.Validate(); err != nil {
			log.Fatalf("on file %q: %v", name, err)
		}
	}
	for _, ed := range b.estimates {
		target, ok := b.scalarTargets[ed.target]
		if !ok || target == nil {
			log.Fatalf("on file %q: estimate target %q is not an addressable scalar", name, ed.target)
			continue
		}
		e := estimate.New(ed.target, estimate.NewScalar(ed.target, target), ed.lower, ed.upper)
		if err := m.Estimates.Add(e); err != nil {
			log.Fatalf("on file %q: %v", name, err)
		}
	}
	if err := log.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
