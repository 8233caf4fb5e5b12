package cycle_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/calendar"
	"github.com/fishmodel/asa/cycle"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/penalty"
	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/rng"
)

func buildEngine(t *testing.T, maxAge int) (*cycle.Engine, *process.RecruitmentConstant, *process.Ageing, *process.MortalityConstantRate) {
	t.Helper()
	cat := partition.NewCategory("fish", 1, maxAge, true)
	p, err := partition.New([]*partition.Category{cat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec := &process.RecruitmentConstant{
		Label_:      "Rec",
		R0:          1000,
		Proportions: map[string]float64{"fish": 1},
		Age:         1,
		Categories:  []string{"fish"},
	}
	age := &process.Ageing{Label_: "Age", Categories: []string{"fish"}}
	mort := &process.MortalityConstantRate{
		Label_:     "M",
		Categories: []string{"fish"},
		M:          map[string]float64{"fish": 0.2},
		Ratios:     map[string]float64{"annual": 1},
	}

	procs := process.NewRegistry()
	for _, pr := range []process.Process{rec, age, mort} {
		if err := procs.Add(pr); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	cal := calendar.New(1, 10)
	cal.AddTimeStep("annual", "Rec", "Age", "M")

	pens := penalty.NewRegistry()
	eng := cycle.New(cal, p, procs, pens, rng.New(1))
	return eng, rec, age, mort
}

func TestEngineExecuteYearAppliesProcessesInOrder(t *testing.T) {
	eng, _, _, _ := buildEngine(t, 5)
	if err := eng.ExecuteYear(2000, ""); err != nil {
		t.Fatalf("ExecuteYear: %v", err)
	}
	fish, _ := eng.Partition.Category("fish")
	got, _ := fish.At(2)
	want := 1000 * math.Exp(-0.2)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("age 2 after one year = %v, want %v", got, want)
	}
}

func TestEngineExecuteYearUnknownProcessIsFatal(t *testing.T) {
	cat := partition.NewCategory("fish", 1, 5, true)
	p, _ := partition.New([]*partition.Category{cat})
	cal := calendar.New(1, 2)
	cal.AddTimeStep("annual", "Ghost")
	eng := cycle.New(cal, p, process.NewRegistry(), penalty.NewRegistry(), rng.New(1))
	if err := eng.ExecuteYear(2000, ""); err == nil {
		t.Fatal("expected error for unknown process reference")
	}
}

func TestEngineHooksFireAroundProcesses(t *testing.T) {
	eng, _, _, _ := buildEngine(t, 5)
	var events []string
	eng.ProcessHooks = append(eng.ProcessHooks, func(ev cycle.Event) {
		stage := "post"
		if ev.Pre {
			stage = "pre"
		}
		events = append(events, ev.Process+":"+stage)
	})
	if err := eng.ExecuteYear(2000, ""); err != nil {
		t.Fatalf("ExecuteYear: %v", err)
	}
	want := []string{"Rec:pre", "Rec:post", "Age:pre", "Age:post", "M:pre", "M:post"}
	if len(events) != len(want) {
		t.Fatalf("got %v events, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, events[i], want[i])
		}
	}
}

func TestEngineExecuteInitialisationConverges(t *testing.T) {
	eng, _, _, _ := buildEngine(t, 8)
	phase := calendar.Phase{Label: "init", Repeats: 1}
	if err := eng.ExecuteInitialisation(phase, 8, nil, 0, nil, false); err != nil {
		t.Fatalf("ExecuteInitialisation: %v", err)
	}

	fish, _ := eng.Partition.Category("fish")
	before := eng.Partition.Clone()
	if err := eng.ExecuteYear(0, "init"); err != nil {
		t.Fatalf("ExecuteYear after init: %v", err)
	}
	beforeCat, _ := before.Category("fish")
	bv, _ := beforeCat.At(beforeCat.MaxAge)
	av, _ := fish.At(fish.MaxAge)
	if bv == 0 {
		t.Fatal("expected non-zero plus group after initialisation")
	}
	delta := math.Abs(av-bv) / bv
	if delta > 0.01 {
		t.Errorf("plus-group relative change after convergence = %v, want < 1%%", delta)
	}
}

func TestEngineExecuteInitialisationRequiresAgeing(t *testing.T) {
	cat := partition.NewCategory("fish", 1, 5, true)
	p, _ := partition.New([]*partition.Category{cat})
	rec := &process.RecruitmentConstant{Label_: "Rec", R0: 100, Proportions: map[string]float64{"fish": 1}, Age: 1, Categories: []string{"fish"}}
	procs := process.NewRegistry()
	_ = procs.Add(rec)
	cal := calendar.New(1, 2)
	cal.AddTimeStep("annual", "Rec")
	eng := cycle.New(cal, p, procs, penalty.NewRegistry(), rng.New(1))

	phase := calendar.Phase{Label: "init"}
	if err := eng.ExecuteInitialisation(phase, 5, nil, 0, nil, false); err == nil {
		t.Fatal("expected fatal error for missing ageing process")
	}
}
