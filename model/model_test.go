package model_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/calendar"
	"github.com/fishmodel/asa/model"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/process"
)

func buildModel(t *testing.T, maxAge int) *model.Model {
	t.Helper()
	cat := partition.NewCategory("fish", 1, maxAge, true)
	part, err := partition.New([]*partition.Category{cat})
	if err != nil {
		t.Fatalf("partition.New: %v", err)
	}

	cal := calendar.New(1, 3)
	cal.AddTimeStep("annual", "Rec", "Age", "M")
	cal.AddPhase(calendar.Phase{Label: "init", Repeats: 1})

	m := model.New(cal, part, 1)

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
	for _, pr := range []process.Process{rec, age, mort} {
		if err := m.Processes.Add(pr); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	phase, _ := cal.Phase("init")
	m.InitPhases = []model.InitPhaseRun{{Phase: phase, AgeSpread: maxAge}}
	return m
}

func TestRunFullIterationExecutesInitialisationThenMainCycle(t *testing.T) {
	m := buildModel(t, 6)
	if err := m.RunFullIteration(); err != nil {
		t.Fatalf("RunFullIteration: %v", err)
	}
	fish, err := m.Partition.Category("fish")
	if err != nil {
		t.Fatalf("Category: %v", err)
	}
	for age := fish.MinAge; age <= fish.MaxAge; age++ {
		v, _ := fish.At(age)
		if v < 0 {
			t.Errorf("age %d = %v, want >= 0", age, v)
		}
	}
}

func TestResetRestoresPostInitialisationSnapshot(t *testing.T) {
	m := buildModel(t, 6)
	if err := m.RunFullIteration(); err != nil {
		t.Fatalf("RunFullIteration: %v", err)
	}
	fish, _ := m.Partition.Category("fish")
	afterMainCycle, _ := fish.At(fish.MaxAge)

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	postInit, _ := fish.At(fish.MaxAge)
	if math.Abs(postInit-afterMainCycle) < 1e-12 {
		t.Fatal("Reset should restore the pre-main-cycle snapshot, not leave the post-run state")
	}

	if err := m.Reset(); err != nil {
		t.Fatalf("second Reset: %v", err)
	}
	postInit2, _ := fish.At(fish.MaxAge)
	if postInit != postInit2 {
		t.Errorf("Reset after Reset = %v, want %v (idempotent)", postInit2, postInit)
	}
}

func TestResetBeforeRunFullIterationErrors(t *testing.T) {
	m := buildModel(t, 6)
	if err := m.Reset(); err == nil {
		t.Fatal("expected error resetting before any RunFullIteration")
	}
}

func TestCloneIsolatesPartitionProcessesAndPenalties(t *testing.T) {
	m := buildModel(t, 6)
	if err := m.RunFullIteration(); err != nil {
		t.Fatalf("RunFullIteration: %v", err)
	}

	clone := m.Clone(1)
	cloneFish, _ := clone.Partition.Category("fish")
	if err := cloneFish.Set(cloneFish.MinAge, 999999); err != nil {
		t.Fatalf("Set: %v", err)
	}

	origFish, _ := m.Partition.Category("fish")
	origVal, _ := origFish.At(origFish.MinAge)
	if origVal == 999999 {
		t.Fatal("mutating the clone's partition mutated the original")
	}

	cloneRec, ok := clone.Processes.Get("Rec")
	if !ok {
		t.Fatal("clone missing Rec process")
	}
	cloneRec.(*process.RecruitmentConstant).R0 = 42
	origRec, _ := m.Processes.Get("Rec")
	if origRec.(*process.RecruitmentConstant).R0 == 42 {
		t.Fatal("mutating the clone's process mutated the original")
	}
}

func TestCloneDerivesIndependentRNGStreamsPerWorker(t *testing.T) {
	m := buildModel(t, 6)
	a := m.Clone(1)
	b := m.Clone(2)
	var same = true
	for i := 0; i < 10; i++ {
		if a.RNG.Float64() != b.RNG.Float64() {
			same = false
		}
	}
	if same {
		t.Fatal("clones built with different worker indices should not draw identical RNG streams")
	}
}

func TestRunModeStringsAreHumanReadable(t *testing.T) {
	cases := map[model.RunMode]string{
		model.Basic:      "basic",
		model.Estimation: "estimation",
		model.MCMCMode:   "mcmc",
		model.Simulation: "simulation",
		model.Projection: "projection",
		model.Profile:    "profile",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("RunMode(%d).String() = %q, want %q", mode, got, want)
		}
	}
}
