package process_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/selectivity"
)

// TestMortalityPreySuitability checks that exploitation is split across
// prey categories in proportion to vulnerable-abundance×electivity,
// and that removals use the actual numbers-at-age (not the length of
// the data vector, as a literal transliteration of the original source
// would).
func TestMortalityPreySuitability(t *testing.T) {
	p := buildPartition(t, "prey.a", "prey.b", "predator")

	preyA, _ := p.Category("prey.a")
	preyB, _ := p.Category("prey.b")
	predator, _ := p.Category("predator")
	for age := 1; age <= 15; age++ {
		if err := preyA.Set(age, 10000); err != nil {
			t.Fatalf("seed prey.a: %v", err)
		}
		if err := preyB.Set(age, 10000); err != nil {
			t.Fatalf("seed prey.b: %v", err)
		}
		if err := predator.Set(age, 0.2); err != nil {
			t.Fatalf("seed predator: %v", err)
		}
	}

	one, _ := selectivity.New("one", "constant", selectivity.Params{C: 1})
	resolve := func(label string) (selectivity.Selectivity, error) { return one, nil }

	mps := &process.MortalityPreySuitability{
		Label_: "Predation",
		Prey: []process.PreyCategory{
			{Category: "prey.a", Selectivity: "one", Electivity: 0.8},
			{Category: "prey.b", Selectivity: "one", Electivity: 0.2},
		},
		Predators:       []process.PredatorCategory{{Category: "predator", Selectivity: "one"}},
		ConsumptionRate: 0.1,
		UMax:            0.4,
		Years:           map[int]bool{2000: true},
		Resolve:         resolve,
	}
	if err := mps.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx := process.Context{Year: 2000, TimeStep: "step1"}
	if err := mps.Execute(p, ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	gotA, _ := preyA.At(1)
	gotB, _ := preyB.At(1)
	if gotA >= 10000 {
		t.Errorf("prey.a age 1 = %v, want < 10000 (some removed)", gotA)
	}
	if gotB >= 10000 {
		t.Errorf("prey.b age 1 = %v, want < 10000 (some removed)", gotB)
	}
	// prey.a has a higher electivity than prey.b but identical
	// abundance, so it must absorb a larger share of the removal.
	if (10000 - gotA) <= (10000 - gotB) {
		t.Errorf("prey.a removal %v should exceed prey.b removal %v (higher electivity)", 10000-gotA, 10000-gotB)
	}

	// A year outside Years is a no-op.
	before, _ := preyA.At(1)
	ctx2001 := process.Context{Year: 2001, TimeStep: "step1"}
	if err := mps.Execute(p, ctx2001); err != nil {
		t.Fatalf("Execute 2001: %v", err)
	}
	after, _ := preyA.At(1)
	if before != after {
		t.Errorf("year outside Years mutated prey.a: %v -> %v", before, after)
	}
}

// TestMortalityEventBiomass checks the single-pulse catch removal and
// its U_max cap, with no natural-mortality half-step involved.
func TestMortalityEventBiomass(t *testing.T) {
	p := buildPartition(t, "male")
	c, _ := p.Category("male")
	for age := 1; age <= 15; age++ {
		if err := c.Set(age, 10000); err != nil {
			t.Fatalf("seed: %v", err)
		}
		c.SetMeanWeight("step1", age, 1.0)
	}

	one, _ := selectivity.New("one", "constant", selectivity.Params{C: 1})
	resolve := func(label string) (selectivity.Selectivity, error) { return one, nil }

	var triggered float64
	meb := &process.MortalityEventBiomass{
		Label_:     "Event",
		Categories: []string{"male"},
		Selectivities: map[string]string{"male": "one"},
		Catch:      map[int]float64{2000: 50000},
		UMax:       0.4,
		Resolve:    resolve,
		Trigger:    func(label string, amount float64) { triggered += amount },
	}
	if err := meb.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx := process.Context{Year: 2000, TimeStep: "step1"}
	if err := meb.Execute(p, ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Vulnerable biomass is 15*10000 = 150000; catch 50000 implies
	// u=1/3, under U_max 0.4, so no penalty should trigger.
	if triggered != 0 {
		t.Errorf("triggered = %v, want 0 (u=1/3 < U_max)", triggered)
	}
	v, _ := c.At(1)
	want := 10000 * (1 - 50000.0/150000.0)
	if math.Abs(v-want) > 1e-6 {
		t.Errorf("age 1 = %v, want %v", v, want)
	}

	// A year with no declared catch is a no-op.
	ctxNone := process.Context{Year: 1999, TimeStep: "step1"}
	before, _ := c.At(1)
	if err := meb.Execute(p, ctxNone); err != nil {
		t.Fatalf("Execute 1999: %v", err)
	}
	after, _ := c.At(1)
	if before != after {
		t.Errorf("year without catch mutated category: %v -> %v", before, after)
	}
}

// fakeSSB is a minimal SSBSource for recruitment tests.
type fakeSSB struct {
	byYear map[int]float64
}

func (f fakeSSB) At(year int) (float64, bool) {
	v, ok := f.byYear[year]
	return v, ok
}

func (f fakeSSB) LastInitialisationValue() (float64, bool) { return 0, false }

// TestRecruitmentBevertonHoltDeviations checks that the deviations
// variant multiplies the deterministic Beverton-Holt recruitment by
// the bias-corrected lognormal term.
func TestRecruitmentBevertonHoltDeviations(t *testing.T) {
	p := buildPartition(t, "immature")

	bh := process.RecruitmentBevertonHolt{
		Label_:      "BH",
		R0Value:     100000,
		B0Value:     1_000_000,
		HasB0:       true,
		Proportions: map[string]float64{"immature": 1},
		Age:         1,
		Steepness:   0.75,
		Categories:  []string{"immature"},
		YCS:         map[int]float64{2000: 1},
	}
	bh.SetSSBSource(fakeSSB{byYear: map[int]float64{2000: 1_000_000}})
	bh.SetScaled(true)
	if err := bh.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := bh.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	dev := &process.RecruitmentBevertonHoltDeviations{
		RecruitmentBevertonHolt: bh,
		Deviations:              map[int]float64{2000: 0.5},
		Sigma:                   0.6,
	}

	ctx := process.Context{Year: 2000}
	if err := dev.Execute(p, ctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	c, _ := p.Category("immature")
	got, _ := c.At(1)
	want := 100000 * math.Exp(0.5-0.5*0.6*0.6)
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("age 1 = %v, want %v", got, want)
	}
}
