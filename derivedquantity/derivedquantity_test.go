package derivedquantity_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/derivedquantity"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/process"
	"github.com/fishmodel/asa/selectivity"
)

// Compile-time check that *DerivedQuantity satisfies process.SSBSource.
var _ process.SSBSource = (*derivedquantity.DerivedQuantity)(nil)

func TestSampleBiomass(t *testing.T) {
	cat := partition.NewCategory("mature.female", 1, 5, true)
	if err := cat.Set(3, 1000); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for age := 1; age <= 5; age++ {
		cat.SetMeanWeight("step1", age, 2.5)
	}
	p, err := partition.New([]*partition.Category{cat})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sel, _ := selectivity.New("mature-sel", "knife_edge", selectivity.Params{Edge: 3})
	dq := derivedquantity.New("SSB", derivedquantity.Biomass, []string{"mature.female"}, "step1", 0.5)
	dq.Selectivity = map[string]selectivity.Selectivity{"mature.female": sel}

	got, err := dq.Sample(p, 2000, "step1")
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	want := 1000.0 * 2.5
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("Sample = %v, want %v", got, want)
	}

	v, ok := dq.At(2000)
	if !ok || math.Abs(v-want) > 1e-9 {
		t.Errorf("At(2000) = %v,%v want %v,true", v, ok, want)
	}
	if _, ok := dq.At(1999); ok {
		t.Error("At(1999) should not have a recorded value")
	}
}

func TestSampleMissingMeanWeightErrors(t *testing.T) {
	cat := partition.NewCategory("mature.female", 1, 5, true)
	_ = cat.Set(3, 1000)
	p, _ := partition.New([]*partition.Category{cat})

	dq := derivedquantity.New("SSB", derivedquantity.Biomass, []string{"mature.female"}, "step1", 0.5)
	if _, err := dq.Sample(p, 2000, "step1"); err == nil {
		t.Fatal("expected error for missing mean weight cache")
	}
}

func TestLastInitialisationValue(t *testing.T) {
	dq := derivedquantity.New("SSB", derivedquantity.Abundance, nil, "step1", 0)
	if _, ok := dq.LastInitialisationValue(); ok {
		t.Fatal("expected no initialisation value before recording")
	}
	dq.RecordInitialisationValue(4200)
	v, ok := dq.LastInitialisationValue()
	if !ok || v != 4200 {
		t.Errorf("LastInitialisationValue = %v,%v want 4200,true", v, ok)
	}
}

func TestRegistryDuplicateLabel(t *testing.T) {
	r := derivedquantity.NewRegistry()
	dq := derivedquantity.New("SSB", derivedquantity.Biomass, nil, "step1", 0)
	if err := r.Add(dq); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(dq); err == nil {
		t.Fatal("expected error for duplicate label")
	}
}
