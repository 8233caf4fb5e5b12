package partition_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/agelength"
	"github.com/fishmodel/asa/partition"
	"github.com/fishmodel/asa/selectivity"
)

func newTestPartition(t *testing.T) *partition.Partition {
	t.Helper()
	c1 := partition.NewCategory("immature.male", 1, 10, true)
	c2 := partition.NewCategory("immature.female", 1, 10, true)
	p, err := partition.New([]*partition.Category{c1, c2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSetNegativeIsFatal(t *testing.T) {
	c := partition.NewCategory("c", 1, 5, false)
	if err := c.Set(2, -1); err == nil {
		t.Errorf("expected error setting negative value")
	}
}

func TestAddOutOfRange(t *testing.T) {
	c := partition.NewCategory("c", 1, 5, false)
	if err := c.Set(1, 10); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Add(100, 1); err == nil {
		t.Errorf("expected error for out-of-range age")
	}
}

func TestPartitionMismatchedAgeRange(t *testing.T) {
	c1 := partition.NewCategory("a", 1, 10, false)
	c2 := partition.NewCategory("b", 1, 5, false)
	if _, err := partition.New([]*partition.Category{c1, c2}); err == nil {
		t.Errorf("expected error for mismatched age range")
	}
}

func TestAccessorBuildCacheIsolatesSnapshot(t *testing.T) {
	p := newTestPartition(t)
	a, err := partition.Init(p, []string{"immature.male"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c, _ := p.Category("immature.male")
	if err := c.Set(1, 100); err != nil {
		t.Fatalf("Set: %v", err)
	}
	a.BuildCache()

	if err := c.Set(1, 999); err != nil {
		t.Fatalf("Set: %v", err)
	}

	cached, err := a.Cached("immature.male")
	if err != nil {
		t.Fatalf("Cached: %v", err)
	}
	v, _ := cached.At(1)
	if v != 100 {
		t.Errorf("cached value = %v, want 100 (unaffected by later mutation)", v)
	}
	live, _ := a.Category("immature.male")
	lv, _ := live.At(1)
	if lv != 999 {
		t.Errorf("live value = %v, want 999", lv)
	}
}

func TestAccessorUnknownLabel(t *testing.T) {
	p := newTestPartition(t)
	if _, err := partition.Init(p, []string{"nope"}); err == nil {
		t.Errorf("expected error for unknown category label")
	}
}

func TestUpdateAgeLengthDataSumsToAbundance(t *testing.T) {
	p := newTestPartition(t)
	a, err := partition.Init(p, []string{"immature.male"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	c, _ := p.Category("immature.male")
	for age := c.MinAge; age <= c.MaxAge; age++ {
		if err := c.Set(age, 1000); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	al := agelength.VonBertalanffy{Linf: 100, K: 0.2, T0: -0.5, CVDefault: 0.1}
	bins := []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	sel, _ := selectivity.New("one", "constant", selectivity.Params{C: 1})

	err = a.UpdateAgeLengthData(2000, "step1", bins, true, false, sel,
		func(label string) (agelength.AgeLength, error) { return al, nil })
	if err != nil {
		t.Fatalf("UpdateAgeLengthData: %v", err)
	}

	collapsed, err := a.CollapseAgeLengthToLength(len(bins))
	if err != nil {
		t.Fatalf("CollapseAgeLengthToLength: %v", err)
	}

	var sum float64
	for _, v := range collapsed["immature.male"] {
		sum += v
	}
	wantTotal := 1000 * float64(c.Spread())
	if math.Abs(sum-wantTotal) > 1e-6 {
		t.Errorf("collapsed sum = %v, want %v within 1e-6", sum, wantTotal)
	}
}
