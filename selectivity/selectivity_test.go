package selectivity_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/selectivity"
)

func TestConstant(t *testing.T) {
	s, err := selectivity.New("one", "constant", selectivity.Params{C: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.At(5); got != 1 {
		t.Errorf("At(5) = %v, want 1", got)
	}
}

func TestLogisticMidpoint(t *testing.T) {
	s, err := selectivity.New("mat", "logistic", selectivity.Params{A50: 5, Ato95: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.At(5); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("At(5) = %v, want 0.5", got)
	}
}

func TestKnifeEdge(t *testing.T) {
	s, err := selectivity.New("k", "knife_edge", selectivity.Params{Edge: 3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.At(2) != 0 {
		t.Errorf("At(2) = %v, want 0", s.At(2))
	}
	if s.At(3) != 1 {
		t.Errorf("At(3) = %v, want 1", s.At(3))
	}
}

func TestAllValuesBoundedClamp(t *testing.T) {
	s, err := selectivity.New("a", "all_values_bounded", selectivity.Params{
		MinAge: 1, MaxAge: 3, Values: []float64{0.1, 0.5, 0.9},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.At(0) != 0.1 {
		t.Errorf("At(0) = %v, want 0.1 (clamped)", s.At(0))
	}
	if s.At(10) != 0.9 {
		t.Errorf("At(10) = %v, want 0.9 (clamped)", s.At(10))
	}
}

func TestUnknownFunction(t *testing.T) {
	if _, err := selectivity.New("x", "not_a_function", selectivity.Params{}); err == nil {
		t.Errorf("expected error for unknown function")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := selectivity.NewRegistry()
	s, _ := selectivity.New("one", "constant", selectivity.Params{C: 1})
	if err := r.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(s); err == nil {
		t.Errorf("expected error adding duplicate label")
	}
}
