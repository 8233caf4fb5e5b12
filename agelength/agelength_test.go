package agelength_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/agelength"
)

func TestCumulativeNormalSumsToOne(t *testing.T) {
	bins := []float64{0, 10, 20, 30, 40, 50}
	probs := agelength.CumulativeNormal(25, 0.1, agelength.Normal, bins, true, false)

	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-10 {
		t.Errorf("sum = %v, want 1 within 1e-10", sum)
	}
}

func TestCumulativeNormalLognormalSumsToOne(t *testing.T) {
	bins := []float64{5, 10, 15, 20, 25, 30}
	probs := agelength.CumulativeNormal(18, 0.15, agelength.Lognormal, bins, true, false)

	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-10 {
		t.Errorf("sum = %v, want 1 within 1e-10", sum)
	}
}

func TestCumulativeNormalDegenerate(t *testing.T) {
	bins := []float64{0, 10, 20, 30}
	probs := agelength.CumulativeNormal(15, 0, agelength.Normal, bins, true, false)
	if probs[1] != 1 {
		t.Errorf("expected all mass in bin containing mean, got %v", probs)
	}
}

func TestVonBertalanffyMeanLength(t *testing.T) {
	v := agelength.VonBertalanffy{Linf: 100, K: 0.2, T0: -0.5}
	got := v.MeanLength(2000, "step1", 5)
	want := 100 * (1 - math.Exp(-0.2*(5+0.5)))
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDataSourceInterpolation(t *testing.T) {
	d := agelength.DataSource{
		ByYear: map[int]map[int]float64{
			2000: {3: 30, 4: 40},
		},
	}
	got, err := d.MeanLengthAt(2000, 3.5)
	if err != nil {
		t.Fatalf("MeanLengthAt: %v", err)
	}
	if math.Abs(got-35) > 1e-9 {
		t.Errorf("got %v, want 35 (linear interpolation)", got)
	}
}

func TestErrorMatrixApply(t *testing.T) {
	e := agelength.ErrorMatrix{
		M: [][]float64{
			{0.9, 0.1},
			{0.2, 0.8},
		},
	}
	out, err := e.Apply([]float64{100, 200})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []float64{100*0.9 + 200*0.2, 100*0.1 + 200*0.8}
	for i := range out {
		if math.Abs(out[i]-want[i]) > 1e-9 {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestErrorMatrixWrongSize(t *testing.T) {
	e := agelength.ErrorMatrix{M: [][]float64{{1}}}
	if _, err := e.Apply([]float64{1, 2}); err == nil {
		t.Errorf("expected error for mismatched size")
	}
}
