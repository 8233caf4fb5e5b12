package estimate_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/estimate"
)

func TestScalarAddressableGetSet(t *testing.T) {
	var v float64 = 5
	a := estimate.NewScalar("block[x].scalar", &v)
	if a.Get() != 5 {
		t.Fatalf("Get = %v, want 5", a.Get())
	}
	a.Set(9)
	if v != 9 {
		t.Errorf("underlying value = %v, want 9", v)
	}
}

func TestVectorAddressableIndexesFromOne(t *testing.T) {
	vec := []float64{10, 20, 30}
	a, err := estimate.NewVectorElement("block[x].param{2}", vec, 2)
	if err != nil {
		t.Fatalf("NewVectorElement: %v", err)
	}
	if a.Get() != 20 {
		t.Fatalf("Get = %v, want 20", a.Get())
	}
	a.Set(99)
	if vec[1] != 99 {
		t.Errorf("vec[1] = %v, want 99", vec[1])
	}
}

func TestVectorAddressableOutOfRange(t *testing.T) {
	vec := []float64{1, 2}
	if _, err := estimate.NewVectorElement("block[x].param{5}", vec, 5); err == nil {
		t.Fatal("expected error for out-of-range vector index")
	}
}

func TestSetNaturalRejectsOutOfBounds(t *testing.T) {
	var v float64
	e := estimate.New("M", estimate.NewScalar("p", &v), 0, 1)
	if err := e.SetNatural(2); err == nil {
		t.Fatal("expected bounds error")
	}
}

// P9: same-links propagate a write to every linked estimate.
func TestSameLinkPropagation(t *testing.T) {
	var a, b, c float64
	eA := estimate.New("A", estimate.NewScalar("a", &a), 0, 10)
	eB := estimate.New("B", estimate.NewScalar("b", &b), 0, 10)
	eC := estimate.New("C", estimate.NewScalar("c", &c), 0, 10)
	eA.Link(eB)
	eA.Link(eC)

	if err := eA.SetNatural(4); err != nil {
		t.Fatalf("SetNatural: %v", err)
	}
	if a != 4 || b != 4 || c != 4 {
		t.Errorf("got a=%v b=%v c=%v, want all 4", a, b, c)
	}
}

// P10: untransform(transform(x)) == x within 1e-12, for every
// transformation variant.
func TestTransformationRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		tr   estimate.Transformation
		x    float64
	}{
		{"identity", estimate.Identity{}, 3.5},
		{"log", estimate.Log{}, 12.25},
		{"inverse", estimate.Inverse{}, 0.2},
		{"square_root", estimate.SquareRoot{}, 9.0},
		{"log_odds", estimate.LogOdds{}, 0.3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			transformed := c.tr.Transform(c.x)
			back := c.tr.Untransform(transformed)
			if math.Abs(back-c.x) > 1e-12 {
				t.Errorf("%s: untransform(transform(%v)) = %v, want %v", c.name, c.x, back, c.x)
			}
		})
	}
}

func TestTransformedSetRoundTrips(t *testing.T) {
	var v float64
	e := estimate.New("k", estimate.NewScalar("p", &v), 0.001, 1000)
	e.Transformation = estimate.Log{}
	if err := e.SetTransformed(math.Log(42)); err != nil {
		t.Fatalf("SetTransformed: %v", err)
	}
	if math.Abs(v-42) > 1e-9 {
		t.Errorf("Natural = %v, want 42", v)
	}
	if math.Abs(e.Transformed()-math.Log(42)) > 1e-9 {
		t.Errorf("Transformed = %v, want %v", e.Transformed(), math.Log(42))
	}
}

func TestPriorScoreZeroWithoutPrior(t *testing.T) {
	var v float64 = 5
	e := estimate.New("p", estimate.NewScalar("p", &v), 0, 10)
	if got := e.PriorScore(); got != 0 {
		t.Errorf("PriorScore = %v, want 0", got)
	}
}

func TestNormalPriorPeaksAtMean(t *testing.T) {
	p := estimate.NormalPrior{Label_: "n", Mu: 10, Sigma: 2}
	atMean := p.NegLogDensity(10)
	off := p.NegLogDensity(20)
	if atMean >= off {
		t.Errorf("score at mean (%v) should be lower than off-mean (%v)", atMean, off)
	}
}

func TestEnabledAndMCMCFreeFiltering(t *testing.T) {
	r := estimate.NewRegistry()
	var a, b, c float64
	e1 := estimate.New("a", estimate.NewScalar("a", &a), 0, 10)
	e2 := estimate.New("b", estimate.NewScalar("b", &b), 0, 10)
	e2.Enabled = false
	e3 := estimate.New("c", estimate.NewScalar("c", &c), 0, 10)
	e3.MCMCFixed = true
	for _, e := range []*estimate.Estimate{e1, e2, e3} {
		if err := r.Add(e); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	enabled := r.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("Enabled() returned %d estimates, want 2", len(enabled))
	}
	mcmcFree := r.MCMCFree()
	if len(mcmcFree) != 1 || mcmcFree[0].Label != "a" {
		t.Fatalf("MCMCFree() = %v, want just [a]", mcmcFree)
	}
}
