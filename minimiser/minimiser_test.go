package minimiser_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/minimiser"
)

// sphere is a simple separable quadratic with a known minimum,
// enough to confirm a minimiser actually descends.
func sphere(target []float64) minimiser.Evaluator {
	return func(values []float64) (float64, error) {
		var sum float64
		for i, v := range values {
			d := v - target[i]
			sum += d * d
		}
		return sum, nil
	}
}

func TestHillClimbConvergesOnSphere(t *testing.T) {
	target := []float64{3, -2}
	m := minimiser.HillClimb{InitialStep: 4}
	res, err := m.Minimise([]float64{0, 0}, sphere(target), 1e-4, 10000)
	if err != nil {
		t.Fatalf("Minimise: %v", err)
	}
	if res.Status != minimiser.Success {
		t.Fatalf("status = %v, want success", res.Status)
	}
	for i, want := range target {
		if math.Abs(res.Values[i]-want) > 1e-2 {
			t.Errorf("Values[%d] = %v, want ~%v", i, res.Values[i], want)
		}
	}
	if res.Score > 1e-2 {
		t.Errorf("final score = %v, want near 0", res.Score)
	}
}

func TestHillClimbReportsTooManyIterations(t *testing.T) {
	m := minimiser.HillClimb{InitialStep: 4}
	res, err := m.Minimise([]float64{0, 0}, sphere([]float64{100, 100}), 1e-8, 3)
	if err != nil {
		t.Fatalf("Minimise: %v", err)
	}
	if res.Status != minimiser.TooManyIterations {
		t.Fatalf("status = %v, want too-many-iterations", res.Status)
	}
}

func TestHillClimbReportsLocalInfeasibilityAtStart(t *testing.T) {
	m := minimiser.HillClimb{InitialStep: 1}
	res, err := m.Minimise([]float64{0}, func(values []float64) (float64, error) {
		return 0, errAlwaysInfeasible
	}, 1e-4, 100)
	if err != nil {
		t.Fatalf("Minimise: %v", err)
	}
	if res.Status != minimiser.LocalInfeasibility {
		t.Fatalf("status = %v, want local-infeasibility", res.Status)
	}
}

var errAlwaysInfeasible = infeasibleErr{}

type infeasibleErr struct{}

func (infeasibleErr) Error() string { return "infeasible" }

func TestGonumNelderMeadConvergesOnSphere(t *testing.T) {
	target := []float64{1, 1}
	m := minimiser.GonumMinimiser{Method: minimiser.NelderMead}
	res, err := m.Minimise([]float64{0, 0}, sphere(target), 1e-6, 1000)
	if err != nil {
		t.Fatalf("Minimise: %v", err)
	}
	if res.Status != minimiser.Success {
		t.Fatalf("status = %v, want success", res.Status)
	}
	for i, want := range target {
		if math.Abs(res.Values[i]-want) > 1e-2 {
			t.Errorf("Values[%d] = %v, want ~%v", i, res.Values[i], want)
		}
	}
}

func TestStatusStringsAreHumanReadable(t *testing.T) {
	cases := map[minimiser.Status]string{
		minimiser.Success:             "success",
		minimiser.StepTooSmall:        "step-too-small",
		minimiser.TooManyIterations:   "too-many-iterations",
		minimiser.LocalInfeasibility:  "local-infeasibility",
		minimiser.Error:               "error",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", int(status), got, want)
		}
	}
}
