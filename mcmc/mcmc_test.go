package mcmc_test

import (
	"math"
	"testing"

	"github.com/fishmodel/asa/mcmc"
	"github.com/fishmodel/asa/rng"
)

// gaussianEvaluator treats Score as the negative log-density of a
// standard multivariate normal centred at target, so the chain should
// spend most of its mass near target.
func gaussianEvaluator(target []float64) mcmc.Evaluator {
	return func(values []float64) (mcmc.Breakdown, error) {
		var sum float64
		for i, v := range values {
			d := v - target[i]
			sum += d * d / 2
		}
		return mcmc.Breakdown{Score: sum, Likelihood: sum}, nil
	}
}

func identityCov(n int) [][]float64 {
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
		cov[i][i] = 1
	}
	return cov
}

func TestChainAcceptsSomeAndStaysNearTarget(t *testing.T) {
	target := []float64{0, 0}
	cfg := mcmc.Config{
		Proposal:         mcmc.MultivariateNormal,
		AdjustMode:       mcmc.AdjustCovariance,
		MaxCorrelation:   0.9,
		MinVariance:      1e-6,
		TargetAcceptance: 0.24,
		AdaptEvery:       50,
		Iterations:       2000,
		Keep:             10,
		Start:            []float64{5, 5},
		StartStep:        1,
	}
	r := rng.New(42)
	chain, err := mcmc.New(cfg, gaussianEvaluator(target), identityCov(2), r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	links, err := chain.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(links) != 200 {
		t.Fatalf("len(links) = %d, want 200", len(links))
	}
	last := links[len(links)-1]
	if last.AcceptanceRate <= 0 {
		t.Errorf("AcceptanceRate = %v, want > 0", last.AcceptanceRate)
	}
	dist := math.Hypot(last.Values[0]-target[0], last.Values[1]-target[1])
	if dist > 10 {
		t.Errorf("chain did not move toward target: distance = %v", dist)
	}
}

func TestChainFallsBackToDiagonalOnNonPositiveDefiniteCovariance(t *testing.T) {
	cfg := mcmc.Config{
		AdjustMode: mcmc.AdjustNone,
		Iterations: 5,
		Keep:       1,
		Start:      []float64{0, 0},
		StartStep:  1,
	}
	// A covariance with a zero eigenvalue direction: Cholesky should
	// fail and the chain should still run to completion via the
	// diagonal fallback.
	badCov := [][]float64{{1, 1}, {1, 1}}
	r := rng.New(7)
	chain, err := mcmc.New(cfg, gaussianEvaluator([]float64{0, 0}), badCov, r)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	links, err := chain.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(links) != 5 {
		t.Fatalf("len(links) = %d, want 5", len(links))
	}
}

func TestNewRejectsEmptyStart(t *testing.T) {
	r := rng.New(1)
	_, err := mcmc.New(mcmc.Config{}, gaussianEvaluator(nil), nil, r)
	if err == nil {
		t.Fatal("expected error for empty starting point")
	}
}

func TestEvaluateParallelPreservesOrder(t *testing.T) {
	mcmc.Start(4)
	defer mcmc.End()

	values := [][]float64{{1}, {2}, {3}, {4}}
	evals := make([]mcmc.Evaluator, len(values))
	targets := []float64{10, 20, 30, 40}
	for i := range values {
		target := targets[i]
		evals[i] = func(v []float64) (mcmc.Breakdown, error) {
			return mcmc.Breakdown{Score: v[0] - target}, nil
		}
	}

	scores, errs := mcmc.EvaluateParallel(values, evals)
	for i, want := range targets {
		if errs[i] != nil {
			t.Fatalf("errs[%d] = %v", i, errs[i])
		}
		gotTarget := values[i][0] - scores[i].Score
		if gotTarget != want {
			t.Errorf("index %d: implied target = %v, want %v", i, gotTarget, want)
		}
	}
}
