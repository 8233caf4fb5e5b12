// Package mcmc implements the Metropolis-Hastings sampler of spec.md
// §4.6: starting from the minimiser's solution and covariance, it
// proposes multivariate normal or multivariate-t jumps, adapts the
// step size toward a target acceptance rate, and emits one ChainLink
// per kept iteration.
package mcmc

import (
	"math"

	"github.com/fishmodel/asa/modelerr"
	"github.com/fishmodel/asa/rng"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ProposalKind selects the proposal family spec.md §4.6 names.
type ProposalKind int

const (
	MultivariateNormal ProposalKind = iota
	MultivariateT
)

// CovarianceAdjustMode controls how tiny variances and large
// correlations are tamed before the proposal's Cholesky factor is
// taken (spec.md §4.6 "Covariance adjustment").
type CovarianceAdjustMode int

const (
	AdjustNone CovarianceAdjustMode = iota
	AdjustCovariance
	AdjustCorrelation
)

// ChainLink is one recorded state of the sampler (spec.md Glossary
// "MCMC ChainLink").
type ChainLink struct {
	Iteration               int
	Score                    float64
	Likelihood               float64
	Prior                    float64
	Penalty                  float64
	AdditionalPriors         float64
	AcceptanceRate           float64
	AcceptanceRateSinceAdapt float64
	StepSize                 float64
	Values                   []float64
}

// Breakdown is the minimal shape the evaluator must return per
// iteration, matching objective.Breakdown's components without this
// package importing objective directly.
type Breakdown struct {
	Score            float64
	Likelihood       float64
	Prior            float64
	Penalty          float64
	AdditionalPriors float64
}

// Evaluator sets values (transformed scale, applied by the caller via
// estimate.SetTransformed) and runs one full partition iteration, returning the
// objective breakdown.
type Evaluator func(values []float64) (Breakdown, error)

// Config holds the run-time knobs spec.md §4.6 describes.
type Config struct {
	Proposal       ProposalKind
	DegreesOfFreedom float64 // used only when Proposal == MultivariateT
	AdjustMode     CovarianceAdjustMode
	MaxCorrelation float64
	MinVariance    float64

	// TargetAcceptance is the acceptance rate step-size adaptation
	// aims for, ~0.24 per spec.md §4.6.
	TargetAcceptance float64
	// AdaptEvery adapts the step size every AdaptEvery iterations; 0
	// disables adaptation.
	AdaptEvery int

	Iterations int
	Keep       int // keep every Keep-th iteration; 1 keeps all
	Start      []float64
	StartStep  float64
}

// Chain drives the sampler.
type Chain struct {
	cfg  Config
	eval Evaluator
	rng  *rng.Source

	cov      *mat.SymDense
	step     float64
	accepted int
	sinceAdapt int
	acceptedSinceAdapt int
}

// New returns a Chain ready to Run, seeded with startCov (typically
// the minimiser's covariance approximation).
func New(cfg Config, eval Evaluator, startCov [][]float64, r *rng.Source) (*Chain, error) {
	if len(cfg.Start) == 0 {
		return nil, modelerr.Configurationf("mcmc: a starting point is required")
	}
	n := len(cfg.Start)
	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := startCov[i][j]
			cov.SetSym(i, j, v)
		}
	}
	adjustCovariance(cov, cfg.AdjustMode, cfg.MaxCorrelation, cfg.MinVariance)

	step := cfg.StartStep
	if step <= 0 {
		step = 1
	}
	return &Chain{cfg: cfg, eval: eval, rng: r, cov: cov, step: step}, nil
}

// adjustCovariance clips off-diagonal correlations to maxCorr and
// boosts variances below minVar, per spec.md §4.6 "Covariance
// adjustment". AdjustNone leaves cov untouched.
func adjustCovariance(cov *mat.SymDense, mode CovarianceAdjustMode, maxCorr, minVar float64) {
	if mode == AdjustNone {
		return
	}
	n := cov.Symmetric()

	sd := make([]float64, n)
	for i := 0; i < n; i++ {
		v := cov.At(i, i)
		if v < minVar {
			v = minVar
		}
		sd[i] = math.Sqrt(v)
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			varI := cov.At(i, i)
			varJ := cov.At(j, j)
			denom := math.Sqrt(varI * varJ)
			corr := 0.0
			if denom > 0 {
				corr = cov.At(i, j) / denom
			}
			if corr > maxCorr {
				corr = maxCorr
			}
			if corr < -maxCorr {
				corr = -maxCorr
			}
			cov.SetSym(i, j, corr*sd[i]*sd[j])
		}
	}

	switch mode {
	case AdjustCovariance:
		for i := 0; i < n; i++ {
			if cov.At(i, i) < minVar {
				cov.SetSym(i, i, minVar)
			}
		}
	case AdjustCorrelation:
		for i := 0; i < n; i++ {
			cov.SetSym(i, i, sd[i]*sd[i])
		}
	}
}

// proposalSampler draws one candidate vector around mean, using a
// Cholesky factor of step*cov. On Cholesky failure it falls back to a
// diagonal-only proposal and reports that fallback occurred (spec.md
// §7: "failed Cholesky causes the MCMC to fall back to a diagonal
// proposal and warn").
func (c *Chain) proposalSampler(mean []float64) (draw func() []float64, fellBack bool) {
	n := len(mean)
	scaled := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			scaled.SetSym(i, j, c.step*c.cov.At(i, j))
		}
	}

	var chol mat.Cholesky
	ok := chol.Factorize(scaled)
	if !ok {
		fellBack = true
		diag := make([]float64, n)
		for i := 0; i < n; i++ {
			v := scaled.At(i, i)
			if v <= 0 {
				v = 1e-8
			}
			diag[i] = math.Sqrt(v)
		}
		return func() []float64 {
			out := make([]float64, n)
			for i := range out {
				out[i] = mean[i] + diag[i]*c.rng.Rand().NormFloat64()
			}
			return out
		}, true
	}

	// L is the lower Cholesky factor of the scaled covariance: a draw
	// mean + L*z, z ~ iid N(0,1), has covariance step*cov.
	var L mat.TriDense
	chol.LTo(&L)

	drawMVN := func() []float64 {
		z := make([]float64, n)
		for i := range z {
			z[i] = c.rng.Rand().NormFloat64()
		}
		var lz mat.VecDense
		lz.MulVec(&L, mat.NewVecDense(n, z))
		out := make([]float64, n)
		for i := range out {
			out[i] = mean[i] + lz.AtVec(i)
		}
		return out
	}

	switch c.cfg.Proposal {
	case MultivariateT:
		df := c.cfg.DegreesOfFreedom
		if df <= 0 {
			df = 4
		}
		return func() []float64 {
			// A multivariate-t draw is a normal draw divided by
			// sqrt(chi2_df/df); Gamma(df/2, 2) is chi2_df.
			chi2 := distuv.Gamma{Alpha: df / 2, Beta: 0.5}.Quantile(c.rng.Rand().Float64())
			scale := math.Sqrt(df / chi2)
			z := make([]float64, n)
			for i := range z {
				z[i] = c.rng.Rand().NormFloat64()
			}
			var lz mat.VecDense
			lz.MulVec(&L, mat.NewVecDense(n, z))
			out := make([]float64, n)
			for i := range out {
				out[i] = mean[i] + scale*lz.AtVec(i)
			}
			return out
		}, false
	default:
		return drawMVN, false
	}
}

// Run executes cfg.Iterations Metropolis steps, returning one
// ChainLink per kept iteration.
func (c *Chain) Run() ([]ChainLink, error) {
	keep := c.cfg.Keep
	if keep < 1 {
		keep = 1
	}

	current := append([]float64(nil), c.cfg.Start...)
	currentScore, err := c.eval(current)
	if err != nil {
		return nil, modelerr.Numericalf("mcmc: starting point is infeasible: %v", err)
	}

	links := make([]ChainLink, 0, c.cfg.Iterations/keep+1)
	for it := 1; it <= c.cfg.Iterations; it++ {
		draw, _ := c.proposalSampler(current)
		candidate := draw()

		candidateScore, err := c.eval(candidate)
		accept := false
		if err == nil {
			logAlpha := currentScore.Score - candidateScore.Score
			if logAlpha >= 0 || math.Log(c.rng.Rand().Float64()) < logAlpha {
				accept = true
			}
		}

		if accept {
			current = candidate
			currentScore = candidateScore
			c.accepted++
			c.acceptedSinceAdapt++
		}
		c.sinceAdapt++

		if c.cfg.AdaptEvery > 0 && c.sinceAdapt >= c.cfg.AdaptEvery {
			c.adaptStep()
		}

		if it%keep == 0 {
			links = append(links, ChainLink{
				Iteration:                it,
				Score:                    currentScore.Score,
				Likelihood:               currentScore.Likelihood,
				Prior:                    currentScore.Prior,
				Penalty:                  currentScore.Penalty,
				AdditionalPriors:         currentScore.AdditionalPriors,
				AcceptanceRate:           float64(c.accepted) / float64(it),
				AcceptanceRateSinceAdapt: c.adaptRate(),
				StepSize:                 c.step,
				Values:                   append([]float64(nil), current...),
			})
		}
	}
	return links, nil
}

func (c *Chain) adaptRate() float64 {
	if c.sinceAdapt == 0 {
		return 0
	}
	return float64(c.acceptedSinceAdapt) / float64(c.sinceAdapt)
}

// adaptStep nudges the step size toward the target acceptance rate and
// resets the since-adapt counters, per spec.md §4.6 "step size is
// adapted at declared iterations by the ratio of successful jumps
// since last adaptation to a target acceptance rate of ~0.24".
func (c *Chain) adaptStep() {
	target := c.cfg.TargetAcceptance
	if target <= 0 {
		target = 0.24
	}
	rate := c.adaptRate()
	if rate > target {
		c.step *= 1.1
	} else {
		c.step *= 0.9
	}
	if c.step <= 0 {
		c.step = 1e-6
	}
	c.sinceAdapt = 0
	c.acceptedSinceAdapt = 0
}
