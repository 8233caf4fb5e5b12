// ASA is a tool for age/length-structured stock assessment: it runs a
// single model iteration, searches for the maximum-posterior-density
// parameter set, samples the posterior via MCMC, or repeats full
// iterations in simulation mode, all from one scenario file (spec.md §6).
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/js-arias/command"

	"github.com/fishmodel/asa/config"
	"github.com/fishmodel/asa/mcmc"
	"github.com/fishmodel/asa/minimiser"
	"github.com/fishmodel/asa/model"
	"github.com/fishmodel/asa/rng"
)

var app = &command.Command{
	Usage: `asa [-r | -e | -m | -s <n> | -f | -p] -c <scenario>
	[-i <file>] [-o <file>] [-g <seed>] [-l]`,
	Short: "run or estimate an age/length-structured population model",
	Long: `
ASA builds a Model from a scenario file (flag -c) and runs it in one of six
modes: -r runs a single basic iteration; -e searches for the values that
minimise the objective score; -m samples the posterior with MCMC, starting
from the minimiser's solution and covariance approximation; -s <n> runs n
full iterations and reports the count, without generating or writing any
simulated observation values; -f projects the model forward using already-estimated
values; -p profiles the objective score across a grid spanning each
estimate's bounds, evaluated in parallel over -cpu workers.

Flag -i reads a free-parameter file to initialise the enabled estimates
before running. Flag -o writes the resulting free-parameter table (-r, -e,
-f) or MCMC chain file (-m); -s and -p write no file. Flag -g sets the random seed, overriding
any seed declared in the scenario file. Flag -l lists every enabled estimate
and exits.
	`,
	SetFlags: setFlags,
	Run:      run,
}

var (
	basicFlag      bool
	estimateFlag   bool
	mcmcFlag       bool
	simulateFlag   int
	projectFlag    bool
	profileFlag    bool
	scenarioFlag   string
	inputFlag      string
	outputFlag     string
	seedFlag       uint64
	listFlag       bool
	cpuFlag        int
	iterationsFlag int
)

func setFlags(c *command.Command) {
	c.Flags().BoolVar(&basicFlag, "r", false, "")
	c.Flags().BoolVar(&estimateFlag, "e", false, "")
	c.Flags().BoolVar(&mcmcFlag, "m", false, "")
	c.Flags().IntVar(&simulateFlag, "s", 0, "")
	c.Flags().BoolVar(&projectFlag, "f", false, "")
	c.Flags().BoolVar(&profileFlag, "p", false, "")
	c.Flags().StringVar(&scenarioFlag, "c", "", "")
	c.Flags().StringVar(&inputFlag, "i", "", "")
	c.Flags().StringVar(&outputFlag, "o", "", "")
	c.Flags().Uint64Var(&seedFlag, "g", 0, "")
	c.Flags().BoolVar(&listFlag, "l", false, "")
	c.Flags().IntVar(&cpuFlag, "cpu", runtime.NumCPU(), "")
	c.Flags().IntVar(&iterationsFlag, "iterations", 1000, "")
}

// exitCode mirrors spec.md §6/§7: 0 success, 1 minimiser convergence
// undetermined, 2 minimiser failed, 10+ fatal configuration/runtime
// error, -1 host/system error.
const (
	exitSuccess              = 0
	exitConvergenceUndetermined = 1
	exitMinimiserFailed      = 2
	exitConfigError          = 10
)

func run(c *command.Command, args []string) error {
	if scenarioFlag == "" {
		return c.UsageError("expecting scenario file (-c)")
	}

	mode, err := selectedMode()
	if err != nil {
		return c.UsageError(err.Error())
	}

	m, err := config.BuildModel(scenarioFlag)
	if err != nil {
		os.Exit(exitConfigError)
		return err
	}
	m.Mode = mode
	if seedFlag != 0 {
		m.Seed = seedFlag
		m.RNG = rng.New(seedFlag)
	}

	if inputFlag != "" {
		fp, err := config.ReadFreeParams(inputFlag)
		if err != nil {
			os.Exit(exitConfigError)
			return err
		}
		if len(fp.Rows) > 0 {
			if err := fp.ApplyRow(0, m.Estimates); err != nil {
				os.Exit(exitConfigError)
				return err
			}
		}
	}

	if listFlag {
		for _, e := range m.Estimates.Enabled() {
			fmt.Fprintf(c.Stdout(), "%s\t%v\n", e.Label, e.Natural())
		}
		return nil
	}

	switch mode {
	case model.Basic:
		return runBasic(c, m)
	case model.Estimation:
		return runEstimation(c, m)
	case model.MCMCMode:
		return runMCMC(c, m)
	case model.Simulation:
		return runSimulation(c, m)
	case model.Profile:
		return runProfile(c, m)
	case model.Projection:
		return runBasic(c, m)
	}
	return fmt.Errorf("unhandled mode %v", mode)
}

func selectedMode() (model.RunMode, error) {
	count := 0
	mode := model.Basic
	if basicFlag {
		count++
		mode = model.Basic
	}
	if estimateFlag {
		count++
		mode = model.Estimation
	}
	if mcmcFlag {
		count++
		mode = model.MCMCMode
	}
	if simulateFlag > 0 {
		count++
		mode = model.Simulation
	}
	if projectFlag {
		count++
		mode = model.Projection
	}
	if profileFlag {
		count++
		mode = model.Profile
	}
	if count == 0 {
		return mode, fmt.Errorf("expecting one of -r, -e, -m, -s, -f, -p")
	}
	if count > 1 {
		return mode, fmt.Errorf("only one of -r, -e, -m, -s, -f, -p is allowed")
	}
	return mode, nil
}

func runBasic(c *command.Command, m *model.Model) error {
	if err := m.RunFullIteration(); err != nil {
		os.Exit(exitConfigError)
		return err
	}
	b := m.Objective.Evaluate()
	fmt.Fprintf(c.Stdout(), "score\t%v\n", b.Score)

	if outputFlag != "" {
		fp := &config.FreeParams{}
		if err := fp.CaptureRow(m.Estimates); err != nil {
			return err
		}
		if err := fp.Write(outputFlag); err != nil {
			return err
		}
	}
	return nil
}

func runEstimation(c *command.Command, m *model.Model) error {
	ests := m.Estimates.Enabled()
	start := make([]float64, len(ests))
	for i, e := range ests {
		start[i] = e.Transformed()
	}

	eval := func(values []float64) (float64, error) {
		for i, e := range ests {
			if err := e.SetTransformed(values[i]); err != nil {
				return 0, err
			}
		}
		if err := m.RunFullIteration(); err != nil {
			return 0, err
		}
		return m.Objective.Evaluate().Score, nil
	}

	hc := minimiser.HillClimb{InitialStep: 1}
	result, err := hc.Minimise(start, eval, 1e-6, iterationsFlag)
	if err != nil {
		os.Exit(exitMinimiserFailed)
		return err
	}
	for i, e := range ests {
		if err := e.SetTransformed(result.Values[i]); err != nil {
			return err
		}
	}
	fmt.Fprintf(c.Stdout(), "status\t%s\n", result.Status)
	fmt.Fprintf(c.Stdout(), "score\t%v\n", result.Score)

	if outputFlag != "" {
		fp := &config.FreeParams{}
		if err := fp.CaptureRow(m.Estimates); err != nil {
			return err
		}
		if err := fp.Write(outputFlag); err != nil {
			return err
		}
	}

	switch result.Status {
	case minimiser.Success:
		return nil
	case minimiser.StepTooSmall, minimiser.TooManyIterations:
		os.Exit(exitConvergenceUndetermined)
	default:
		os.Exit(exitMinimiserFailed)
	}
	return nil
}

func runMCMC(c *command.Command, m *model.Model) error {
	ests := m.Estimates.MCMCFree()
	start := make([]float64, len(ests))
	for i, e := range ests {
		start[i] = e.Transformed()
	}

	eval := func(values []float64) (mcmc.Breakdown, error) {
		for i, e := range ests {
			if err := e.SetTransformed(values[i]); err != nil {
				return mcmc.Breakdown{}, err
			}
		}
		if err := m.RunFullIteration(); err != nil {
			return mcmc.Breakdown{}, err
		}
		b := m.Objective.Evaluate()
		return mcmc.Breakdown{
			Score:            b.Score,
			Likelihood:       b.Likelihood,
			Prior:            b.Prior,
			Penalty:          b.Penalty,
			AdditionalPriors: b.AdditionalPriors,
		}, nil
	}

	// The chain starts from the minimiser's solution and covariance.
	hc := minimiser.HillClimb{InitialStep: 1}
	result, err := hc.Minimise(start, func(values []float64) (float64, error) {
		b, err := eval(values)
		return b.Score, err
	}, 1e-6, iterationsFlag)
	if err != nil || result.Covariance == nil {
		os.Exit(exitMinimiserFailed)
		return err
	}

	cfg := mcmc.Config{
		TargetAcceptance: 0.24,
		AdaptEvery:       100,
		Iterations:       iterationsFlag,
		Keep:             1,
		Start:            result.Values,
		StartStep:        1,
	}
	chain, err := mcmc.New(cfg, eval, result.Covariance, m.RNG)
	if err != nil {
		os.Exit(exitConfigError)
		return err
	}
	links, err := chain.Run()
	if err != nil {
		os.Exit(exitMinimiserFailed)
		return err
	}
	fmt.Fprintf(c.Stdout(), "kept\t%d\n", len(links))

	if outputFlag != "" {
		if err := config.WriteChain(outputFlag, links); err != nil {
			return err
		}
	}
	return nil
}

// profileGridPoints is the number of natural-scale values sampled
// across each estimate's bounds by runProfile.
const profileGridPoints = 11

// runProfile evaluates the objective across a grid of natural-scale
// values for every enabled estimate, holding the others at the value
// they carry in the scenario file (spec.md §5: the minimiser may
// evaluate the objective on separate worker threads only if each
// thread owns a private Model). Each grid point rebuilds its own
// Model from the scenario file rather than calling m.Clone: Clone
// does not rebind the Estimates registry against the clone's own
// Processes (see DESIGN.md), so a worker that needs to set a
// different estimate value must own estimates resolved against its
// own process instances, which a fresh config.BuildModel call gives
// it directly.
func runProfile(c *command.Command, m *model.Model) error {
	ests := m.Estimates.Enabled()
	if len(ests) == 0 {
		return fmt.Errorf("profile mode requires at least one enabled estimate")
	}

	type point struct {
		label   string
		natural float64
	}
	var points []point
	var values [][]float64
	var evals []mcmc.Evaluator

	for _, e := range ests {
		label := e.Label
		lo, hi := e.LowerBound, e.UpperBound
		for i := 0; i < profileGridPoints; i++ {
			frac := float64(i) / float64(profileGridPoints-1)
			natural := lo + frac*(hi-lo)
			points = append(points, point{label: label, natural: natural})
			values = append(values, []float64{natural})
			evals = append(evals, func(_ []float64) (mcmc.Breakdown, error) {
				worker, err := config.BuildModel(scenarioFlag)
				if err != nil {
					return mcmc.Breakdown{}, err
				}
				we, ok := worker.Estimates.Get(label)
				if !ok {
					return mcmc.Breakdown{}, fmt.Errorf("profile: estimate %q missing from rebuilt model", label)
				}
				if err := we.SetNatural(natural); err != nil {
					return mcmc.Breakdown{}, err
				}
				if err := worker.RunFullIteration(); err != nil {
					return mcmc.Breakdown{}, err
				}
				b := worker.Objective.Evaluate()
				return mcmc.Breakdown{
					Score:            b.Score,
					Likelihood:       b.Likelihood,
					Prior:            b.Prior,
					Penalty:          b.Penalty,
					AdditionalPriors: b.AdditionalPriors,
				}, nil
			})
		}
	}

	mcmc.Start(cpuFlag)
	defer mcmc.End()
	scores, errs := mcmc.EvaluateParallel(values, evals)

	fmt.Fprintf(c.Stdout(), "estimate\tvalue\tscore\n")
	for i, p := range points {
		if errs[i] != nil {
			fmt.Fprintf(c.Stdout(), "%s\t%v\terror: %v\n", p.label, p.natural, errs[i])
			continue
		}
		fmt.Fprintf(c.Stdout(), "%s\t%v\t%v\n", p.label, p.natural, scores[i].Score)
	}
	return nil
}

func runSimulation(c *command.Command, m *model.Model) error {
	for i := 0; i < simulateFlag; i++ {
		if err := m.RunFullIteration(); err != nil {
			os.Exit(exitConfigError)
			return err
		}
	}
	fmt.Fprintf(c.Stdout(), "simulated\t%d\n", simulateFlag)
	return nil
}

func main() {
	app.Main()
}
