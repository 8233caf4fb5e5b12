package mcmc

import (
	"runtime"
	"time"
)

// workItem is one objective evaluation dispatched to the pool, mirroring
// the teacher's likeChanType/likeChan pattern (infer/walk/concurrency.go):
// a value set plus a private evaluator to run it through, with the
// answer returned on its own channel rather than a shared one.
type workItem struct {
	index  int
	values []float64
	eval   Evaluator
	answer chan<- workAnswer
}

type workAnswer struct {
	index int
	score Breakdown
	err   error
}

var workChan chan workItem

// Start prepares the package for parallel objective evaluation. Use cpu
// to bound the number of goroutines; the default (zero) uses all
// available CPUs. Each worker must be handed an Evaluator backed by its
// own private Model clone (spec.md §5: "no shared mutable state is
// permitted across evaluator invocations") — the pool itself holds no
// model state.
func Start(cpu int) {
	if cpu == 0 {
		cpu = runtime.NumCPU()
	}
	workChan = make(chan workItem, cpu*2)
	for range cpu {
		go runWorker()
	}
}

// End closes the pool's goroutines.
func End() {
	close(workChan)
	time.Sleep(10 * time.Millisecond)
}

func runWorker() {
	for item := range workChan {
		score, err := item.eval(item.values)
		item.answer <- workAnswer{index: item.index, score: score, err: err}
	}
}

// EvaluateParallel dispatches one evaluation per (values[i], evals[i])
// pair across the pool and collects the results indexed back to their
// original position. Its caller in this module is the -p profile mode
// of cmd/asa.
func EvaluateParallel(values [][]float64, evals []Evaluator) ([]Breakdown, []error) {
	answer := make(chan workAnswer, len(values))
	go func() {
		for i := range values {
			workChan <- workItem{index: i, values: values[i], eval: evals[i], answer: answer}
		}
	}()

	scores := make([]Breakdown, len(values))
	errs := make([]error, len(values))
	for i := 0; i < len(values); i++ {
		a := <-answer
		scores[a.index] = a.score
		errs[a.index] = a.err
	}
	return scores, errs
}
