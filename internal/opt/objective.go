package opt

import (
	"context"
	"errors"
	"math"
	"sync"
)

// objective adapts a CostFunc to the error-free func([]float64) float64 that
// third-party optimizers expect. The first error is recorded; every later call
// returns +Inf without touching the cost function so the optimizer winds down
// cheaply. It also tracks the best point and the evaluation count.
type objective struct {
	mu    sync.Mutex
	ctx   context.Context
	cost  CostFunc
	err   error
	limit int
	evals int
	bestX []float64
	bestF float64
}

func newObjective(ctx context.Context, cost CostFunc) *objective {
	return &objective{
		ctx:   ctx,
		cost:  cost,
		bestF: math.Inf(1),
	}
}

func (o *objective) eval(x []float64) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return math.Inf(1)
	}
	if o.limit > 0 && o.evals >= o.limit {
		o.err = ErrStop
		return math.Inf(1)
	}
	if err := o.ctx.Err(); err != nil {
		o.err = err
		return math.Inf(1)
	}

	f, err := o.cost(x)
	if err != nil && !errors.Is(err, ErrStop) {
		o.err = err
		return math.Inf(1)
	}

	o.evals++
	if f < o.bestF || o.evals == 1 {
		o.bestF = f
		o.bestX = append(o.bestX[:0], x...)
	}
	if err != nil {
		o.err = err
	}
	return f
}

// halted reports whether the cost function failed or asked to stop.
func (o *objective) halted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err != nil
}

// result converts the tracked state into the optimizer's return values.
func (o *objective) result() (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil && !errors.Is(o.err, ErrStop) {
		return Result{Iterations: o.evals}, o.err
	}
	if o.evals == 0 {
		return Result{}, ErrNoEvaluations
	}

	return Result{
		X:          append([]float64{}, o.bestX...),
		F:          o.bestF,
		Iterations: o.evals,
	}, nil
}
