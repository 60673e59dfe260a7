package opt

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/optimize"
)

// stopped terminates a gonum run once the cost function has failed or asked to stop.
var stopped = optimize.NewStatus("CostFunctionHalted", true, nil)

// NelderMead is a derivative-free simplex search backed by gonum/optimize.
// It starts from the caller's initial point.
type NelderMead struct {
	maxEvals  int
	tolerance float64
	step      float64
}

// NewNelderMead creates a Nelder-Mead optimizer.
func NewNelderMead(maxEvals int, tolerance, step float64) Optimizer {
	return &NelderMead{
		maxEvals:  maxEvals,
		tolerance: tolerance,
		step:      step,
	}
}

// Minimize implements Optimizer.
func (nm *NelderMead) Minimize(ctx context.Context, cost CostFunc, initial []float64) (Result, error) {
	obj := newObjective(ctx, cost)
	obj.limit = nm.maxEvals

	// gonum rejects a zero-dimensional start point; the lone point is the answer
	if len(initial) == 0 {
		obj.eval(initial)
		return obj.result()
	}

	problem := optimize.Problem{Func: obj.eval}
	settings := &optimize.Settings{
		FuncEvaluations: nm.maxEvals,
		Concurrent:      1,
		Converger: &haltConverger{
			obj:   obj,
			inner: &optimize.FunctionConverge{Absolute: nm.tolerance, Iterations: 20},
		},
	}
	method := &optimize.NelderMead{SimplexSize: nm.step}

	res, err := optimize.Minimize(problem, append([]float64(nil), initial...), settings, method)
	if err != nil && !obj.halted() {
		slog.Warn("Nelder-Mead terminated with error", "error", err)
	}
	if res != nil {
		slog.Debug("Nelder-Mead finished", "status", res.Status.String(), "evaluations", res.Stats.FuncEvaluations)
	}

	return obj.result()
}

// haltConverger stops the run when the objective has halted and otherwise
// defers to the wrapped convergence test.
type haltConverger struct {
	obj   *objective
	inner optimize.Converger
}

func (c *haltConverger) Init(dim int) {
	c.inner.Init(dim)
}

func (c *haltConverger) Converged(loc *optimize.Location) optimize.Status {
	if c.obj.halted() {
		return stopped
	}
	return c.inner.Converged(loc)
}
