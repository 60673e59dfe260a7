package opt

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// Mayfly is population based: the initial point is evaluated once so it takes
// part in the best-point tracking, but the population is drawn from the bounds.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
	lower    float64
	upper    float64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64, lower, upper float64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
		lower:    lower,
		upper:    upper,
	}
}

// Minimize executes the Mayfly optimization using the external library
func (m *MayflyAdapter) Minimize(ctx context.Context, cost CostFunc, initial []float64) (Result, error) {
	obj := newObjective(ctx, cost)
	obj.eval(initial)
	if obj.halted() || len(initial) == 0 {
		return obj.result()
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = obj.eval
	config.ProblemSize = len(initial)
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// External library uses scalar bounds
	config.LowerBound = m.lower
	config.UpperBound = m.upper

	config.Rand = rand.New(rand.NewSource(m.seed))

	if _, err := mayfly.Optimize(config); err != nil && !obj.halted() {
		return Result{}, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return obj.result()
}
