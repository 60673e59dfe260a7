package opt

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
)

// CostFunc is the objective to minimize. Returning an error aborts the
// optimization; returning ErrStop ends it early with the best point seen.
type CostFunc func(x []float64) (float64, error)

// Result is what every optimizer reports.
type Result struct {
	// X is the best parameter vector found
	X []float64
	// F is the cost at X
	F float64
	// Iterations counts cost-function evaluations
	Iterations int
}

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Minimize searches for the minimum of cost starting from initial.
	// The number of free variables is len(initial). Cost evaluations are issued
	// strictly one at a time.
	Minimize(ctx context.Context, cost CostFunc, initial []float64) (Result, error)
}

var (
	// ErrStop can be returned by a CostFunc to end the search successfully.
	ErrStop = errors.New("optimization stopped")
	// ErrUnknownOptimizer is returned when the name does not match a known optimizer.
	ErrUnknownOptimizer = errors.New("unknown optimizer")
	// ErrNoEvaluations is returned when an optimizer finished without evaluating the cost.
	ErrNoEvaluations = errors.New("optimizer made no evaluations")
)

// Settings configures optimizer construction. Zero values select defaults.
type Settings struct {
	// MaxEvals bounds cost evaluations for Nelder-Mead
	MaxEvals int
	// Tolerance is the absolute cost change treated as converged (Nelder-Mead)
	Tolerance float64
	// Step is the initial simplex size (Nelder-Mead)
	Step float64

	// MaxIters and PopSize configure Mayfly
	MaxIters int
	PopSize  int
	Seed     int64

	// Lower and Upper bound every parameter for population methods
	Lower float64
	Upper float64
}

// DefaultSettings returns the settings used when a field is left zero.
func DefaultSettings() Settings {
	return Settings{
		MaxEvals:  1000,
		Tolerance: 1e-4,
		Step:      0.5,
		MaxIters:  50,
		PopSize:   20,
		Seed:      42,
		Lower:     0,
		Upper:     2 * math.Pi,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MaxEvals <= 0 {
		s.MaxEvals = d.MaxEvals
	}
	if s.Tolerance <= 0 {
		s.Tolerance = d.Tolerance
	}
	if s.Step <= 0 {
		s.Step = d.Step
	}
	if s.MaxIters <= 0 {
		s.MaxIters = d.MaxIters
	}
	if s.PopSize <= 0 {
		s.PopSize = d.PopSize
	}
	if s.Lower == 0 && s.Upper == 0 {
		s.Lower, s.Upper = d.Lower, d.Upper
	}
	return s
}

// Name identifies an optimizer implementation.
type Name string

const (
	NameNelderMead Name = "neldermead"
	NameMayfly     Name = "mayfly"
)

// NormalizeName maps user input to a canonical optimizer name.
func NormalizeName(name string) Name {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "neldermead", "nelder-mead", "nm", "simplex":
		return NameNelderMead
	case "mayfly":
		return NameMayfly
	default:
		return Name(name)
	}
}

// New constructs the named optimizer.
func New(name string, s Settings) (Optimizer, error) {
	s = s.withDefaults()

	switch NormalizeName(name) {
	case NameNelderMead:
		return NewNelderMead(s.MaxEvals, s.Tolerance, s.Step), nil
	case NameMayfly:
		return NewMayfly(s.MaxIters, s.PopSize, s.Seed, s.Lower, s.Upper), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOptimizer, name)
	}
}
