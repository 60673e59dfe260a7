package vqa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/dist"
	"github.com/cwbudde/vqafit/internal/opt"
)

var (
	// ErrInvalidTarget is returned for an empty target or one whose length is
	// not a power of two.
	ErrInvalidTarget = errors.New("invalid target distribution")
	// ErrInvalidShots is returned for a non-positive shot count.
	ErrInvalidShots = errors.New("shots must be positive")
)

// Config holds the construction parameters of a Trainer.
type Config struct {
	Target       []float64
	Gate         ansatz.GateFamily
	Layers       int
	Entanglement ansatz.Entanglement
	Shots        int
	LegacyCursor bool
	// Seed drives the initial parameter draw
	Seed int64
}

// DefaultConfig returns the defaults for everything but the target.
func DefaultConfig() Config {
	return Config{
		Gate:         ansatz.U3,
		Layers:       4,
		Entanglement: ansatz.Linear,
		Shots:        1024,
		Seed:         1,
	}
}

// Ansatz derives the ansatz configuration. The target must already be valid.
func (c Config) Ansatz() (ansatz.Config, error) {
	qubits, err := dist.Qubits(len(c.Target))
	if err != nil {
		return ansatz.Config{}, fmt.Errorf("%w: length %d: %v", ErrInvalidTarget, len(c.Target), err)
	}
	return ansatz.Config{
		Qubits:       qubits,
		Layers:       c.Layers,
		Gate:         c.Gate,
		Entanglement: c.Entanglement,
		LegacyCursor: c.LegacyCursor,
	}, nil
}

// Evaluation describes one cost-function call.
type Evaluation struct {
	// Index is 1-based
	Index    int
	Cost     float64
	Params   []float64
	BestCost float64
}

// Observer is notified after every cost evaluation. It runs on the training
// goroutine and must not retain Params beyond the call unless it copies them.
type Observer func(Evaluation)

// Option customizes a Trainer.
type Option func(*Trainer) error

// WithInitialParams replaces the random initial point.
func WithInitialParams(params []float64) Option {
	return func(t *Trainer) error {
		if len(params) != len(t.initial) {
			return fmt.Errorf("initial params: got %d values, want %d", len(params), len(t.initial))
		}
		t.initial = append([]float64(nil), params...)
		return nil
	}
}

// WithObserver registers a per-evaluation callback.
func WithObserver(o Observer) Option {
	return func(t *Trainer) error {
		t.observer = o
		return nil
	}
}

// WithConvergence enables early stopping once the best cost stalls.
func WithConvergence(cfg ConvergenceConfig) Option {
	return func(t *Trainer) error {
		if cfg.Enabled && cfg.Patience <= 0 {
			return fmt.Errorf("convergence patience must be positive, got %d", cfg.Patience)
		}
		t.convergence = cfg
		return nil
	}
}

// Trainer couples an optimizer with an Evaluator. It carries configuration
// only; per-run state lives in runState.
type Trainer struct {
	cfg         Config
	ansatz      ansatz.Config
	eval        *Evaluator
	optimizer   opt.Optimizer
	backend     backend.Backend
	initial     []float64
	observer    Observer
	convergence ConvergenceConfig
}

// NewTrainer validates cfg and prepares a trainer. The initial parameters are
// drawn uniformly from [0, 1) with cfg.Seed unless WithInitialParams is given.
func NewTrainer(cfg Config, optimizer opt.Optimizer, b backend.Backend, opts ...Option) (*Trainer, error) {
	if len(cfg.Target) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTarget)
	}
	if optimizer == nil {
		return nil, errors.New("optimizer is required")
	}
	if b == nil {
		return nil, errors.New("backend is required")
	}
	if cfg.Shots <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShots, cfg.Shots)
	}

	ac, err := cfg.Ansatz()
	if err != nil {
		return nil, err
	}
	if err := ac.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ansatz: %w", err)
	}

	eval, err := NewEvaluator(cfg.Target, ac, b, cfg.Shots)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	initial := make([]float64, ac.ParamCount())
	for i := range initial {
		initial[i] = rng.Float64()
	}

	t := &Trainer{
		cfg:         cfg,
		ansatz:      ac,
		eval:        eval,
		optimizer:   optimizer,
		backend:     b,
		initial:     initial,
		convergence: DisabledConvergenceConfig(),
	}
	for _, o := range opts {
		if err := o(t); err != nil {
			return nil, err
		}
	}

	return t, nil
}

// InitialParams returns a copy of the starting point.
func (t *Trainer) InitialParams() []float64 {
	return append([]float64(nil), t.initial...)
}

// Ansatz returns the derived ansatz configuration.
func (t *Trainer) Ansatz() ansatz.Config {
	return t.ansatz
}

// runState is the mutable state of one Run.
type runState struct {
	evals      int
	bestCost   float64
	bestParams []float64
	tracker    *ConvergenceTracker
}

func (t *Trainer) objective(ctx context.Context, st *runState) opt.CostFunc {
	return func(x []float64) (float64, error) {
		cost, err := t.eval.Cost(ctx, x)
		if err != nil {
			return 0, err
		}

		st.evals++
		if cost < st.bestCost {
			st.bestCost = cost
			st.bestParams = append(st.bestParams[:0], x...)
		}

		if t.observer != nil {
			t.observer(Evaluation{
				Index:    st.evals,
				Cost:     cost,
				Params:   x,
				BestCost: st.bestCost,
			})
		}

		if st.tracker.Update(cost) {
			return cost, opt.ErrStop
		}
		return cost, nil
	}
}

// Run trains the ansatz and re-executes the best parameters once to produce
// the reported distribution.
func (t *Trainer) Run(ctx context.Context) (*TrainingResult, error) {
	start := time.Now()

	st := &runState{
		bestCost: math.Inf(1),
		tracker:  NewConvergenceTracker(t.convergence),
	}

	slog.Info("Starting training",
		"qubits", t.ansatz.Qubits,
		"layers", t.ansatz.Layers,
		"gate", t.ansatz.Gate,
		"entanglement", t.ansatz.Entanglement,
		"params", len(t.initial),
		"shots", t.cfg.Shots,
		"backend", t.backend.Name(),
	)

	res, err := t.optimizer.Minimize(ctx, t.objective(ctx, st), t.InitialParams())
	if err != nil {
		return nil, fmt.Errorf("optimization failed after %d evaluations: %w", st.evals, err)
	}
	if len(res.X) != len(t.initial) {
		return nil, fmt.Errorf("optimizer returned %d parameters, want %d", len(res.X), len(t.initial))
	}

	counts, output, err := t.eval.Sample(ctx, res.X)
	if err != nil {
		return nil, fmt.Errorf("final evaluation failed: %w", err)
	}
	finalCost := dist.L1(output, t.cfg.Target)

	result := &TrainingResult{
		Target:        append([]float64(nil), t.cfg.Target...),
		Output:        output,
		Counts:        counts,
		Cost:          res.F,
		FinalCost:     finalCost,
		Params:        append([]float64(nil), res.X...),
		InitialParams: t.InitialParams(),
		Iterations:    res.Iterations,
		Qubits:        t.ansatz.Qubits,
		Layers:        t.ansatz.Layers,
		Gate:          t.ansatz.Gate,
		Entanglement:  t.ansatz.Entanglement,
		Shots:         t.cfg.Shots,
		Duration:      time.Since(start),
	}

	slog.Info("Training complete",
		"cost", result.Cost,
		"final_cost", result.FinalCost,
		"iterations", result.Iterations,
		"evaluations", st.evals,
		"duration", result.Duration,
	)

	return result, nil
}
