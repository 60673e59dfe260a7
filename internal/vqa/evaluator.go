package vqa

import (
	"context"
	"fmt"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/dist"
)

// Evaluator scores a parameter vector by building the ansatz, executing it and
// comparing the measured distribution with the target.
type Evaluator struct {
	target  []float64
	ansatz  ansatz.Config
	backend backend.Backend
	shots   int
}

// NewEvaluator creates an evaluator for target. The ansatz qubit count must
// match the target size.
func NewEvaluator(target []float64, cfg ansatz.Config, b backend.Backend, shots int) (*Evaluator, error) {
	qubits, err := dist.Qubits(len(target))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if cfg.Qubits != qubits {
		return nil, fmt.Errorf("ansatz has %d qubits but target needs %d", cfg.Qubits, qubits)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("backend is required")
	}
	if shots <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShots, shots)
	}

	return &Evaluator{
		target:  target,
		ansatz:  cfg,
		backend: b,
		shots:   shots,
	}, nil
}

// Sample builds and executes the circuit for params once. It returns the
// reconciled counts and the probability vector in ascending outcome order.
func (e *Evaluator) Sample(ctx context.Context, params []float64) (dist.Counts, []float64, error) {
	qc, err := ansatz.Build(params, e.ansatz)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build ansatz: %w", err)
	}

	counts, err := e.backend.Execute(ctx, qc, e.shots)
	if err != nil {
		return nil, nil, fmt.Errorf("backend %s execution failed: %w", e.backend.Name(), err)
	}

	size := len(e.target)
	if len(counts) != size {
		counts = dist.Reconcile(counts, e.ansatz.Qubits)
	}
	if len(counts) != size {
		return nil, nil, fmt.Errorf("backend %s returned %d distinct outcomes for a %d-outcome space",
			e.backend.Name(), len(counts), size)
	}

	probs := dist.Normalize(counts, e.shots)
	// a zero-qubit space has one outcome; drop the complement Normalize appends
	if len(probs) > size {
		probs = probs[:size]
	}

	return counts, probs, nil
}

// Cost returns the L1 distance between the measured distribution for params
// and the target.
func (e *Evaluator) Cost(ctx context.Context, params []float64) (float64, error) {
	_, probs, err := e.Sample(ctx, params)
	if err != nil {
		return 0, err
	}
	return dist.L1(probs, e.target), nil
}

// Target returns the target distribution.
func (e *Evaluator) Target() []float64 {
	return e.target
}
