package backend

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"sort"
	"sync"

	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
)

// MaxSimQubits bounds the state-vector size the simulator accepts.
const MaxSimQubits = 20

// Simulator is a state-vector simulator that samples measurement outcomes.
// Qubit q maps to bit q of the basis-state index, so index i formats to the
// same bitstring a hardware histogram would report.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator creates a simulator with a seeded sampler.
func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Name implements Backend.
func (s *Simulator) Name() string {
	return string(KindSimulator)
}

// Execute implements Backend.
func (s *Simulator) Execute(ctx context.Context, c *circuit.Circuit, shots int) (dist.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if shots <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidShots, shots)
	}

	probs, err := Probabilities(c)
	if err != nil {
		return nil, err
	}

	return s.sample(probs, c.NumQubits, shots), nil
}

// Probabilities evolves |0...0> through c and returns |amplitude|^2 per basis state.
func Probabilities(c *circuit.Circuit) ([]float64, error) {
	if c.NumQubits < 0 || c.NumQubits > MaxSimQubits {
		return nil, fmt.Errorf("simulator supports 0..%d qubits, got %d", MaxSimQubits, c.NumQubits)
	}

	sv := newStateVector(c.NumQubits)
	for _, op := range c.Ops {
		if err := sv.apply(op); err != nil {
			return nil, err
		}
	}

	probs := make([]float64, len(sv.amps))
	for i, a := range sv.amps {
		probs[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return probs, nil
}

func (s *Simulator) sample(probs []float64, qubits, shots int) dist.Counts {
	cdf := make([]float64, len(probs))
	total := 0.0
	for i, p := range probs {
		total += p
		cdf[i] = total
	}

	hits := make([]int, len(probs))

	s.mu.Lock()
	for shot := 0; shot < shots; shot++ {
		r := s.rng.Float64() * total
		idx := sort.Search(len(cdf), func(i int) bool { return cdf[i] > r })
		if idx == len(cdf) {
			idx = lastNonZero(probs)
		}
		hits[idx]++
	}
	s.mu.Unlock()

	counts := make(dist.Counts)
	for i, h := range hits {
		if h > 0 {
			counts[dist.Label(i, qubits)] = h
		}
	}
	return counts
}

func lastNonZero(probs []float64) int {
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return 0
}

type stateVector struct {
	n    int
	amps []complex128
}

func newStateVector(n int) *stateVector {
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &stateVector{n: n, amps: amps}
}

func (sv *stateVector) apply(op circuit.Op) error {
	for _, q := range op.Qubits {
		if q < 0 || q >= sv.n {
			return fmt.Errorf("%s on qubit %d outside register of %d", op.Kind, q, sv.n)
		}
	}

	switch op.Kind {
	case circuit.KindU3:
		if len(op.Params) != 3 {
			return fmt.Errorf("u3 needs 3 angles, got %d", len(op.Params))
		}
		sv.apply1(op.Qubits[0], u3Matrix(op.Params[0], op.Params[1], op.Params[2]))
	case circuit.KindRY:
		if len(op.Params) != 1 {
			return fmt.Errorf("ry needs 1 angle, got %d", len(op.Params))
		}
		sv.apply1(op.Qubits[0], ryMatrix(op.Params[0]))
	case circuit.KindRZ:
		if len(op.Params) != 1 {
			return fmt.Errorf("rz needs 1 angle, got %d", len(op.Params))
		}
		sv.apply1(op.Qubits[0], rzMatrix(op.Params[0]))
	case circuit.KindCX:
		if len(op.Qubits) != 2 || op.Qubits[0] == op.Qubits[1] {
			return fmt.Errorf("cx needs two distinct qubits, got %v", op.Qubits)
		}
		sv.applyCX(op.Qubits[0], op.Qubits[1])
	case circuit.KindMeasure:
		// sampling happens after evolution
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedOp, op.Kind)
	}
	return nil
}

func (sv *stateVector) apply1(q int, m [2][2]complex128) {
	bit := 1 << q
	for i := range sv.amps {
		if i&bit != 0 {
			continue
		}
		j := i | bit
		a0, a1 := sv.amps[i], sv.amps[j]
		sv.amps[i] = m[0][0]*a0 + m[0][1]*a1
		sv.amps[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

func (sv *stateVector) applyCX(control, target int) {
	cBit := 1 << control
	tBit := 1 << target
	for i := range sv.amps {
		if i&cBit != 0 && i&tBit == 0 {
			j := i | tBit
			sv.amps[i], sv.amps[j] = sv.amps[j], sv.amps[i]
		}
	}
}

func u3Matrix(theta, phi, lambda float64) [2][2]complex128 {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return [2][2]complex128{
		{c, -cmplx.Exp(complex(0, lambda)) * s},
		{cmplx.Exp(complex(0, phi)) * s, cmplx.Exp(complex(0, phi+lambda)) * c},
	}
}

func ryMatrix(theta float64) [2][2]complex128 {
	c := complex(math.Cos(theta/2), 0)
	s := complex(math.Sin(theta/2), 0)
	return [2][2]complex128{
		{c, -s},
		{s, c},
	}
}

func rzMatrix(theta float64) [2][2]complex128 {
	return [2][2]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	}
}
