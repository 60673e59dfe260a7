package ansatz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/vqafit/internal/circuit"
)

// GateFamily selects the single-qubit rotation layer.
type GateFamily string

const (
	U3   GateFamily = "U3"
	RYRZ GateFamily = "RYRZ"
)

// Entanglement selects the CX coupling pattern between rotation layers.
type Entanglement string

const (
	Linear Entanglement = "Linear"
	Full   Entanglement = "Full"
)

// ParamsPerQubitLayer is the parameter budget per qubit and layer for both families.
const ParamsPerQubitLayer = 3

var (
	// ErrUnknownGateFamily is returned for a gate family other than U3 or RYRZ.
	ErrUnknownGateFamily = errors.New("unknown gate family")
	// ErrUnknownEntanglement is returned for a topology other than Linear or Full.
	ErrUnknownEntanglement = errors.New("unknown entanglement topology")
	// ErrShortParams is returned when the parameter vector is too short for the ansatz.
	ErrShortParams = errors.New("parameter vector too short")
	// ErrInvalidLayers is returned for a non-positive layer count.
	ErrInvalidLayers = errors.New("layers must be positive")
)

// ParseGateFamily maps user input to a GateFamily, case-insensitively.
func ParseGateFamily(s string) (GateFamily, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "U3", "U":
		return U3, nil
	case "RYRZ", "RY-RZ", "RY_RZ":
		return RYRZ, nil
	default:
		return "", fmt.Errorf("%w: %q (want U3 or RYRZ)", ErrUnknownGateFamily, s)
	}
}

// ParseEntanglement maps user input to an Entanglement, case-insensitively.
func ParseEntanglement(s string) (Entanglement, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return Linear, nil
	case "full":
		return Full, nil
	default:
		return "", fmt.Errorf("%w: %q (want Linear or Full)", ErrUnknownEntanglement, s)
	}
}

// Config describes the shape of an ansatz.
type Config struct {
	Qubits       int
	Layers       int
	Gate         GateFamily
	Entanglement Entanglement

	// LegacyCursor reproduces the historical U3 indexing: angles for qubit j are
	// read at offsets i+j, i+j+1, i+j+2 and the cursor i advances by Qubits per
	// layer, so neighbouring qubits and layers share parameters.
	LegacyCursor bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Qubits < 0 {
		return fmt.Errorf("qubits must be non-negative, got %d", c.Qubits)
	}
	if c.Layers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidLayers, c.Layers)
	}
	if c.Gate != U3 && c.Gate != RYRZ {
		return fmt.Errorf("%w: %q", ErrUnknownGateFamily, c.Gate)
	}
	if c.Entanglement != Linear && c.Entanglement != Full {
		return fmt.Errorf("%w: %q", ErrUnknownEntanglement, c.Entanglement)
	}
	return nil
}

// ParamCount returns the parameter vector length for the given shape.
func ParamCount(qubits, layers int) int {
	return ParamsPerQubitLayer * qubits * layers
}

// ParamCount returns the parameter vector length for this configuration.
func (c Config) ParamCount() int {
	return ParamCount(c.Qubits, c.Layers)
}

// Build constructs the ansatz circuit for params. It is a pure function of its
// inputs.
func Build(params []float64, cfg Config) (*circuit.Circuit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if need := cfg.reads(); len(params) < need {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrShortParams, need, len(params))
	}

	n := cfg.Qubits
	qc := circuit.New(n)
	i := 0

	for d := 0; d < cfg.Layers; d++ {
		switch cfg.Gate {
		case U3:
			for j := 0; j < n; j++ {
				o := i + 3*j
				if cfg.LegacyCursor {
					o = i + j
				}
				qc.U3(j, params[o], params[o+1], params[o+2])
			}
			if cfg.LegacyCursor {
				i += n
			} else {
				i += 3 * n
			}
		case RYRZ:
			for j := 0; j < n; j++ {
				qc.RY(j, params[i+j])
			}
			i += n
			for j := 0; j < n; j++ {
				qc.RZ(j, params[i+j])
			}
			i += n
		}

		if d == cfg.Layers-1 {
			break
		}
		entangle(qc, n, cfg.Entanglement)
	}

	qc.MeasureAll()
	return qc, nil
}

func entangle(qc *circuit.Circuit, n int, topology Entanglement) {
	switch topology {
	case Linear:
		for k := 0; k < n-1; k++ {
			qc.CX(k, k+1)
		}
	case Full:
		for k := 0; k < n-1; k++ {
			for p := k + 1; p < n; p++ {
				qc.CX(k, p)
			}
		}
	}
}

// reads returns the minimum vector length Build indexes into.
func (c Config) reads() int {
	n := c.Qubits
	if n == 0 {
		return 0
	}
	switch c.Gate {
	case RYRZ:
		return 2 * n * c.Layers
	default:
		if c.LegacyCursor {
			return n*(c.Layers-1) + n + 2
		}
		return 3 * n * c.Layers
	}
}

// Summary counts the operations of a built ansatz.
type Summary struct {
	Rotations    int
	Entanglers   int
	Measurements int
}

// Describe builds the ansatz with a zero vector and counts its operations.
func Describe(cfg Config) (Summary, error) {
	qc, err := Build(make([]float64, cfg.ParamCount()), cfg)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Rotations:    qc.Count(circuit.KindU3) + qc.Count(circuit.KindRY) + qc.Count(circuit.KindRZ),
		Entanglers:   qc.Count(circuit.KindCX),
		Measurements: qc.Count(circuit.KindMeasure),
	}, nil
}
