package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/vqafit/internal/circuit"
	"github.com/cwbudde/vqafit/internal/dist"
)

// Backend executes circuits and returns measurement counts.
// Each call is independent; no state is carried between executions.
type Backend interface {
	// Name identifies the backend in logs and job status.
	Name() string

	// Execute runs c for the given number of shots and returns the observed
	// outcome counts. Only observed outcomes are present.
	Execute(ctx context.Context, c *circuit.Circuit, shots int) (dist.Counts, error)
}

// Kind identifies a backend implementation.
type Kind string

const (
	KindSimulator Kind = "simulator"
	KindRemote    Kind = "remote"
)

var (
	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrUnsupportedOp is returned when a circuit contains an operation the backend cannot run.
	ErrUnsupportedOp = errors.New("unsupported circuit operation")
	// ErrInvalidShots is returned for a non-positive shot count.
	ErrInvalidShots = errors.New("shots must be positive")
)

// Options configures backend construction.
type Options struct {
	// Seed for the simulator's sampler.
	Seed int64

	// URL of the remote execution service.
	URL string

	// RateLimit caps remote submissions per second (0 = unlimited).
	RateLimit float64

	// Timeout bounds a single remote round-trip (0 = no client timeout).
	Timeout time.Duration

	// HTTPClient overrides the client used by the remote backend.
	HTTPClient *http.Client
}

// NormalizeName maps arbitrary user input to a canonical backend kind.
func NormalizeName(name string) Kind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sim", "simulator", "statevector", "aer", "qasm_simulator":
		return KindSimulator
	case "remote", "http", "hardware":
		return KindRemote
	default:
		return Kind(name)
	}
}

// SupportedBackends returns the list of backends understood by the factory.
func SupportedBackends() []Kind {
	return []Kind{KindSimulator, KindRemote}
}

// New constructs the requested backend.
func New(name string, opts Options) (Backend, error) {
	switch NormalizeName(name) {
	case KindSimulator:
		return NewSimulator(opts.Seed), nil
	case KindRemote:
		return NewRemote(opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
