// Package config holds the run configuration shared by the CLI, the job
// server and checkpoints.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/backend"
	"github.com/cwbudde/vqafit/internal/dist"
	"github.com/cwbudde/vqafit/internal/opt"
	"github.com/cwbudde/vqafit/internal/vqa"
)

// ErrInvalid wraps every validation failure of a Run.
var ErrInvalid = errors.New("invalid run configuration")

// Convergence configures early stopping. Patience 0 disables it.
type Convergence struct {
	Patience  int     `json:"patience,omitempty" yaml:"patience"`
	Threshold float64 `json:"threshold,omitempty" yaml:"threshold"`
}

// Run is the complete description of a training run. It is read from YAML
// files, accepted as JSON by the job server and persisted in checkpoints.
type Run struct {
	Target       []float64 `json:"target" yaml:"target"`
	Gate         string    `json:"gate" yaml:"gate"`
	Layers       int       `json:"layers" yaml:"layers"`
	Entanglement string    `json:"entanglement" yaml:"entanglement"`
	Shots        int       `json:"shots" yaml:"shots"`
	LegacyCursor bool      `json:"legacyCursor,omitempty" yaml:"legacyCursor"`
	Seed         int64     `json:"seed" yaml:"seed"` // 0 is a valid seed, not "unset"

	Optimizer string  `json:"optimizer" yaml:"optimizer"`
	MaxEvals  int     `json:"maxEvals,omitempty" yaml:"maxEvals"`
	Tolerance float64 `json:"tolerance,omitempty" yaml:"tolerance"`
	PopSize   int     `json:"popSize,omitempty" yaml:"popSize"`
	MaxIters  int     `json:"maxIters,omitempty" yaml:"maxIters"`

	Backend    string  `json:"backend" yaml:"backend"`
	BackendURL string  `json:"backendURL,omitempty" yaml:"backendURL"`
	RateLimit  float64 `json:"rateLimit,omitempty" yaml:"rateLimit"`

	CheckpointInterval int         `json:"checkpointInterval,omitempty" yaml:"checkpointInterval"` // Checkpoint every N seconds (0 = disabled)
	Convergence        Convergence `json:"convergence,omitempty" yaml:"convergence"`
}

// Defaults returns a Run with every optional field set. Target is left empty.
func Defaults() Run {
	t := vqa.DefaultConfig()
	o := opt.DefaultSettings()
	return Run{
		Gate:         string(t.Gate),
		Layers:       t.Layers,
		Entanglement: string(t.Entanglement),
		Shots:        t.Shots,
		Seed:         42,
		Optimizer:    string(opt.NameNelderMead),
		MaxEvals:     o.MaxEvals,
		Tolerance:    o.Tolerance,
		PopSize:      o.PopSize,
		MaxIters:     o.MaxIters,
		Backend:      string(backend.KindSimulator),
	}
}

// ApplyDefaults fills zero-valued optional fields and spells the gate family
// and topology the way Defaults does. Seed is left alone since 0 is a valid
// seed; callers that want the default seed start from Defaults.
func (r *Run) ApplyDefaults() {
	d := Defaults()
	if r.Gate == "" {
		r.Gate = d.Gate
	}
	if g, err := ansatz.ParseGateFamily(r.Gate); err == nil {
		r.Gate = string(g)
	}
	if r.Layers == 0 {
		r.Layers = d.Layers
	}
	if r.Entanglement == "" {
		r.Entanglement = d.Entanglement
	}
	if e, err := ansatz.ParseEntanglement(r.Entanglement); err == nil {
		r.Entanglement = string(e)
	}
	if r.Shots == 0 {
		r.Shots = d.Shots
	}
	if r.Optimizer == "" {
		r.Optimizer = d.Optimizer
	}
	if r.MaxEvals == 0 {
		r.MaxEvals = d.MaxEvals
	}
	if r.Tolerance == 0 {
		r.Tolerance = d.Tolerance
	}
	if r.PopSize == 0 {
		r.PopSize = d.PopSize
	}
	if r.MaxIters == 0 {
		r.MaxIters = d.MaxIters
	}
	if r.Backend == "" {
		r.Backend = d.Backend
	}
}

// Load reads a YAML (or JSON) run file on top of Defaults. Unknown keys are
// rejected.
func Load(path string) (Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) document on top of Defaults.
func Parse(data []byte) (Run, error) {
	r := Defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil {
		return Run{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return r, nil
}

// Marshal encodes the run as YAML.
func (r Run) Marshal() ([]byte, error) {
	return yaml.Marshal(r)
}

// Qubits returns the qubit count implied by the target.
func (r Run) Qubits() (int, error) {
	if len(r.Target) == 0 {
		return 0, fmt.Errorf("%w: empty", vqa.ErrInvalidTarget)
	}
	q, err := dist.Qubits(len(r.Target))
	if err != nil {
		return 0, fmt.Errorf("%w: length %d is not a power of two", vqa.ErrInvalidTarget, len(r.Target))
	}
	return q, nil
}

// ParamCount returns the parameter vector length of the run's ansatz.
func (r Run) ParamCount() (int, error) {
	q, err := r.Qubits()
	if err != nil {
		return 0, err
	}
	return ansatz.ParamCount(q, r.Layers), nil
}

func invalid(field, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, field, fmt.Sprintf(format, args...))
}

// Validate checks the run. Call ApplyDefaults first if zero values should be
// replaced.
func (r Run) Validate() error {
	if _, err := r.Qubits(); err != nil {
		return fmt.Errorf("%w: target: %w", ErrInvalid, err)
	}
	for i, p := range r.Target {
		if p < 0 || p > 1 {
			return invalid("target", "entry %d = %g outside [0, 1]", i, p)
		}
	}
	if _, err := ansatz.ParseGateFamily(r.Gate); err != nil {
		return fmt.Errorf("%w: gate: %w", ErrInvalid, err)
	}
	if _, err := ansatz.ParseEntanglement(r.Entanglement); err != nil {
		return fmt.Errorf("%w: entanglement: %w", ErrInvalid, err)
	}
	if r.Layers <= 0 {
		return invalid("layers", "must be positive, got %d", r.Layers)
	}
	if r.Shots <= 0 {
		return invalid("shots", "must be positive, got %d", r.Shots)
	}

	switch opt.NormalizeName(r.Optimizer) {
	case opt.NameNelderMead:
		if r.MaxEvals < 0 {
			return invalid("maxEvals", "cannot be negative")
		}
		if r.Tolerance < 0 {
			return invalid("tolerance", "cannot be negative")
		}
	case opt.NameMayfly:
		// mayfly v0.1.0 rejects smaller populations
		if r.PopSize != 0 && r.PopSize < 20 {
			return invalid("popSize", "must be at least 20 for mayfly, got %d", r.PopSize)
		}
		if r.MaxIters < 0 {
			return invalid("maxIters", "cannot be negative")
		}
	default:
		return fmt.Errorf("%w: optimizer: %w: %q", ErrInvalid, opt.ErrUnknownOptimizer, r.Optimizer)
	}

	switch backend.NormalizeName(r.Backend) {
	case backend.KindSimulator:
		q, _ := r.Qubits()
		if q > backend.MaxSimQubits {
			return invalid("target", "%d qubits exceed the simulator limit of %d", q, backend.MaxSimQubits)
		}
	case backend.KindRemote:
		if r.BackendURL == "" {
			return invalid("backendURL", "required for the remote backend")
		}
	default:
		return fmt.Errorf("%w: backend: %w: %q", ErrInvalid, backend.ErrUnknownBackend, r.Backend)
	}
	if r.RateLimit < 0 {
		return invalid("rateLimit", "cannot be negative")
	}
	if r.CheckpointInterval < 0 {
		return invalid("checkpointInterval", "cannot be negative")
	}
	if r.Convergence.Patience < 0 || r.Convergence.Threshold < 0 {
		return invalid("convergence", "patience and threshold cannot be negative")
	}
	return nil
}

// TrainerConfig converts the run into a vqa.Config.
func (r Run) TrainerConfig() (vqa.Config, error) {
	gate, err := ansatz.ParseGateFamily(r.Gate)
	if err != nil {
		return vqa.Config{}, err
	}
	ent, err := ansatz.ParseEntanglement(r.Entanglement)
	if err != nil {
		return vqa.Config{}, err
	}
	return vqa.Config{
		Target:       append([]float64(nil), r.Target...),
		Gate:         gate,
		Layers:       r.Layers,
		Entanglement: ent,
		Shots:        r.Shots,
		LegacyCursor: r.LegacyCursor,
		Seed:         r.Seed,
	}, nil
}

// ConvergenceConfig converts the early-stopping settings.
func (r Run) ConvergenceConfig() vqa.ConvergenceConfig {
	if r.Convergence.Patience <= 0 {
		return vqa.DisabledConvergenceConfig()
	}
	return vqa.ConvergenceConfig{
		Enabled:   true,
		Patience:  r.Convergence.Patience,
		Threshold: r.Convergence.Threshold,
	}
}

// NewOptimizer constructs the configured optimizer.
func (r Run) NewOptimizer() (opt.Optimizer, error) {
	return opt.New(r.Optimizer, opt.Settings{
		MaxEvals:  r.MaxEvals,
		Tolerance: r.Tolerance,
		MaxIters:  r.MaxIters,
		PopSize:   r.PopSize,
		Seed:      r.Seed,
	})
}

// NewBackend constructs the configured backend.
func (r Run) NewBackend() (backend.Backend, error) {
	return backend.New(r.Backend, backend.Options{
		Seed:      r.Seed,
		URL:       r.BackendURL,
		RateLimit: r.RateLimit,
	})
}

// NewTrainer wires optimizer, backend and trainer for the run. Extra options
// are appended after the convergence option.
func (r Run) NewTrainer(b backend.Backend, opts ...vqa.Option) (*vqa.Trainer, error) {
	tc, err := r.TrainerConfig()
	if err != nil {
		return nil, err
	}
	o, err := r.NewOptimizer()
	if err != nil {
		return nil, err
	}
	if b == nil {
		if b, err = r.NewBackend(); err != nil {
			return nil, err
		}
	}
	all := append([]vqa.Option{vqa.WithConvergence(r.ConvergenceConfig())}, opts...)
	return vqa.NewTrainer(tc, o, b, all...)
}
