package store

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/config"
)

// JobConfig is the run configuration persisted with a checkpoint.
type JobConfig = config.Run

// Checkpoint represents a saved training state that can be resumed later.
//
// Only the best parameter vector is saved, not the optimizer's internal
// state (simplex vertices or Mayfly population). Resuming starts a fresh
// optimizer whose initial point is BestParams, so:
//   - the best cost never gets worse on resume (modulo shot noise)
//   - a resumed run is not a perfect continuation of the original one
//   - checkpoints stay independent of the optimizer implementation
type Checkpoint struct {
	// JobID is the unique identifier for this training job
	JobID string `json:"jobId"`

	// BestParams is the parameter vector (3 per qubit and layer) with the lowest cost so far
	BestParams []float64 `json:"bestParams"`

	// BestCost is the L1 distance achieved by BestParams
	BestCost float64 `json:"bestCost"`

	// InitialParams is the starting point of the run that produced this checkpoint
	InitialParams []float64 `json:"initialParams,omitempty"`

	// InitialCost is the cost of the first evaluation, for tracking improvement
	InitialCost float64 `json:"initialCost"`

	// Evaluations counts cost-function evaluations when the checkpoint was taken
	Evaluations int `json:"evaluations"`

	// Timestamp records when this checkpoint was created
	Timestamp time.Time `json:"timestamp"`

	// Config holds the run configuration, needed for validation during resume
	Config JobConfig `json:"config"`
}

// CheckpointInfo contains metadata about a checkpoint without the parameter data.
type CheckpointInfo struct {
	JobID        string    `json:"jobId"`
	BestCost     float64   `json:"bestCost"`
	Evaluations  int       `json:"evaluations"`
	Timestamp    time.Time `json:"timestamp"`
	Qubits       int       `json:"qubits"`
	Layers       int       `json:"layers"`
	Gate         string    `json:"gate"`
	Entanglement string    `json:"entanglement"`
	Optimizer    string    `json:"optimizer"`
}

// NewCheckpoint creates a checkpoint from job state.
func NewCheckpoint(jobID string, bestParams []float64, bestCost, initialCost float64, evaluations int, cfg JobConfig) *Checkpoint {
	return &Checkpoint{
		JobID:       jobID,
		BestParams:  bestParams,
		BestCost:    bestCost,
		InitialCost: initialCost,
		Evaluations: evaluations,
		Timestamp:   time.Now(),
		Config:      cfg,
	}
}

// ToInfo converts a full Checkpoint to CheckpointInfo (metadata only).
func (c *Checkpoint) ToInfo() CheckpointInfo {
	qubits, _ := c.Config.Qubits()
	return CheckpointInfo{
		JobID:        c.JobID,
		BestCost:     c.BestCost,
		Evaluations:  c.Evaluations,
		Timestamp:    c.Timestamp,
		Qubits:       qubits,
		Layers:       c.Config.Layers,
		Gate:         c.Config.Gate,
		Entanglement: c.Config.Entanglement,
		Optimizer:    c.Config.Optimizer,
	}
}

// Validate checks if the checkpoint has valid data.
func (c *Checkpoint) Validate() error {
	if c.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if c.BestCost < 0 {
		return &ValidationError{Field: "BestCost", Reason: "cannot be negative"}
	}
	if c.InitialCost < 0 {
		return &ValidationError{Field: "InitialCost", Reason: "cannot be negative"}
	}
	if c.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	if c.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if err := c.Config.Validate(); err != nil {
		return &ValidationError{Field: "Config", Reason: err.Error()}
	}

	// a zero-qubit ansatz has no parameters, so an empty vector is the only valid one
	expected, _ := c.Config.ParamCount()
	if expected > 0 {
		if c.BestParams == nil {
			return &ValidationError{Field: "BestParams", Reason: "cannot be nil"}
		}
		if len(c.BestParams)%ansatz.ParamsPerQubitLayer != 0 {
			return &ValidationError{Field: "BestParams", Reason: "length must be multiple of 3"}
		}
	}
	if len(c.BestParams) != expected {
		return &ValidationError{
			Field: "BestParams",
			Reason: fmt.Sprintf("length mismatch: expected %d params for %d layers over %d outcomes",
				expected, c.Config.Layers, len(c.Config.Target)),
		}
	}
	if c.InitialParams != nil && len(c.InitialParams) != expected {
		return &ValidationError{Field: "InitialParams", Reason: fmt.Sprintf("length mismatch: expected %d", expected)}
	}
	return nil
}

// ValidationError represents a checkpoint validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// IsCompatible checks if this checkpoint can be resumed with the given config.
// The target and the ansatz shape must match; optimizer, backend and shot
// settings may change between runs.
func (c *Checkpoint) IsCompatible(cfg JobConfig) error {
	if !slices.Equal(c.Config.Target, cfg.Target) {
		return &CompatibilityError{
			Field:    "Target",
			Expected: fmt.Sprint(c.Config.Target),
			Actual:   fmt.Sprint(cfg.Target),
		}
	}

	oldGate, _ := ansatz.ParseGateFamily(c.Config.Gate)
	newGate, _ := ansatz.ParseGateFamily(cfg.Gate)
	if oldGate != newGate {
		return &CompatibilityError{Field: "Gate", Expected: string(oldGate), Actual: string(newGate)}
	}

	oldEnt, _ := ansatz.ParseEntanglement(c.Config.Entanglement)
	newEnt, _ := ansatz.ParseEntanglement(cfg.Entanglement)
	if oldEnt != newEnt {
		return &CompatibilityError{Field: "Entanglement", Expected: string(oldEnt), Actual: string(newEnt)}
	}

	if c.Config.Layers != cfg.Layers {
		return &CompatibilityError{
			Field:    "Layers",
			Expected: strconv.Itoa(c.Config.Layers),
			Actual:   strconv.Itoa(cfg.Layers),
		}
	}
	if c.Config.LegacyCursor != cfg.LegacyCursor {
		return &CompatibilityError{
			Field:    "LegacyCursor",
			Expected: strconv.FormatBool(c.Config.LegacyCursor),
			Actual:   strconv.FormatBool(cfg.LegacyCursor),
		}
	}
	return nil
}

// CompatibilityError represents a checkpoint compatibility error.
type CompatibilityError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *CompatibilityError) Error() string {
	return "compatibility error: " + e.Field + " mismatch (expected " + e.Expected + ", got " + e.Actual + ")"
}
