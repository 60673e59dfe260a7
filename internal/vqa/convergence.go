package vqa

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines parameters for detecting optimization convergence
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patience is the number of cost evaluations with no significant improvement
	// of the best cost before stopping
	Patience int `json:"patience" yaml:"patience"`

	// Threshold is the minimum relative improvement required to count as progress
	// Example: 0.01 = 1% improvement required
	// Relative improvement = (oldBest - newBest) / oldBest
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  100,
		Threshold: 0.01,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks cost history and detects when optimization has converged
type ConvergenceTracker struct {
	config          ConvergenceConfig
	costHistory     []float64
	bestCost        float64 // Best cost ever seen
	lastSignificant float64 // Last cost that was a significant improvement
	staleCount      int     // Number of evaluations without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		costHistory:     []float64{},
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new cost value and returns true if convergence is detected
func (c *ConvergenceTracker) Update(cost float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.costHistory = append(c.costHistory, cost)

	if cost < c.bestCost {
		c.bestCost = cost
	}

	if len(c.costHistory) == 1 {
		c.lastSignificant = cost
		return false
	}

	// Measured on the best cost so a noisy sample cannot count as progress twice
	relativeImprovement := 0.0
	if c.lastSignificant > 0 {
		relativeImprovement = (c.lastSignificant - c.bestCost) / c.lastSignificant
	}

	if relativeImprovement >= c.config.Threshold && relativeImprovement > 0 {
		c.lastSignificant = c.bestCost
		c.staleCount = 0
		slog.Debug("Cost improvement detected",
			"best_cost", c.bestCost,
			"relative_improvement", relativeImprovement,
		)
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_cost", c.bestCost,
		)
		return true
	}

	return false
}

// BestCost returns the best cost seen so far
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns the full cost history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.costHistory...)
}

// StaleCount returns the current number of evaluations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.costHistory = []float64{}
	c.bestCost = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
