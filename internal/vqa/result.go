package vqa

import (
	"time"

	"github.com/cwbudde/vqafit/internal/ansatz"
	"github.com/cwbudde/vqafit/internal/dist"
)

// Series names used by the comparison chart.
const (
	SeriesTarget = "Target Dist"
	SeriesOutput = "Output Dist"
)

// TrainingResult is the outcome of one training run.
type TrainingResult struct {
	Target []float64 `json:"target"`
	// Output is the distribution measured by the final re-run
	Output []float64   `json:"output"`
	Counts dist.Counts `json:"counts"`
	// Cost is the best cost recorded by the optimizer
	Cost float64 `json:"cost"`
	// FinalCost is the L1 distance of Output; it differs from Cost by shot noise
	FinalCost     float64   `json:"finalCost"`
	Params        []float64 `json:"params"`
	InitialParams []float64 `json:"initialParams"`
	// Iterations counts cost-function evaluations reported by the optimizer
	Iterations   int                 `json:"iterations"`
	Qubits       int                 `json:"qubits"`
	Layers       int                 `json:"layers"`
	Gate         ansatz.GateFamily   `json:"gate"`
	Entanglement ansatz.Entanglement `json:"entanglement"`
	Shots        int                 `json:"shots"`
	Duration     time.Duration       `json:"duration"`
}

// Series is one labelled bar series of the comparison chart.
type Series struct {
	Name   string             `json:"name"`
	Values map[string]float64 `json:"values"`
}

// Labels returns the outcome labels in ascending order.
func (r *TrainingResult) Labels() []string {
	return dist.Labels(r.Qubits)
}

// TargetCounts scales the target by the shot budget so it can be compared
// with measured counts.
func (r *TrainingResult) TargetCounts() map[string]float64 {
	labels := r.Labels()
	out := make(map[string]float64, len(labels))
	for i, label := range labels {
		if i < len(r.Target) {
			out[label] = r.Target[i] * float64(r.Shots)
		}
	}
	return out
}

// OutputCounts returns the measured counts for every label, zeros included.
func (r *TrainingResult) OutputCounts() map[string]float64 {
	labels := r.Labels()
	out := make(map[string]float64, len(labels))
	for _, label := range labels {
		out[label] = float64(r.Counts[label])
	}
	return out
}

// Series returns the "Target Dist" and "Output Dist" series.
func (r *TrainingResult) Series() []Series {
	return []Series{
		{Name: SeriesTarget, Values: r.TargetCounts()},
		{Name: SeriesOutput, Values: r.OutputCounts()},
	}
}
