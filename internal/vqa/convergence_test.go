package vqa

import "testing"

func TestConvergenceTrackerDisabled(t *testing.T) {
	tracker := NewConvergenceTracker(DisabledConvergenceConfig())
	for i := 0; i < 100; i++ {
		if tracker.Update(1.0) {
			t.Fatal("disabled tracker should never converge")
		}
	}
	if len(tracker.History()) != 0 {
		t.Errorf("disabled tracker should not record history")
	}
}

func TestConvergenceTrackerPatience(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 3, Threshold: 0.1})

	costs := []float64{1.0, 0.8, 0.79, 0.85}
	for i, c := range costs {
		if tracker.Update(c) {
			t.Fatalf("converged too early at %d", i)
		}
	}
	if got := tracker.StaleCount(); got != 2 {
		t.Errorf("StaleCount = %d, want 2", got)
	}
	if !tracker.Update(0.9) {
		t.Errorf("expected convergence after 3 stale evaluations")
	}
	if got := tracker.BestCost(); got != 0.79 {
		t.Errorf("BestCost = %f, want 0.79", got)
	}
}

func TestConvergenceTrackerNoisySpikeDoesNotReset(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.05})

	tracker.Update(1.0)
	tracker.Update(1.5)
	if tracker.StaleCount() != 1 {
		t.Errorf("worse sample should be stale")
	}
	tracker.Update(0.5)
	if tracker.StaleCount() != 0 {
		t.Errorf("significant improvement should reset stale count")
	}
}

func TestConvergenceTrackerZeroCost(t *testing.T) {
	tracker := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01})
	tracker.Update(0)
	tracker.Update(0)
	if !tracker.Update(0) {
		t.Errorf("expected convergence at zero cost")
	}
}

func TestConvergenceTrackerReset(t *testing.T) {
	tracker := NewConvergenceTracker(DefaultConvergenceConfig())
	tracker.Update(1)
	tracker.Update(1)
	tracker.Reset()
	if len(tracker.History()) != 0 || tracker.StaleCount() != 0 {
		t.Errorf("Reset did not clear state")
	}
}
