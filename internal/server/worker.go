package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/vqafit/internal/store"
	"github.com/cwbudde/vqafit/internal/vqa"
)

// progressInterval throttles SSE progress events.
var progressInterval = 500 * time.Millisecond

// runJob trains the job's ansatz. checkpointStore and metrics may be nil.
// With a store, every evaluation is traced, checkpoints are saved every
// CheckpointInterval seconds (0 = only at the end) and the final result is
// persisted.
func runJob(ctx context.Context, jm *JobManager, checkpointStore store.Store, metrics *Metrics, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) { j.State = StateRunning }); err != nil {
		return err
	}
	if metrics != nil {
		metrics.jobStarted()
	}

	slog.Info("Starting job", "job_id", jobID, "outcomes", len(job.Config.Target),
		"optimizer", job.Config.Optimizer, "backend", job.Config.Backend)

	b, err := job.Config.NewBackend()
	if err != nil {
		return finishFailed(jm, checkpointStore, metrics, jobID, fmt.Errorf("failed to create backend: %w", err))
	}
	if metrics != nil {
		b = metrics.Instrument(b)
	}

	var trace *store.TraceWriter
	if checkpointStore != nil {
		trace, err = checkpointStore.OpenTrace(jobID, false)
		if err != nil {
			slog.Warn("Trace disabled", "job_id", jobID, "error", err)
		}
	}
	closeTrace := func() {
		if trace == nil {
			return
		}
		if err := trace.Close(); err != nil {
			slog.Warn("Failed to close trace", "job_id", jobID, "error", err)
		}
		trace = nil
	}
	defer closeTrace()

	observer := func(e vqa.Evaluation) {
		jm.UpdateJob(jobID, func(j *Job) {
			j.Evaluations = e.Index
			j.LastCost = e.Cost
			if e.Index == 1 {
				j.InitialCost = e.Cost
			}
			if e.Cost <= e.BestCost {
				j.BestParams = append(j.BestParams[:0], e.Params...)
			}
			j.BestCost = e.BestCost
		})
		if trace != nil {
			if err := trace.Write(store.EntryFromEvaluation(e, false)); err != nil {
				slog.Warn("Failed to write trace entry", "job_id", jobID, "error", err)
			}
		}
		if metrics != nil {
			metrics.evaluated(jobID, e.BestCost)
		}
	}

	opts := []vqa.Option{vqa.WithObserver(observer)}
	if len(job.InitialParams) > 0 {
		opts = append(opts, vqa.WithInitialParams(job.InitialParams))
	}
	trainer, err := job.Config.NewTrainer(b, opts...)
	if err != nil {
		return finishFailed(jm, checkpointStore, metrics, jobID, fmt.Errorf("failed to create trainer: %w", err))
	}

	start := time.Now()
	done := make(chan struct{})
	var monitors sync.WaitGroup

	monitors.Add(1)
	go func() {
		defer monitors.Done()
		monitorProgress(ctx, jm, jobID, start, done)
	}()

	if checkpointStore != nil && job.Config.CheckpointInterval > 0 {
		monitors.Add(1)
		go func() {
			defer monitors.Done()
			monitorCheckpoints(ctx, jm, checkpointStore, jobID, done)
		}()
	}

	result, err := trainer.Run(ctx)
	close(done)
	monitors.Wait()
	closeTrace()

	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return finishCancelled(jm, checkpointStore, metrics, jobID)
		}
		return finishFailed(jm, checkpointStore, metrics, jobID, err)
	}

	err = jm.UpdateJob(jobID, func(j *Job) {
		j.Result = result
		j.BestParams = append([]float64(nil), result.Params...)
		j.BestCost = result.Cost
		j.Evaluations = result.Iterations
	})
	if err != nil {
		return err
	}

	if checkpointStore != nil {
		if err := checkpointStore.SaveResult(jobID, result); err != nil {
			slog.Error("Failed to save result", "job_id", jobID, "error", err)
		}
	}

	elapsed := time.Since(start)
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", elapsed,
		"cost", result.Cost,
		"final_cost", result.FinalCost,
		"iterations", result.Iterations,
	)

	finish(jm, checkpointStore, metrics, jobID, StateCompleted, func(event *ProgressEvent) {
		event.LastCost = result.FinalCost
		event.EvalsPerSecond = evalsPerSecond(result.Iterations, elapsed)
	})
	return nil
}

func evalsPerSecond(evals int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(evals) / elapsed.Seconds()
}

// monitorProgress periodically broadcasts progress events during training
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, exists := jm.GetJob(jobID)
			if !exists {
				return
			}

			jm.broadcaster.Broadcast(ProgressEvent{
				JobID:          jobID,
				State:          job.State,
				Evaluations:    job.Evaluations,
				BestCost:       job.BestCost,
				LastCost:       job.LastCost,
				EvalsPerSecond: evalsPerSecond(job.Evaluations, time.Since(startTime)),
				Timestamp:      time.Now(),
			})
		}
	}
}

// finishFailed marks a job as failed with an error message
func finishFailed(jm *JobManager, checkpointStore store.Store, metrics *Metrics, jobID string, err error) error {
	jm.UpdateJob(jobID, func(j *Job) { j.Error = err.Error() })
	slog.Error("Job failed", "job_id", jobID, "error", err)

	finish(jm, checkpointStore, metrics, jobID, StateFailed, nil)
	return err
}

// finishCancelled marks a job as cancelled and keeps its best parameters
// in a checkpoint so it can be resumed.
func finishCancelled(jm *JobManager, checkpointStore store.Store, metrics *Metrics, jobID string) error {
	slog.Info("Job cancelled", "job_id", jobID)

	finish(jm, checkpointStore, metrics, jobID, StateCancelled, nil)
	return context.Canceled
}

// finish persists the final checkpoint, then publishes the terminal state.
// Observers of the state can rely on the store being up to date.
func finish(jm *JobManager, checkpointStore store.Store, metrics *Metrics, jobID string, state JobState, decorate func(*ProgressEvent)) {
	if checkpointStore != nil {
		if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
			slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
		}
	}
	if metrics != nil {
		metrics.jobFinished(jobID, state)
	}

	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = state
		j.EndTime = &endTime
	})

	job, _ := jm.GetJob(jobID)
	event := ProgressEvent{JobID: jobID, State: state, Timestamp: endTime}
	if job != nil {
		event.Evaluations = job.Evaluations
		event.BestCost = job.BestCost
		event.LastCost = job.LastCost
		event.Error = job.Error
	}
	if decorate != nil {
		decorate(&event)
	}
	jm.broadcaster.Broadcast(event)
}

// monitorCheckpoints periodically saves checkpoints during training
func monitorCheckpoints(ctx context.Context, jm *JobManager, checkpointStore store.Store, jobID string, done chan struct{}) {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return
	}

	ticker := time.NewTicker(time.Duration(job.Config.CheckpointInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := saveCheckpoint(jm, checkpointStore, jobID); err != nil {
				slog.Error("Failed to save checkpoint", "job_id", jobID, "error", err)
			}
		}
	}
}

// saveCheckpoint saves a checkpoint for the given job
func saveCheckpoint(jm *JobManager, checkpointStore store.Store, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	// Skip if no evaluation has finished yet
	if job.Evaluations == 0 {
		slog.Debug("Skipping checkpoint, no evaluations yet", "job_id", jobID)
		return nil
	}

	checkpoint := store.NewCheckpoint(
		jobID,
		job.BestParams,
		job.BestCost,
		job.InitialCost,
		job.Evaluations,
		job.Config,
	)
	if job.Result != nil {
		checkpoint.InitialParams = job.Result.InitialParams
	} else if len(job.InitialParams) > 0 {
		checkpoint.InitialParams = job.InitialParams
	}

	if err := checkpointStore.SaveCheckpoint(jobID, checkpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Info("Checkpoint saved",
		"job_id", jobID,
		"evaluations", job.Evaluations,
		"best_cost", job.BestCost,
	)
	return nil
}
