package server

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cwbudde/vqafit/internal/store"
	"github.com/cwbudde/vqafit/internal/vqa"
)

// JobState represents the current state of a job
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateCancelled JobState = "cancelled"
)

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// JobConfig is an alias to avoid duplication with store.JobConfig
type JobConfig = store.JobConfig

// Job represents a training job
type Job struct {
	ID     string    `json:"id"`
	State  JobState  `json:"state"`
	Config JobConfig `json:"config"`

	// InitialParams is set when the job resumes from a checkpoint
	InitialParams []float64 `json:"initialParams,omitempty"`
	ResumedFrom   string    `json:"resumedFrom,omitempty"`

	BestParams  []float64 `json:"bestParams,omitempty"`
	BestCost    float64   `json:"bestCost"`
	InitialCost float64   `json:"initialCost"`
	LastCost    float64   `json:"lastCost"`
	Evaluations int       `json:"evaluations"`

	Result    *vqa.TrainingResult `json:"result,omitempty"`
	StartTime time.Time           `json:"startTime"`
	EndTime   *time.Time          `json:"endTime,omitempty"`
	Error     string              `json:"error,omitempty"`
}

// clone returns a copy safe to read without holding the manager lock.
func (j *Job) clone() *Job {
	c := *j
	c.BestParams = append([]float64(nil), j.BestParams...)
	c.InitialParams = append([]float64(nil), j.InitialParams...)
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return &c
}

// Elapsed returns the run time so far, or the total once the job ended.
func (j *Job) Elapsed() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobManager manages the lifecycle of jobs
type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	cancels     map[string]context.CancelFunc
	wg          sync.WaitGroup
	broadcaster *EventBroadcaster
}

// NewJobManager creates a new JobManager
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:        make(map[string]*Job),
		cancels:     make(map[string]context.CancelFunc),
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateJob creates a new pending job with the given configuration
func (jm *JobManager) CreateJob(config JobConfig) *Job {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job := &Job{
		ID:        uuid.New().String(),
		State:     StatePending,
		Config:    config,
		StartTime: time.Now(),
	}

	jm.jobs[job.ID] = job
	return job.clone()
}

// GetJob returns a snapshot of the job with the given ID
func (jm *JobManager) GetJob(id string) (*Job, bool) {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	job, exists := jm.jobs[id]
	if !exists {
		return nil, false
	}
	return job.clone(), true
}

// ListJobs returns snapshots of all jobs, oldest first
func (jm *JobManager) ListJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	jobs := make([]*Job, 0, len(jm.jobs))
	for _, job := range jm.jobs {
		jobs = append(jobs, job.clone())
	}
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].StartTime.Before(jobs[k].StartTime)
	})
	return jobs
}

// UpdateJob atomically updates a job using the provided function
func (jm *JobManager) UpdateJob(id string, updateFn func(*Job)) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	job, exists := jm.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	updateFn(job)
	return nil
}

// GetRunningJobs returns all jobs currently in the running state
func (jm *JobManager) GetRunningJobs() []*Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	runningJobs := make([]*Job, 0)
	for _, job := range jm.jobs {
		if job.State == StateRunning {
			runningJobs = append(runningJobs, job.clone())
		}
	}
	return runningJobs
}

// Start runs fn for the job in its own goroutine with a cancellable context
// derived from parent. Cancel and Wait act on it.
func (jm *JobManager) Start(parent context.Context, id string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(parent)

	jm.mu.Lock()
	jm.cancels[id] = cancel
	jm.mu.Unlock()

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		defer func() {
			jm.mu.Lock()
			delete(jm.cancels, id)
			jm.mu.Unlock()
			cancel()
		}()
		fn(ctx)
	}()
}

// Cancel requests cancellation of a running job. It returns false if the job
// is not running.
func (jm *JobManager) Cancel(id string) bool {
	jm.mu.RLock()
	cancel, ok := jm.cancels[id]
	jm.mu.RUnlock()

	if !ok {
		return false
	}
	cancel()
	return true
}

// CancelAll cancels every running job.
func (jm *JobManager) CancelAll() {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	for _, cancel := range jm.cancels {
		cancel()
	}
}

// Wait blocks until all started jobs have returned.
func (jm *JobManager) Wait() {
	jm.wg.Wait()
}
