package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/vqafit/internal/config"
	"github.com/cwbudde/vqafit/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	store      store.Store
	metrics    *Metrics
	addr       string
	server     *http.Server

	// jobCtx parents every job; cancelled on Shutdown
	jobCtx    context.Context
	cancelAll context.CancelFunc
}

// NewServer creates a new HTTP server. checkpointStore may be nil, which
// disables traces, checkpoints, stored results and resume.
func NewServer(addr string, checkpointStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		store:      checkpointStore,
		metrics:    NewMetrics(),
		addr:       addr,
		jobCtx:     ctx,
		cancelAll:  cancel,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Jobs exposes the job manager.
func (s *Server) Jobs() *JobManager {
	return s.jobManager
}

// Handler builds the routed handler with middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// UI
	mux.HandleFunc("/", s.handleIndex)

	// API
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)

	mux.Handle("/metrics", s.metrics.Handler())

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server and blocks until it stops. A clean Shutdown,
// even one that happened before Start, returns nil.
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown cancels running jobs, waits for them to record their final state
// and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))

	s.cancelAll()
	waited := make(chan struct{})
	go func() {
		s.jobManager.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		slog.Warn("Timed out waiting for jobs to stop")
	}

	return s.server.Shutdown(ctx)
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	switch sub {
	case "", "status":
		s.handleGetJobStatus(w, r, jobID)
	case "result":
		s.handleGetResult(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "trace":
		s.handleGetTrace(w, r, jobID)
	case "cancel":
		s.requirePost(w, r, func() { s.handleCancelJob(w, r, jobID) })
	case "resume":
		s.requirePost(w, r, func() { s.handleResumeJob(w, r, jobID) })
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) requirePost(w http.ResponseWriter, r *http.Request, next func()) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	next()
}

// decodeRun reads a run configuration on top of base. An empty body keeps base.
func decodeRun(r *http.Request, base JobConfig) (JobConfig, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return base, fmt.Errorf("failed to read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return base, nil
	}

	cfg := base
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return base, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	cfg, err := decodeRun(r, config.Defaults())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job := s.startJob(cfg, nil, "")
	writeJSON(w, http.StatusCreated, job)
}

// startJob registers a job and runs it in the background.
func (s *Server) startJob(cfg JobConfig, initialParams []float64, resumedFrom string) *Job {
	job := s.jobManager.CreateJob(cfg)
	if len(initialParams) > 0 {
		s.jobManager.UpdateJob(job.ID, func(j *Job) {
			j.InitialParams = append([]float64(nil), initialParams...)
			j.ResumedFrom = resumedFrom
		})
	}

	s.jobManager.Start(s.jobCtx, job.ID, func(ctx context.Context) error {
		return runJob(ctx, s.jobManager, s.store, s.metrics, job.ID)
	})

	snapshot, _ := s.jobManager.GetJob(job.ID)
	return snapshot
}

// statusResponse is the body of GET /api/v1/jobs/:id/status
type statusResponse struct {
	ID             string     `json:"id"`
	State          JobState   `json:"state"`
	Config         JobConfig  `json:"config"`
	BestCost       float64    `json:"bestCost"`
	InitialCost    float64    `json:"initialCost"`
	LastCost       float64    `json:"lastCost"`
	Evaluations    int        `json:"evaluations"`
	Elapsed        float64    `json:"elapsed"`
	EvalsPerSecond float64    `json:"evalsPerSecond"`
	ResumedFrom    string     `json:"resumedFrom,omitempty"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	elapsed := job.Elapsed()
	writeJSON(w, http.StatusOK, statusResponse{
		ID:             job.ID,
		State:          job.State,
		Config:         job.Config,
		BestCost:       job.BestCost,
		InitialCost:    job.InitialCost,
		LastCost:       job.LastCost,
		Evaluations:    job.Evaluations,
		Elapsed:        elapsed.Seconds(),
		EvalsPerSecond: evalsPerSecond(job.Evaluations, elapsed),
		ResumedFrom:    job.ResumedFrom,
		StartTime:      job.StartTime,
		EndTime:        job.EndTime,
		Error:          job.Error,
	})
}

// handleGetResult handles GET /api/v1/jobs/:id/result. Results of jobs from
// earlier server runs are read from the store.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if exists {
		if job.Result == nil {
			http.Error(w, fmt.Sprintf("No result yet (job is %s)", job.State), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, job.Result)
		return
	}

	if s.store == nil {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	result, err := s.store.LoadResult(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleGetTrace handles GET /api/v1/jobs/:id/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request, jobID string) {
	fs, ok := s.store.(*store.FSStore)
	if !ok {
		http.Error(w, "Traces not available", http.StatusNotFound)
		return
	}

	entries, err := store.ReadTrace(fs.BaseDir(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if !s.jobManager.Cancel(jobID) {
		http.Error(w, fmt.Sprintf("Job is %s", job.State), http.StatusConflict)
		return
	}

	slog.Info("Job cancellation requested", "job_id", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": "cancelling"})
}

// handleResumeJob handles POST /api/v1/jobs/:id/resume. The optional body
// overrides the checkpointed configuration; the ansatz shape must not change.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if s.store == nil {
		http.Error(w, "Checkpoints not available", http.StatusNotFound)
		return
	}

	checkpoint, err := s.store.LoadCheckpoint(jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkpoint.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid checkpoint: %v", err), http.StatusUnprocessableEntity)
		return
	}

	cfg, err := decodeRun(r, checkpoint.Config)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := checkpoint.IsCompatible(cfg); err != nil {
		writeError(w, err)
		return
	}

	job := s.startJob(cfg, checkpoint.BestParams, jobID)
	slog.Info("Resuming job", "from", jobID, "job_id", job.ID, "best_cost", checkpoint.BestCost)
	writeJSON(w, http.StatusCreated, job)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
