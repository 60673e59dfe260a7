package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/cwbudde/vqafit/internal/vqa"
)

const (
	checkpointFile = "checkpoint.json"
	resultFile     = "result.json"
	traceFile      = "trace.jsonl"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Job artifacts are stored in a directory structure: <baseDir>/jobs/<jobID>/
//
// Thread-safety: This implementation uses atomic file operations (rename)
// and does not require locks. Multiple goroutines can safely call methods
// concurrently.
type FSStore struct {
	baseDir string // Root directory for all job data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// jobDir returns the directory path for a given job ID.
func (fs *FSStore) jobDir(jobID string) string {
	return filepath.Join(fs.baseDir, "jobs", jobID)
}

func (fs *FSStore) jobFile(jobID, name string) string {
	return filepath.Join(fs.jobDir(jobID), name)
}

// writeJSONAtomic serializes v and moves it into place with a rename so
// readers never observe a partial file.
func (fs *FSStore) writeJSONAtomic(jobID, name string, v any) (string, error) {
	if err := os.MkdirAll(fs.jobDir(jobID), 0755); err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s: %w", name, err)
	}

	// unique temp name so concurrent writers of the same job never share a file
	tmp, err := os.CreateTemp(fs.jobDir(jobID), name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to write temp file: %w", errors.Join(werr, cerr))
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}

	finalPath := fs.jobFile(jobID, name)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("failed to rename %s: %w", name, err)
	}
	return finalPath, nil
}

// readJSON loads a job file into v, returning a NotFoundError if it is missing.
func (fs *FSStore) readJSON(jobID, name string, v any) (string, error) {
	path := fs.jobFile(jobID, name)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return path, &NotFoundError{JobID: jobID}
	} else if err != nil {
		return path, fmt.Errorf("failed to read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return path, fmt.Errorf("failed to deserialize %s: %w", name, err)
	}
	return path, nil
}

// SaveCheckpoint atomically saves a checkpoint for the given job.
func (fs *FSStore) SaveCheckpoint(jobID string, checkpoint *Checkpoint) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if checkpoint == nil {
		return fmt.Errorf("checkpoint cannot be nil")
	}

	path, err := fs.writeJSONAtomic(jobID, checkpointFile, checkpoint)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	slog.Debug("Checkpoint saved", "job_id", jobID, "path", path)
	return nil
}

// LoadCheckpoint retrieves the checkpoint for the given job.
func (fs *FSStore) LoadCheckpoint(jobID string) (*Checkpoint, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var checkpoint Checkpoint
	path, err := fs.readJSON(jobID, checkpointFile, &checkpoint)
	if err != nil {
		return nil, err
	}

	slog.Debug("Checkpoint loaded", "job_id", jobID, "path", path)
	return &checkpoint, nil
}

// SaveResult atomically saves the final training result for the given job.
func (fs *FSStore) SaveResult(jobID string, result *vqa.TrainingResult) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	path, err := fs.writeJSONAtomic(jobID, resultFile, result)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	slog.Debug("Result saved", "job_id", jobID, "path", path)
	return nil
}

// LoadResult retrieves the final training result for the given job.
func (fs *FSStore) LoadResult(jobID string) (*vqa.TrainingResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}

	var result vqa.TrainingResult
	if _, err := fs.readJSON(jobID, resultFile, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OpenTrace opens <baseDir>/jobs/<jobID>/trace.jsonl for writing.
func (fs *FSStore) OpenTrace(jobID string, append bool) (*TraceWriter, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID cannot be empty")
	}
	return NewTraceWriter(fs.baseDir, jobID, append)
}

// ListCheckpoints returns metadata for all available checkpoints, newest first.
func (fs *FSStore) ListCheckpoints() ([]CheckpointInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		// No checkpoints exist yet
		return []CheckpointInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []CheckpointInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		jobID := entry.Name()
		if _, err := os.Stat(fs.jobFile(jobID, checkpointFile)); os.IsNotExist(err) {
			continue // Skip directories without checkpoint.json
		}

		checkpoint, err := fs.LoadCheckpoint(jobID)
		if err != nil {
			slog.Warn("Failed to load checkpoint for listing", "job_id", jobID, "error", err)
			continue // Skip corrupted checkpoints
		}

		infos = append(infos, checkpoint.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})

	slog.Debug("Listed checkpoints", "count", len(infos))
	return infos, nil
}

// DeleteCheckpoint removes the checkpoint and all associated artifacts.
func (fs *FSStore) DeleteCheckpoint(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID cannot be empty")
	}

	jobDir := fs.jobDir(jobID)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{JobID: jobID}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}

	slog.Debug("Checkpoint deleted", "job_id", jobID, "path", jobDir)
	return nil
}
