package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cwbudde/vqafit/internal/vqa"
)

// TraceEntry is one cost evaluation, serialized as a JSON line in trace.jsonl.
type TraceEntry struct {
	// Evaluation is the 1-based cost-function call index
	Evaluation int `json:"evaluation"`

	// Cost is the L1 distance measured at this evaluation
	Cost float64 `json:"cost"`

	// BestCost is the lowest cost seen up to and including this evaluation
	BestCost float64 `json:"bestCost"`

	Timestamp time.Time `json:"timestamp"`

	// Params are the evaluated parameters (optional, nil to save space)
	Params []float64 `json:"params,omitempty"`
}

// EntryFromEvaluation converts a trainer evaluation into a trace entry.
func EntryFromEvaluation(e vqa.Evaluation, withParams bool) TraceEntry {
	entry := TraceEntry{
		Evaluation: e.Index,
		Cost:       e.Cost,
		BestCost:   e.BestCost,
		Timestamp:  time.Now(),
	}
	if withParams {
		entry.Params = append([]float64(nil), e.Params...)
	}
	return entry
}

func tracePath(baseDir, jobID string) string {
	return filepath.Join(baseDir, "jobs", jobID, traceFile)
}

// TraceWriter writes trace entries to a JSONL file.
// It uses buffered I/O and is safe for concurrent use.
type TraceWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewTraceWriter creates a new trace writer for the given job.
// The trace file is created at <baseDir>/jobs/<jobID>/trace.jsonl.
// If append is true, new entries are appended to an existing file.
func NewTraceWriter(baseDir, jobID string, append bool) (*TraceWriter, error) {
	path := tracePath(baseDir, jobID)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create job directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	return &TraceWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Write appends a trace entry. The entry is buffered until Flush or Close.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal trace entry: %w", err)
	}
	data = append(data, '\n')

	if _, err := tw.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write trace entry: %w", err)
	}
	return nil
}

// Observer returns a trainer observer that writes every evaluation. Write
// failures are reported to onError, which may be nil.
func (tw *TraceWriter) Observer(withParams bool, onError func(error)) vqa.Observer {
	return func(e vqa.Evaluation) {
		if err := tw.Write(EntryFromEvaluation(e, withParams)); err != nil && onError != nil {
			onError(err)
		}
	}
}

// Flush writes buffered data and syncs the file to disk.
func (tw *TraceWriter) Flush() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace writer: %w", err)
	}
	if err := tw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync trace file: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the trace file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.writer.Flush(); err != nil {
		tw.file.Close()
		return fmt.Errorf("failed to flush on close: %w", err)
	}
	if err := tw.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the trace file.
func (tw *TraceWriter) Path() string {
	return tw.path
}

// TraceReader reads trace entries from a JSONL file.
type TraceReader struct {
	file    *os.File
	scanner *bufio.Scanner
}

// NewTraceReader opens the trace of the given job.
func NewTraceReader(baseDir, jobID string) (*TraceReader, error) {
	file, err := os.Open(tracePath(baseDir, jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{JobID: jobID}
		}
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}

	scanner := bufio.NewScanner(file)
	// params make long lines
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &TraceReader{
		file:    file,
		scanner: scanner,
	}, nil
}

// Read returns the next trace entry, or io.EOF when there are no more.
func (tr *TraceReader) Read() (*TraceEntry, error) {
	if !tr.scanner.Scan() {
		if err := tr.scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to scan trace line: %w", err)
		}
		return nil, io.EOF
	}

	var entry TraceEntry
	if err := json.Unmarshal(tr.scanner.Bytes(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal trace entry: %w", err)
	}
	return &entry, nil
}

// ReadAll reads all remaining trace entries.
func (tr *TraceReader) ReadAll() ([]TraceEntry, error) {
	var entries []TraceEntry
	for {
		entry, err := tr.Read()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
}

// Close closes the trace reader.
func (tr *TraceReader) Close() error {
	if err := tr.file.Close(); err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}

// ReadTrace loads the whole trace of a job.
func ReadTrace(baseDir, jobID string) ([]TraceEntry, error) {
	tr, err := NewTraceReader(baseDir, jobID)
	if err != nil {
		return nil, err
	}
	defer tr.Close()
	return tr.ReadAll()
}

// DeleteTrace removes the trace file for the given job.
// Returns nil if the file doesn't exist.
func DeleteTrace(baseDir, jobID string) error {
	err := os.Remove(tracePath(baseDir, jobID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete trace file: %w", err)
	}
	return nil
}
