package store

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/vqafit/internal/vqa"
)

func TestTraceWriter_WriteAndRead(t *testing.T) {
	dir := t.TempDir()

	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatalf("NewTraceWriter failed: %v", err)
	}

	costs := []float64{1.2, 0.9, 1.0, 0.4}
	best := 1.2
	for i, c := range costs {
		if c < best {
			best = c
		}
		if err := tw.Write(TraceEntry{Evaluation: i + 1, Cost: c, BestCost: best, Timestamp: time.Now()}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) != len(costs) {
		t.Fatalf("expected %d entries, got %d", len(costs), len(entries))
	}
	if entries[2].Cost != 1.0 || entries[2].BestCost != 0.9 || entries[3].Evaluation != 4 {
		t.Errorf("unexpected entries: %+v", entries)
	}
	if entries[0].Params != nil {
		t.Errorf("params should be omitted")
	}
}

func TestTraceWriter_Append(t *testing.T) {
	dir := t.TempDir()

	for round := 0; round < 2; round++ {
		tw, err := NewTraceWriter(dir, "job", round > 0)
		if err != nil {
			t.Fatal(err)
		}
		tw.Write(TraceEntry{Evaluation: round + 1})
		tw.Close()
	}

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries after append, got %d", len(entries))
	}

	// truncating mode starts over
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	tw.Close()
	entries, err = ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty trace, got %d entries", len(entries))
	}
}

func TestTraceWriter_Flush(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}
	defer tw.Close()

	tw.Write(TraceEntry{Evaluation: 1, Cost: 0.5})
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	info, err := os.Stat(tw.Path())
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("expected data on disk after Flush")
	}
}

func TestTraceWriter_Observer(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}

	observe := tw.Observer(true, func(err error) { t.Errorf("unexpected write error: %v", err) })
	params := []float64{0.1, 0.2, 0.3}
	observe(vqa.Evaluation{Index: 1, Cost: 0.8, BestCost: 0.8, Params: params})
	params[0] = 9 // the observer must have copied
	observe(vqa.Evaluation{Index: 2, Cost: 0.6, BestCost: 0.6, Params: params})
	tw.Close()

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Params[0] != 0.1 {
		t.Errorf("params not copied: %v", entries[0].Params)
	}
	if entries[1].Evaluation != 2 || entries[1].BestCost != 0.6 {
		t.Errorf("unexpected entry: %+v", entries[1])
	}
}

func TestTraceReader_ReadIteratively(t *testing.T) {
	dir := t.TempDir()
	tw, _ := NewTraceWriter(dir, "job", false)
	tw.Write(TraceEntry{Evaluation: 1})
	tw.Write(TraceEntry{Evaluation: 2})
	tw.Close()

	tr, err := NewTraceReader(dir, "job")
	if err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	for want := 1; want <= 2; want++ {
		e, err := tr.Read()
		if err != nil {
			t.Fatal(err)
		}
		if e.Evaluation != want {
			t.Errorf("expected evaluation %d, got %d", want, e.Evaluation)
		}
	}
	if _, err := tr.Read(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestTraceReader_NotFound(t *testing.T) {
	_, err := NewTraceReader(t.TempDir(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTrace(t *testing.T) {
	dir := t.TempDir()
	tw, _ := NewTraceWriter(dir, "job", false)
	tw.Close()

	if err := DeleteTrace(dir, "job"); err != nil {
		t.Fatalf("DeleteTrace failed: %v", err)
	}
	if _, err := os.Stat(tw.Path()); !os.IsNotExist(err) {
		t.Error("trace file should be deleted")
	}
	if err := DeleteTrace(dir, "job"); err != nil {
		t.Errorf("deleting a missing trace should succeed: %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	tw, err := NewTraceWriter(dir, "job", false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				tw.Write(TraceEntry{Evaluation: g*50 + i, Params: []float64{float64(i)}})
			}
		}(g)
	}
	wg.Wait()
	tw.Close()

	entries, err := ReadTrace(dir, "job")
	if err != nil {
		t.Fatalf("trace corrupted by concurrent writes: %v", err)
	}
	if len(entries) != 500 {
		t.Errorf("expected 500 entries, got %d", len(entries))
	}
}
