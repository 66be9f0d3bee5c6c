package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend for tests.
type fakeBackend struct {
	mu         sync.Mutex
	counters   []call
	histograms []call
	flushes    int
}

type call struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, call{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histograms = append(f.histograms, call{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return nil
}

func install(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{}
	SetBackend(fb)
	t.Cleanup(func() { SetBackend(nil) })
	return fb
}

func TestRecordStep(t *testing.T) {
	fb := install(t)

	RecordStep("fitness_ingest", "parse", nil, 2*time.Second)
	RecordStep("fitness_ingest", "upsert", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.counters) != 2 || len(fb.histograms) != 2 {
		t.Fatalf("counters=%d histograms=%d, want 2/2", len(fb.counters), len(fb.histograms))
	}
	if c := fb.counters[0]; c.name != StepTotal || c.value != 1 || c.labels["status"] != "success" || c.labels["step"] != "parse" {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.counters[1]; c.labels["status"] != "failure" || c.labels["step"] != "upsert" {
		t.Fatalf("counter[1] = %#v", c)
	}
	if h := fb.histograms[1]; h.name != StepDuration || h.value != 1.5 {
		t.Fatalf("histogram[1] = %#v", h)
	}
}

func TestRecordRowSkipsNonPositive(t *testing.T) {
	fb := install(t)

	RecordRow("nutrition_ingest", "read", 0)
	RecordRow("nutrition_ingest", "read", -3)
	RecordRow("nutrition_ingest", "inserted", 7)

	if len(fb.counters) != 1 {
		t.Fatalf("got %d counter calls, want 1", len(fb.counters))
	}
	c := fb.counters[0]
	if c.name != RowsTotal || c.value != 7 || c.labels["kind"] != "inserted" || c.labels["job"] != "nutrition_ingest" {
		t.Fatalf("counter = %#v", c)
	}
}

func TestRecordRun(t *testing.T) {
	fb := install(t)
	RecordRun("fitness_ingest", "FAILED")
	if len(fb.counters) != 1 || fb.counters[0].name != RunsTotal || fb.counters[0].labels["status"] != "FAILED" {
		t.Fatalf("counters = %#v", fb.counters)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	fb := install(t)
	SetBackend(nil)
	RecordRow("j", "read", 1)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(fb.counters) != 0 || fb.flushes != 0 {
		t.Fatalf("fake backend still receiving calls: %#v", fb)
	}
}

func TestFlushDelegates(t *testing.T) {
	fb := install(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fb.flushes != 1 {
		t.Fatalf("flushes=%d want 1", fb.flushes)
	}
}
