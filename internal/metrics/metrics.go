// Package metrics records operational metrics for the ingestion pipelines
// without tying them to a metrics system.
//
// A process installs one Backend at startup with SetBackend; until then every
// call goes to a no-op backend, so instrumentation is always safe to call.
// Concrete backends live in subpackages (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the helpers below.
const (
	StepTotal    = "healthetl_step_total"
	StepDuration = "healthetl_step_duration_seconds"
	RowsTotal    = "healthetl_rows_total"
	RunsTotal    = "healthetl_runs_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error { return current().Flush() }

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one execution of a pipeline stage and observes its
// duration, labelled by outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	b := current()
	lbls := Labels{"job": job, "step": step, "status": status(err)}
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta to a row counter. Kinds mirror the quality run
// counters: read, inserted, rejected, missing, duplicates.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordRun counts a finished run by terminal status.
func RecordRun(job, runStatus string) {
	current().IncCounter(RunsTotal, 1, Labels{"job": job, "status": runStatus})
}
