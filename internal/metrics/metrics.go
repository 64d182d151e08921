// Package metrics provides a small, backend-agnostic abstraction for
// recording operational metrics from the reconciliation pipeline.
//
// The package is intentionally minimal and opinionated:
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data.
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - It mirrors the factory pattern used elsewhere in the project (e.g. the
//     source dialect registry), letting the rest of the codebase depend only
//     on this interface while concrete metric systems stay isolated in
//     subpackages.
//
// The primary use case is instrumentation of execution phases (extraction,
// reconciliation, storage) without coupling the pipeline to a specific
// metrics system such as Prometheus or Datadog.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
// It is intentionally generic so we can plug in Prometheus, Datadog, etc.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordPhase is a convenience for the common pattern:
// measure latency + success/failure per execution phase.
func RecordPhase(job, phase string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"phase":  phase,
		"status": status,
	}

	backend.IncCounter("recon_phase_total", 1, lbls)
	backend.ObserveHistogram("recon_phase_duration_seconds", d.Seconds(), lbls)
}

// RecordRows increments a row-level counter for the given job and kind.
//
// Typical kinds mirror the execution result fields, e.g.:
//   - "staged_source"
//   - "staged_target"
//   - "matched"
//   - "unmatched_source"
//   - "unmatched_target"
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter("recon_rows_total", float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordExecution increments the per-job execution counter.
func RecordExecution(job string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	backend.IncCounter("recon_executions_total", 1, Labels{
		"job":    job,
		"status": status,
	})
}
