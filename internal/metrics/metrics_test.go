package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// captureBackend records every call for assertions.
type captureBackend struct {
	mu         sync.Mutex
	counters   []capturedMetric
	histograms []capturedMetric
	flushed    int
}

type capturedMetric struct {
	name   string
	value  float64
	labels Labels
}

func (b *captureBackend) IncCounter(name string, delta float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.counters = append(b.counters, capturedMetric{name, delta, labels})
}

func (b *captureBackend) ObserveHistogram(name string, value float64, labels Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.histograms = append(b.histograms, capturedMetric{name, value, labels})
}

func (b *captureBackend) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushed++
	return nil
}

// install swaps in a capture backend and restores the nop backend afterwards.
func install(t *testing.T) *captureBackend {
	t.Helper()
	b := &captureBackend{}
	SetBackend(b)
	t.Cleanup(func() { SetBackend(nopBackend{}) })
	return b
}

func TestSetBackendIgnoresNil(t *testing.T) {
	b := install(t)
	SetBackend(nil)
	RecordExecution("job", nil)
	if len(b.counters) != 1 {
		t.Fatalf("counters = %d, want 1 (nil must not replace backend)", len(b.counters))
	}
}

func TestRecordPhase(t *testing.T) {
	b := install(t)

	RecordPhase("customers-v1", "source_extraction", nil, 1500*time.Millisecond)
	RecordPhase("customers-v1", "reconciliation", errors.New("boom"), 10*time.Millisecond)

	if len(b.counters) != 2 || len(b.histograms) != 2 {
		t.Fatalf("counters=%d histograms=%d, want 2/2", len(b.counters), len(b.histograms))
	}
	ok := b.counters[0]
	if ok.name != "recon_phase_total" || ok.labels["phase"] != "source_extraction" || ok.labels["status"] != "success" {
		t.Fatalf("success counter = %+v", ok)
	}
	if b.histograms[0].value != 1.5 {
		t.Fatalf("duration = %v, want 1.5s", b.histograms[0].value)
	}
	bad := b.counters[1]
	if bad.labels["status"] != "failure" {
		t.Fatalf("failure counter = %+v", bad)
	}
}

func TestRecordRows(t *testing.T) {
	b := install(t)

	RecordRows("job", "matched", 900)
	RecordRows("job", "matched", 0)
	RecordRows("job", "matched", -5)

	if len(b.counters) != 1 {
		t.Fatalf("counters = %d, want 1 (non-positive deltas dropped)", len(b.counters))
	}
	if b.counters[0].name != "recon_rows_total" || b.counters[0].value != 900 {
		t.Fatalf("row counter = %+v", b.counters[0])
	}
	if b.counters[0].labels["kind"] != "matched" {
		t.Fatalf("row labels = %+v", b.counters[0].labels)
	}
}

func TestRecordExecution(t *testing.T) {
	b := install(t)

	RecordExecution("job", nil)
	RecordExecution("job", errors.New("boom"))

	if len(b.counters) != 2 {
		t.Fatalf("counters = %d, want 2", len(b.counters))
	}
	if b.counters[0].labels["status"] != "success" || b.counters[1].labels["status"] != "failure" {
		t.Fatalf("statuses = %+v", b.counters)
	}
}

func TestFlushDelegates(t *testing.T) {
	b := install(t)
	if err := Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if b.flushed != 1 {
		t.Fatalf("flushed = %d, want 1", b.flushed)
	}
}
