package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memWriter struct {
	mu     sync.Mutex
	rows   map[string]int
	fail   bool
	closed bool
}

func (w *memWriter) WriteBatch(_ context.Context, table string, _ []string, rows [][]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("clickhouse unavailable")
	}
	if w.rows == nil {
		w.rows = make(map[string]int)
	}
	w.rows[table] += len(rows)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func (w *memWriter) count(table string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows[table]
}

func TestBatcher_FlushGroupsByTable(t *testing.T) {
	w := &memWriter{}
	b := NewBatcher(BufferConfig{Writer: w, BatchSize: 1000, FlushInterval: time.Hour})

	for i := 0; i < 3; i++ {
		b.Record(&ExposureEvent{Timestamp: time.Now(), TestID: "t", VariantID: "v", Identifier: "user:1"})
	}
	b.Record(&ConversionEvent{Timestamp: time.Now(), TestID: "t", Revenue: 100})

	if got := b.Pending(); got != 4 {
		t.Fatalf("Pending() = %d, want 4", got)
	}

	if err := b.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if w.count("experiment_exposures") != 3 {
		t.Errorf("exposures written = %d, want 3", w.count("experiment_exposures"))
	}
	if w.count("experiment_conversions") != 1 {
		t.Errorf("conversions written = %d, want 1", w.count("experiment_conversions"))
	}
	if !w.closed {
		t.Error("writer should be closed")
	}
}

func TestBatcher_DropsBeyondMaxPending(t *testing.T) {
	w := &memWriter{}
	b := NewBatcher(BufferConfig{Writer: w, BatchSize: 1000, MaxPending: 2, FlushInterval: time.Hour})
	defer b.Close(context.Background())

	for i := 0; i < 5; i++ {
		b.Record(&ExposureEvent{})
	}

	if got := b.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
}

func TestBatcher_FlushError(t *testing.T) {
	w := &memWriter{fail: true}
	b := NewBatcher(BufferConfig{Writer: w, FlushInterval: time.Hour})
	defer b.Close(context.Background())

	b.Record(&PricingDecisionEvent{})
	if err := b.Flush(context.Background()); err == nil {
		t.Error("expected flush error")
	}
	if b.Pending() != 0 {
		t.Error("failed batch should not be re-queued")
	}
}

func TestEventColumnsMatchRows(t *testing.T) {
	events := []Event{&PricingDecisionEvent{}, &ExposureEvent{}, &ConversionEvent{}}
	for _, e := range events {
		if len(e.Columns()) != len(e.Row()) {
			t.Errorf("%s: %d columns, %d values", e.Table(), len(e.Columns()), len(e.Row()))
		}
	}
}
