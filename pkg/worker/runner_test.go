package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingWorker struct {
	runs  atomic.Int32
	err   error
	panic bool
}

func (w *countingWorker) Name() string { return "counting" }

func (w *countingWorker) Run(ctx context.Context) error {
	w.runs.Add(1)
	if w.panic {
		panic("boom")
	}
	return w.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestPeriodicWorker(t *testing.T) {
	tests := []struct {
		name   string
		worker *countingWorker
	}{
		{"healthy", &countingWorker{}},
		{"failing iterations keep running", &countingWorker{err: errors.New("store down")}},
		{"panics are recovered", &countingWorker{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			pw := NewPeriodicWorker(tt.worker, 10*time.Millisecond, time.Second)
			pw.Start(ctx)

			waitFor(t, func() bool { return tt.worker.runs.Load() >= 3 })

			cancel()
			if !pw.Wait(time.Second) {
				t.Fatal("worker did not stop")
			}
		})
	}
}

func TestPeriodicWorker_RunsImmediately(t *testing.T) {
	w := &countingWorker{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	NewPeriodicWorker(w, time.Hour, 0).Start(ctx)
	waitFor(t, func() bool { return w.runs.Load() == 1 })
}

func TestGroup(t *testing.T) {
	a, b := &countingWorker{}, &countingWorker{}

	g := NewGroup(context.Background())
	g.Add(a, 10*time.Millisecond, 0)
	g.Start()
	g.Add(b, 10*time.Millisecond, 0)

	waitFor(t, func() bool { return a.runs.Load() >= 2 && b.runs.Load() >= 2 })

	g.Stop(time.Second)
	after := a.runs.Load()
	time.Sleep(30 * time.Millisecond)
	if a.runs.Load() != after {
		t.Errorf("worker kept running after Stop")
	}
}
