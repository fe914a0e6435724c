// Package worker runs background jobs on a fixed interval until their
// context is cancelled.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

var runsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "worker_runs_total",
		Help: "Background worker iterations by outcome",
	},
	[]string{"worker", "result"},
)

func init() {
	prometheus.MustRegister(runsTotal)
}

// Worker is one unit of periodic background work
type Worker interface {
	// Name identifies the worker in logs and metrics
	Name() string
	// Run executes one iteration
	Run(ctx context.Context) error
}

// PeriodicWorker runs a Worker immediately and then on every tick
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	timeout  time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewPeriodicWorker wraps worker. A positive timeout bounds each iteration.
func NewPeriodicWorker(worker Worker, interval, timeout time.Duration) *PeriodicWorker {
	return &PeriodicWorker{
		worker:   worker,
		interval: interval,
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// Start launches the loop; it ends when ctx is cancelled
func (pw *PeriodicWorker) Start(ctx context.Context) {
	pw.once.Do(func() {
		go pw.loop(ctx)
	})
}

// Wait blocks until the loop has exited or timeout elapses.
// It reports whether the loop exited.
func (pw *PeriodicWorker) Wait(timeout time.Duration) bool {
	select {
	case <-pw.done:
		return true
	case <-time.After(timeout):
		logger.Warn("worker stop timeout", zap.String("worker", pw.worker.Name()))
		return false
	}
}

func (pw *PeriodicWorker) loop(ctx context.Context) {
	defer close(pw.done)

	name := pw.worker.Name()
	logger.Info("worker started",
		zap.String("worker", name),
		zap.Duration("interval", pw.interval),
	)

	pw.runOnce(ctx)

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker stopped", zap.String("worker", name))
			return
		case <-ticker.C:
			pw.runOnce(ctx)
		}
	}
}

// runOnce executes one iteration. Errors and panics are logged and the loop continues.
func (pw *PeriodicWorker) runOnce(ctx context.Context) {
	name := pw.worker.Name()

	if pw.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, pw.timeout)
		defer cancel()
	}

	err := safeRun(ctx, pw.worker)
	if err != nil {
		runsTotal.WithLabelValues(name, "error").Inc()
		logger.Error("worker execution failed",
			zap.String("worker", name),
			zap.Error(err),
		)
		return
	}
	runsTotal.WithLabelValues(name, "ok").Inc()
}

func safeRun(ctx context.Context, w Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %s panicked: %v", w.Name(), r)
		}
	}()
	return w.Run(ctx)
}

// Group starts and stops a set of periodic workers together
type Group struct {
	mu      sync.Mutex
	workers []*PeriodicWorker
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewGroup creates a group whose workers stop when ctx is cancelled or Stop is called
func NewGroup(ctx context.Context) *Group {
	ctx, cancel := context.WithCancel(ctx)
	return &Group{ctx: ctx, cancel: cancel}
}

// Add registers a worker. Workers added after Start begin immediately.
func (g *Group) Add(w Worker, interval, timeout time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pw := NewPeriodicWorker(w, interval, timeout)
	g.workers = append(g.workers, pw)
	if g.started {
		pw.Start(g.ctx)
	}
}

// Start launches every registered worker
func (g *Group) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.started = true
	for _, pw := range g.workers {
		pw.Start(g.ctx)
	}
	logger.Info("worker group started", zap.Int("workers", len(g.workers)))
}

// Stop cancels every worker and waits up to timeout for each to exit
func (g *Group) Stop(timeout time.Duration) {
	g.cancel()

	g.mu.Lock()
	defer g.mu.Unlock()

	stopped := 0
	for _, pw := range g.workers {
		if !g.started || pw.Wait(timeout) {
			stopped++
		}
	}
	logger.Info("worker group stopped",
		zap.Int("workers", len(g.workers)),
		zap.Int("clean", stopped),
	)
}
