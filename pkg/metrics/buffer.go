package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/selivandex/pricing-engine/pkg/logger"
)

// BufferConfig configures a Batcher
type BufferConfig struct {
	Writer        Writer
	BatchSize     int           // flush a table once it holds this many rows
	FlushInterval time.Duration // periodic flush of everything
	MaxPending    int           // rows kept per table before new ones are dropped
	FlushTimeout  time.Duration
}

type tableBuffer struct {
	columns []string
	rows    [][]interface{}
}

// Batcher groups events by table and writes them in batches from one goroutine
type Batcher struct {
	cfg     BufferConfig
	mu      sync.Mutex
	tables  map[string]*tableBuffer
	dropped int64

	flushCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ Recorder = (*Batcher)(nil)

// NewBatcher starts a batcher over cfg.Writer
func NewBatcher(cfg BufferConfig) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = cfg.BatchSize * 20
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}

	b := &Batcher{
		cfg:     cfg,
		tables:  make(map[string]*tableBuffer),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}

	b.wg.Add(1)
	go b.loop()

	logger.Info("analytics batcher started",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("flush_interval", cfg.FlushInterval),
	)

	return b
}

// Record queues an event. Events beyond MaxPending for a table are dropped.
func (b *Batcher) Record(event Event) {
	if event == nil {
		return
	}

	b.mu.Lock()
	tb, ok := b.tables[event.Table()]
	if !ok {
		tb = &tableBuffer{columns: event.Columns()}
		b.tables[event.Table()] = tb
	}
	if len(tb.rows) >= b.cfg.MaxPending {
		b.dropped++
		b.mu.Unlock()
		return
	}
	tb.rows = append(tb.rows, event.Row())
	full := len(tb.rows) >= b.cfg.BatchSize
	b.mu.Unlock()

	if full {
		select {
		case b.flushCh <- struct{}{}:
		default:
		}
	}
}

// Pending returns queued rows across tables
func (b *Batcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	for _, tb := range b.tables {
		total += len(tb.rows)
	}
	return total
}

// Flush writes everything queued so far
func (b *Batcher) Flush(ctx context.Context) error {
	b.mu.Lock()
	batches := make(map[string]*tableBuffer, len(b.tables))
	for table, tb := range b.tables {
		if len(tb.rows) == 0 {
			continue
		}
		batches[table] = &tableBuffer{columns: tb.columns, rows: tb.rows}
		tb.rows = nil
	}
	dropped := b.dropped
	b.dropped = 0
	b.mu.Unlock()

	if dropped > 0 {
		logger.Warn("analytics events dropped, buffer full", zap.Int64("dropped", dropped))
	}

	failed := 0
	for table, batch := range batches {
		if err := b.cfg.Writer.WriteBatch(ctx, table, batch.columns, batch.rows); err != nil {
			failed++
			logger.Error("failed to flush analytics batch",
				zap.String("table", table),
				zap.Int("rows", len(batch.rows)),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		return fmt.Errorf("flush failed for %d tables", failed)
	}
	return nil
}

// Close stops the flush loop, writes what is left and closes the writer
func (b *Batcher) Close(ctx context.Context) error {
	b.once.Do(func() { close(b.stopCh) })
	b.wg.Wait()

	flushErr := b.Flush(ctx)
	if err := b.cfg.Writer.Close(); err != nil {
		return fmt.Errorf("failed to close analytics writer: %w", err)
	}
	return flushErr
}

func (b *Batcher) loop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case <-ticker.C:
		case <-b.flushCh:
		}

		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.FlushTimeout)
		if err := b.Flush(ctx); err != nil {
			logger.Warn("periodic analytics flush failed", zap.Error(err))
		}
		cancel()
	}
}
