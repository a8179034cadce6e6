package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"crypto_monitor/internal/domain"
	"crypto_monitor/internal/infra"
)

const (
	flushAttempts  = 3
	flushQueueSize = 8
)

// BatchWriter accumulates records and flushes them to durable storage
// whenever the pending batch reaches the configured size. Threshold
// flushes run on a dedicated goroutine so Enqueue never blocks on
// storage I/O; a full batch that finds the flush queue saturated is
// parked in the retained list and written by the next flush instead.
//
// A record handed to Enqueue lives in exactly one of {pending,
// retained, flush queue, durable storage} until a flush surfaces a
// terminal error; it is never silently dropped.
type BatchWriter struct {
	store     domain.BatchStorage
	batchSize int
	retryBase time.Duration // Overridable in tests

	mu       sync.Mutex
	pending  []domain.Record
	retained []domain.Record // Failed or deferred batches awaiting retry
	closed   bool

	writeMu sync.Mutex // Serializes storage writes
	flushCh chan []domain.Record
	wg      sync.WaitGroup

	flushed atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewBatchWriter creates a writer flushing every batchSize records.
func NewBatchWriter(store domain.BatchStorage, batchSize int) *BatchWriter {
	if batchSize < 1 {
		batchSize = 1
	}
	w := &BatchWriter{
		store:     store,
		batchSize: batchSize,
		retryBase: time.Second,
		pending:   make([]domain.Record, 0, batchSize),
		flushCh:   make(chan []domain.Record, flushQueueSize),
	}
	w.wg.Add(1)
	go w.flushLoop()
	return w
}

// Enqueue appends a record to the pending batch. When the batch
// reaches the threshold it is handed whole to the async flusher.
func (w *BatchWriter) Enqueue(r domain.Record) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return domain.ErrClosed
	}
	w.pending = append(w.pending, r)
	if len(w.pending) < w.batchSize {
		w.mu.Unlock()
		return nil
	}

	batch := w.pending
	w.pending = make([]domain.Record, 0, w.batchSize)
	w.mu.Unlock()

	select {
	case w.flushCh <- batch:
	default:
		// Flusher saturated; keep the batch for the next flush.
		w.mu.Lock()
		w.retained = append(w.retained, batch...)
		w.mu.Unlock()
	}
	return nil
}

func (w *BatchWriter) flushLoop() {
	defer w.wg.Done()
	for batch := range w.flushCh {
		if err := w.writeWithRetry(batch); err != nil {
			slog.Warn("Batch flush failed, retaining records",
				slog.Int("records", len(batch)), slog.Any("error", err))
			w.mu.Lock()
			w.retained = append(w.retained, batch...)
			w.mu.Unlock()
		}
	}
}

// writeWithRetry performs one bounded retry cycle against storage.
func (w *BatchWriter) writeWithRetry(batch []domain.Record) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	var lastErr error
	for i := 0; i < flushAttempts; i++ {
		if i > 0 {
			// Exponential: retryBase, 2*retryBase, ...
			time.Sleep(w.retryBase * time.Duration(1<<uint(i-1)))
		}
		if err := w.store.WriteBatch(context.Background(), batch); err != nil {
			lastErr = err
			continue
		}
		w.flushed.Add(uint64(len(batch)))
		infra.GlobalMetrics.RecordFlush()
		return nil
	}
	infra.GlobalMetrics.RecordFlushFailure()
	return &domain.StorageWriteError{Attempts: flushAttempts, Err: lastErr}
}

// Flush synchronously writes everything currently pending or retained.
// With nothing buffered it performs no storage write. On failure the
// records are retained for a later opportunistic flush and the error
// is returned; nothing is discarded.
func (w *BatchWriter) Flush() error {
	w.mu.Lock()
	batch := make([]domain.Record, 0, len(w.retained)+len(w.pending))
	batch = append(batch, w.retained...)
	batch = append(batch, w.pending...)
	w.retained = nil
	w.pending = w.pending[:0]
	w.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if err := w.writeWithRetry(batch); err != nil {
		w.mu.Lock()
		w.retained = append(batch, w.retained...)
		w.mu.Unlock()
		return err
	}
	return nil
}

// Pending returns the number of buffered records awaiting flush.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending) + len(w.retained)
}

// Flushed returns the total records durably written.
func (w *BatchWriter) Flushed() uint64 {
	return w.flushed.Load()
}

// Close performs a final flush and releases storage. Safe to call
// more than once; subsequent calls are no-ops returning the first
// result.
func (w *BatchWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		// Let the flusher drain queued batches before the final flush.
		close(w.flushCh)
		w.wg.Wait()

		flushErr := w.Flush()
		closeErr := w.store.Close()
		if flushErr != nil {
			w.closeErr = flushErr
		} else {
			w.closeErr = closeErr
		}
	})
	return w.closeErr
}
