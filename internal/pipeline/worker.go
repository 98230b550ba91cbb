package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/metrics"
	"github.com/nmehta6/riskgate/internal/queue"
	"github.com/nmehta6/riskgate/internal/scoring"
)

// Intake result labels for metrics.
const (
	resultDecided   = "decided"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	resultError     = "error"
)

// Worker polls the intake queue and drives events through the pipeline.
type Worker struct {
	pipeline  *Pipeline
	queue     queue.Store
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
	stop      chan struct{}
	running   atomic.Bool
}

// NewWorker creates a queue consumer.
func NewWorker(p *Pipeline, q queue.Store, batchSize int, interval time.Duration, logger *slog.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Worker{
		pipeline:  p,
		queue:     q,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Running reports whether the consumer loop is actively running.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start begins the polling loop. Call in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safeDrain(ctx)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) safeDrain(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in pipeline worker", "panic", fmt.Sprint(r))
		}
	}()

	// Drain until the queue is empty so a burst doesn't wait a tick per batch.
	for {
		n, err := w.drainBatch(ctx)
		if err != nil {
			w.logger.Warn("batch processing failed", "error", err)
			return
		}
		if n == 0 {
			return
		}
	}
}

// drainBatch reads one batch and processes it. Events with a terminal result
// (decided, duplicate, invalid) are acknowledged; an event that fails
// transiently stays queued for redelivery, which the idempotency gate makes
// safe.
func (w *Worker) drainBatch(ctx context.Context) (int, error) {
	batch, err := w.queue.ReadBatch(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("read batch: %w", err)
	}
	if len(batch) == 0 {
		w.observeDepth(ctx)
		return 0, nil
	}

	acks := make([]int64, 0, len(batch))
	for _, env := range batch {
		txn := env.Event
		result := w.processOne(ctx, &txn)
		metrics.EventsProcessedTotal.WithLabelValues(result).Inc()
		if result != resultError {
			acks = append(acks, env.ID)
		}
	}

	if err := w.queue.Ack(ctx, acks); err != nil {
		return 0, fmt.Errorf("ack batch: %w", err)
	}

	w.observeDepth(ctx)
	// Report only acknowledged progress: a batch of events that all failed
	// transiently must wait for the next tick, not spin.
	return len(acks), nil
}

func (w *Worker) processOne(ctx context.Context, txn *event.Transaction) string {
	_, err := w.pipeline.Process(ctx, txn)
	switch {
	case err == nil:
		return resultDecided
	case errors.Is(err, ErrDuplicate):
		return resultDuplicate
	case errors.Is(err, event.ErrInvalidEvent):
		w.logger.Warn("rejecting invalid event", "txn_id", txn.TransactionID, "error", err)
		return resultInvalid
	case errors.Is(err, scoring.ErrChampionUnavailable):
		w.logger.Error("champion model unavailable, leaving event queued",
			"txn_id", txn.TransactionID, "error", err)
		return resultError
	default:
		w.logger.Warn("event processing failed, leaving event queued",
			"txn_id", txn.TransactionID, "error", err)
		return resultError
	}
}

func (w *Worker) observeDepth(ctx context.Context) {
	if depth, err := w.queue.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
}
