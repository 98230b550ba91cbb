// Package queue implements the FIFO event intake queue consumed by the
// decision pipeline. Delivery is at-least-once: a batch is acknowledged only
// after every event in it has been decided (or rejected), so a crash mid-batch
// redelivers the whole batch and the idempotency gate absorbs the duplicates.
package queue

import (
	"context"

	"github.com/nmehta6/riskgate/internal/event"
)

// Envelope wraps a queued event with its queue position.
type Envelope struct {
	ID    int64
	Event event.Transaction
}

// Store is the event queue contract.
type Store interface {
	// Enqueue appends an event to the tail of the queue.
	Enqueue(ctx context.Context, txn *event.Transaction) error
	// ReadBatch returns up to limit events from the head in FIFO order
	// without removing them.
	ReadBatch(ctx context.Context, limit int) ([]Envelope, error)
	// Ack removes the given queue entries after a fully-processed batch.
	Ack(ctx context.Context, ids []int64) error
	// Depth returns the number of events currently queued.
	Depth(ctx context.Context) (int, error)
}
