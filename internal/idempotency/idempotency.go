// Package idempotency implements the gate that guarantees each transaction
// id produces exactly one decision under at-least-once delivery.
//
// The gate is checked before any mutating pipeline step, and MarkProcessed is
// the final durable write: until it succeeds the transaction is in flight and
// safe to recompute from scratch on redelivery.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyProcessed is returned by MarkProcessed when the transaction id
// was already recorded. The uniqueness is enforced by the backing store's
// constraint, not by application logic.
var ErrAlreadyProcessed = errors.New("transaction already processed")

// Record is one processed-transaction fact.
type Record struct {
	TransactionID string    `json:"transaction_id"`
	Decision      string    `json:"decision"`
	Source        string    `json:"source"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// Store persists the processed-transaction set.
type Store interface {
	// IsProcessed reports whether txnID has already produced a decision.
	IsProcessed(ctx context.Context, txnID string) (bool, error)
	// MarkProcessed records txnID as decided. Returns ErrAlreadyProcessed
	// if the id exists (the key is unique in the backing store).
	MarkProcessed(ctx context.Context, txnID, decision, source string) error
}
