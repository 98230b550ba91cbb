// Package audit persists the append-only log of decision records. Records
// are immutable once appended; corrections arrive as feedback, never as
// edits.
package audit

import (
	"context"
	"errors"

	"github.com/nmehta6/riskgate/internal/decision"
)

// ErrNotFound is returned when no decision exists for a transaction id.
var ErrNotFound = errors.New("decision not found")

// Store is the append-only decision log.
type Store interface {
	// Append validates and stores a decision record. Appending a record
	// whose transaction id is already logged is a no-op success: the log
	// keeps the first record, so replays under at-least-once delivery
	// cannot produce a second decision for the same transaction.
	Append(ctx context.Context, rec *decision.Record) error

	// GetByTxnID returns the decision for one transaction.
	GetByTxnID(ctx context.Context, txnID string) (*decision.Record, error)

	// Recent returns up to n most recent decisions, newest first.
	Recent(ctx context.Context, n int) ([]*decision.Record, error)
}
