// Package graph maintains the directed weighted payer→payee transaction
// graph used for relationship-based override rules.
package graph

import (
	"context"
	"time"
)

// EdgeStats describes one (payer, payee) edge. Count is monotonically
// non-decreasing and equals the number of transactions observed for the
// ordered pair.
type EdgeStats struct {
	Payer       string    `json:"payer_vpa"`
	Payee       string    `json:"payee_vpa"`
	Count       int64     `json:"count"`
	TotalAmount float64   `json:"total_amount"`
	LastSeen    time.Time `json:"last_seen"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and queries the transaction graph.
type Store interface {
	// RecordTransaction upserts the (payer, payee) edge: count +1, total
	// amount +amount, last_seen = timestamp; created_at is set on first
	// occurrence.
	RecordTransaction(ctx context.Context, payer, payee string, amount float64, timestamp time.Time) error
	// EdgeStats returns the edge for (payer, payee), or nil when absent.
	EdgeStats(ctx context.Context, payer, payee string) (*EdgeStats, error)
	// UniquePayees returns the number of distinct payees payer has an edge to.
	UniquePayees(ctx context.Context, payer string) (int, error)
	// UniquePayers returns the number of distinct payers with an edge to payee.
	UniquePayers(ctx context.Context, payee string) (int, error)
}
