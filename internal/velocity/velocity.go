// Package velocity maintains per-payer sliding-window transaction statistics.
//
// Records are append-only facts and are never deleted by this package;
// retention is an operational concern outside the contract.
package velocity

import (
	"context"
	"time"
)

// Window durations for the feature queries.
const (
	WindowShort = 1 * time.Hour
	WindowDay   = 24 * time.Hour
	WindowWeek  = 7 * 24 * time.Hour
)

// Features are the velocity signals supplied to the scoring orchestrator.
type Features struct {
	Count1h     int     `json:"transactions_last_1hr"`
	Count24h    int     `json:"transactions_last_24hr"`
	AvgAmount7d float64 `json:"avg_amount_last_7_days"`
}

// Record is one persisted velocity fact.
type Record struct {
	Payer     string    `json:"payer_vpa"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// Store persists and queries velocity records. All window boundaries are
// closed on the lower end and inclusive of now.
type Store interface {
	// Record appends one velocity fact.
	Record(ctx context.Context, payer string, amount float64, timestamp time.Time) error
	// Features computes the sliding-window aggregates for payer as of now.
	// AvgAmount7d is 0.0 when the 7-day window is empty.
	Features(ctx context.Context, payer string, now time.Time) (Features, error)
}
