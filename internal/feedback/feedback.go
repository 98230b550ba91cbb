// Package feedback ingests ground-truth labels for past decisions and drives
// the drift controller that adapts global thresholds and payer scores.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
)

// Label is the confirmed outcome of a transaction.
type Label string

const (
	LabelFraud   Label = "FRAUD"
	LabelGenuine Label = "GENUINE"
)

// Valid reports whether l is a known label.
func (l Label) Valid() bool {
	return l == LabelFraud || l == LabelGenuine
}

// Feedback sources.
const (
	SourceManual = "manual"
	SourceStripe = "stripe"
)

// Score nudges applied to misclassified payers.
const (
	MissedFraudDelta   = 10 // allowed a transaction later confirmed fraud
	FalsePositiveDelta = -5 // blocked a transaction later confirmed genuine
)

// Record is one ground-truth label tied to a past decision.
type Record struct {
	ID            string           `json:"id"`
	TransactionID string           `json:"transaction_id"`
	Payer         string           `json:"payer_vpa"`
	Decision      decision.Outcome `json:"decision"`
	Actual        Label            `json:"actual"`
	Source        string           `json:"source"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Validate checks record integrity before storage.
func (r *Record) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("feedback record: missing transaction id")
	}
	if r.Payer == "" {
		return fmt.Errorf("feedback record: missing payer")
	}
	if !r.Decision.Valid() {
		return fmt.Errorf("feedback record: invalid decision %q", r.Decision)
	}
	if !r.Actual.Valid() {
		return fmt.Errorf("feedback record: invalid label %q", r.Actual)
	}
	return nil
}

// MissedFraud reports whether the engine allowed a confirmed-fraud
// transaction (a false negative).
func (r *Record) MissedFraud() bool {
	return r.Actual == LabelFraud && r.Decision == decision.Allow
}

// FalsePositive reports whether the engine blocked a confirmed-genuine
// transaction.
func (r *Record) FalsePositive() bool {
	return r.Actual == LabelGenuine && r.Decision == decision.Block
}

// Store persists feedback records. Records arrive unprocessed; the drift
// controller consumes them in batches and marks them processed so each
// label influences the thresholds exactly once.
type Store interface {
	Add(ctx context.Context, rec *Record) error
	Unprocessed(ctx context.Context, limit int) ([]*Record, error)
	MarkProcessed(ctx context.Context, ids []string) error
}
