// Package event defines the transaction events consumed by the decision
// pipeline. Events are immutable once received; one event is the source of
// truth for one pipeline run.
package event

import (
	"errors"
	"fmt"
	"time"
)

// Domain selects the deployment's transaction family. It is fixed per
// deployment and picks the risk-profile parameter set.
type Domain string

const (
	DomainUPI  Domain = "upi"
	DomainCard Domain = "card"
)

// ParseDomain converts a config string into a Domain.
func ParseDomain(s string) (Domain, error) {
	switch Domain(s) {
	case DomainUPI:
		return DomainUPI, nil
	case DomainCard:
		return DomainCard, nil
	default:
		return "", fmt.Errorf("unknown risk domain %q", s)
	}
}

// ErrInvalidEvent marks an event that is missing required fields. The
// pipeline rejects the single event and continues the batch.
var ErrInvalidEvent = errors.New("invalid transaction event")

// Transaction is a single payment event.
type Transaction struct {
	TransactionID string    `json:"transaction_id"`
	Payer         string    `json:"payer_vpa"`
	Payee         string    `json:"payee_vpa"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`

	// Contextual attributes
	DeviceID       string `json:"device_id,omitempty"`
	IPAddress      string `json:"ip_address,omitempty"`
	BankCode       string `json:"bank_code,omitempty"`
	DeviceChange   bool   `json:"device_change,omitempty"`
	LocationChange bool   `json:"location_change,omitempty"`
}

// Validate reports whether the event carries every field the pipeline needs.
func (t *Transaction) Validate() error {
	switch {
	case t.TransactionID == "":
		return fmt.Errorf("%w: missing transaction_id", ErrInvalidEvent)
	case t.Payer == "":
		return fmt.Errorf("%w: missing payer_vpa", ErrInvalidEvent)
	case t.Payee == "":
		return fmt.Errorf("%w: missing payee_vpa", ErrInvalidEvent)
	case t.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", ErrInvalidEvent)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrInvalidEvent)
	}
	return nil
}
