package feedback

import (
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/idgen"
)

// ErrIgnoredEvent is returned for webhook events that carry no feedback
// signal; callers acknowledge them without storing anything.
var ErrIgnoredEvent = fmt.Errorf("ignored stripe event")

// Dispute metadata keys set by the charge creator at payment time.
const (
	metaTransactionID = "transaction_id"
	metaPayer         = "payer_vpa"
	metaDecision      = "decision"
)

// StripeAdapter converts card dispute webhooks into feedback records. A
// dispute opening confirms fraud; a dispute closed in the merchant's favor
// confirms the transaction was genuine.
type StripeAdapter struct {
	secret string
}

// NewStripeAdapter creates an adapter verifying signatures with the given
// webhook signing secret.
func NewStripeAdapter(secret string) *StripeAdapter {
	return &StripeAdapter{secret: secret}
}

// Parse verifies the webhook signature and maps the event to a feedback
// record. Events without a feedback meaning return ErrIgnoredEvent.
func (a *StripeAdapter) Parse(payload []byte, sigHeader string) (*Record, error) {
	// Dispute events arrive at the account's pinned API version, which
	// rarely matches the SDK's; the version check would reject them all.
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, a.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("verify stripe webhook: %w", err)
	}

	var label Label
	switch string(evt.Type) {
	case "charge.dispute.created":
		label = LabelFraud
	case "charge.dispute.closed":
		// Only a dispute won by the merchant is evidence of a genuine
		// transaction; losses already produced a FRAUD label at creation.
		label = LabelGenuine
	default:
		return nil, ErrIgnoredEvent
	}

	var dispute stripe.Dispute
	if err := json.Unmarshal(evt.Data.Raw, &dispute); err != nil {
		return nil, fmt.Errorf("decode dispute payload: %w", err)
	}

	if label == LabelGenuine && dispute.Status != stripe.DisputeStatusWon {
		return nil, ErrIgnoredEvent
	}

	rec := &Record{
		ID:            idgen.WithPrefix("fb_"),
		TransactionID: dispute.Metadata[metaTransactionID],
		Payer:         dispute.Metadata[metaPayer],
		Decision:      decision.Outcome(dispute.Metadata[metaDecision]),
		Actual:        label,
		Source:        SourceStripe,
		CreatedAt:     time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("dispute missing feedback metadata: %w", err)
	}
	return rec, nil
}
