package feedback

import (
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v81/webhook"
)

const testSecret = "whsec_test_secret"

func signedHeader(t *testing.T, payload []byte) string {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func disputePayload(eventType, status string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": %q,
		"data": {
			"object": {
				"id": "dp_1",
				"status": %q,
				"metadata": {
					"transaction_id": "txn-77",
					"payer_vpa": "victim@upi",
					"decision": "ALLOW"
				}
			}
		}
	}`, eventType, status))
}

func TestStripeAdapter_DisputeCreatedIsFraud(t *testing.T) {
	a := NewStripeAdapter(testSecret)
	payload := disputePayload("charge.dispute.created", "needs_response")

	rec, err := a.Parse(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.Actual != LabelFraud {
		t.Errorf("label = %s, want FRAUD", rec.Actual)
	}
	if rec.TransactionID != "txn-77" || rec.Payer != "victim@upi" {
		t.Errorf("record = %+v", rec)
	}
	if rec.Source != SourceStripe {
		t.Errorf("source = %s", rec.Source)
	}
}

func TestStripeAdapter_DisputeWonIsGenuine(t *testing.T) {
	a := NewStripeAdapter(testSecret)
	payload := disputePayload("charge.dispute.closed", "won")

	rec, err := a.Parse(payload, signedHeader(t, payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rec.Actual != LabelGenuine {
		t.Errorf("label = %s, want GENUINE", rec.Actual)
	}
}

func TestStripeAdapter_DisputeLostIsIgnored(t *testing.T) {
	a := NewStripeAdapter(testSecret)
	payload := disputePayload("charge.dispute.closed", "lost")

	if _, err := a.Parse(payload, signedHeader(t, payload)); !errors.Is(err, ErrIgnoredEvent) {
		t.Errorf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestStripeAdapter_UnrelatedEventIgnored(t *testing.T) {
	a := NewStripeAdapter(testSecret)
	payload := []byte(`{"id": "evt_2", "type": "payment_intent.succeeded", "data": {"object": {}}}`)

	if _, err := a.Parse(payload, signedHeader(t, payload)); !errors.Is(err, ErrIgnoredEvent) {
		t.Errorf("expected ErrIgnoredEvent, got %v", err)
	}
}

func TestStripeAdapter_BadSignature(t *testing.T) {
	a := NewStripeAdapter(testSecret)
	payload := disputePayload("charge.dispute.created", "needs_response")

	if _, err := a.Parse(payload, "t=1,v1=deadbeef"); err == nil {
		t.Fatal("expected signature verification error")
	}
}
