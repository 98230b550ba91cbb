//go:build integration

package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nmehta6/riskgate/internal/audit"
	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/testutil"
)

func TestPostgresStore_AppendAndRead(t *testing.T) {
	db := testutil.PGTest(t)
	ctx := context.Background()

	store := audit.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	base := time.Now().UTC().Truncate(time.Microsecond)
	challenger := 0.42
	for i := 0; i < 3; i++ {
		rec := &decision.Record{
			TransactionID: fmt.Sprintf("txn-%d", i),
			Payer:         "alice@upi",
			Payee:         "bob@upi",
			Amount:        100,
			Decision:      decision.Allow,
			ChampionProb:  0.1,
			VelocityRisk:  0,
			CombinedProb:  0.1,
			Explanations:  []string{decision.FallbackExplanation},
			EventAt:       base.Add(time.Duration(i) * time.Second),
			DecidedAt:     base.Add(time.Duration(i) * time.Second),
		}
		if i == 2 {
			rec.ChallengerProb = &challenger
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	// Replaying an append for an already-logged id succeeds and keeps the
	// first record.
	replay := &decision.Record{
		TransactionID: "txn-0",
		Payer:         "alice@upi",
		Payee:         "bob@upi",
		Amount:        100,
		Decision:      decision.Block,
		Explanations:  []string{decision.FallbackExplanation},
		EventAt:       base,
		DecidedAt:     base,
	}
	if err := store.Append(ctx, replay); err != nil {
		t.Fatalf("replayed append: %v", err)
	}
	kept, err := store.GetByTxnID(ctx, "txn-0")
	if err != nil {
		t.Fatalf("get replayed: %v", err)
	}
	if kept.Decision != decision.Allow {
		t.Errorf("replay overwrote the record: %s", kept.Decision)
	}

	got, err := store.GetByTxnID(ctx, "txn-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Payer != "alice@upi" || got.Decision != decision.Allow {
		t.Errorf("record round trip mismatch: %+v", got)
	}
	if got.ChallengerProb == nil || *got.ChallengerProb != challenger {
		t.Errorf("challenger prob = %v, want %v", got.ChallengerProb, challenger)
	}
	if len(got.Explanations) != 1 || got.Explanations[0] != decision.FallbackExplanation {
		t.Errorf("explanations = %v", got.Explanations)
	}

	recent, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 2 || recent[0].TransactionID != "txn-2" {
		t.Errorf("recent = %v, want newest first limited to 2", recent)
	}

	if _, err := store.GetByTxnID(ctx, "missing"); !errors.Is(err, audit.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
