//go:build integration

package riskprofile_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/riskprofile"
	"github.com/nmehta6/riskgate/internal/testutil"
)

func TestPostgresStore_Lifecycle(t *testing.T) {
	db := testutil.PGTest(t)
	ctx := context.Background()

	store := riskprofile.NewPostgresStore(db, riskprofile.ParamsFor(event.DomainUPI))
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	// Unknown payer: lazy-created with defaults, existed=false.
	th, existed, err := store.GetThresholds(ctx, "alice@upi")
	if err != nil {
		t.Fatalf("get thresholds: %v", err)
	}
	if existed {
		t.Error("first read must report a fresh profile")
	}
	want := riskprofile.ParamsFor(event.DomainUPI).ThresholdsFor(riskprofile.DefaultScore)
	if th != want {
		t.Errorf("thresholds = %+v, want defaults %+v", th, want)
	}

	// Second read sees the existing row.
	if _, existed, err = store.GetThresholds(ctx, "alice@upi"); err != nil || !existed {
		t.Errorf("second read: existed=%v err=%v, want true, nil", existed, err)
	}

	// A BLOCK bumps the score and the counter and tightens the thresholds.
	now := time.Now().UTC()
	p, err := store.ApplyDecision(ctx, "alice@upi", decision.Block, now)
	if err != nil {
		t.Fatalf("apply decision: %v", err)
	}
	if p.RiskScore != riskprofile.DefaultScore+riskprofile.BlockDelta {
		t.Errorf("score = %d, want %d", p.RiskScore, riskprofile.DefaultScore+riskprofile.BlockDelta)
	}
	if p.BlockCount != 1 {
		t.Errorf("block count = %d, want 1", p.BlockCount)
	}
	if p.Thresholds.Block >= want.Block {
		t.Errorf("block threshold %.4f should tighten below %.4f", p.Thresholds.Block, want.Block)
	}

	// Feedback nudge persists across reads.
	if _, err := store.AdjustScore(ctx, "alice@upi", 10, now); err != nil {
		t.Fatalf("adjust score: %v", err)
	}
	got, err := store.Get(ctx, "alice@upi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	wantScore := riskprofile.DefaultScore + riskprofile.BlockDelta + 10
	if got.RiskScore != wantScore {
		t.Errorf("score after nudge = %d, want %d", got.RiskScore, wantScore)
	}

	if _, err := store.Get(ctx, "nobody@upi"); !errors.Is(err, riskprofile.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
