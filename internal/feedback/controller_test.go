package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/riskprofile"
	"github.com/nmehta6/riskgate/internal/thresholds"
)

func testController(t *testing.T) (*Controller, *MemoryStore, *thresholds.MemoryStore, *riskprofile.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	global := thresholds.NewMemoryStore()
	profiles := riskprofile.NewMemoryStore(riskprofile.ParamsFor(event.DomainUPI))
	c := NewController(store, global, profiles, DefaultWindowSize, slog.Default())
	return c, store, global, profiles
}

func addRecords(t *testing.T, store *MemoryStore, n int, prefix string, d decision.Outcome, actual Label) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := store.Add(context.Background(), &Record{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			TransactionID: fmt.Sprintf("txn-%s-%d", prefix, i),
			Payer:         fmt.Sprintf("payer-%s-%d@upi", prefix, i),
			Decision:      d,
			Actual:        actual,
			Source:        SourceManual,
			CreatedAt:     time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("add record: %v", err)
		}
	}
}

func TestRun_SkipsBelowMinimumWindow(t *testing.T) {
	c, store, global, _ := testController(t)
	ctx := context.Background()

	addRecords(t, store, MinWindowSize-1, "few", decision.Allow, LabelFraud)

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !res.Skipped {
		t.Error("expected run to skip below minimum window")
	}

	th, _ := global.Get(ctx)
	if th.Block != thresholds.DefaultBlock {
		t.Errorf("thresholds moved on skipped run: %+v", th)
	}

	// Skipped records stay unprocessed for the next run.
	recs, _ := store.Unprocessed(ctx, DefaultWindowSize)
	if len(recs) != MinWindowSize-1 {
		t.Errorf("unprocessed = %d, want %d", len(recs), MinWindowSize-1)
	}
}

func TestRun_MissedFraudTightens(t *testing.T) {
	c, store, global, profiles := testController(t)
	ctx := context.Background()

	// 10 missed frauds in a window of 100 trips the 0.08 limit.
	addRecords(t, store, 10, "fn", decision.Allow, LabelFraud)
	addRecords(t, store, 90, "ok", decision.Allow, LabelGenuine)

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Evaluated != 100 || res.MissedFraud != 10 {
		t.Fatalf("result = %+v", res)
	}
	if res.Adjustment != "tighten" {
		t.Errorf("adjustment = %q, want tighten", res.Adjustment)
	}

	th, _ := global.Get(ctx)
	if !closeTo(th.Block, thresholds.DefaultBlock-thresholds.Step) ||
		!closeTo(th.StepUp, thresholds.DefaultStepUp-thresholds.Step) {
		t.Errorf("thresholds = %+v, want one tighten step", th)
	}

	// Each missed-fraud payer got the positive nudge.
	p, err := profiles.Get(ctx, "payer-fn-0@upi")
	if err != nil {
		t.Fatalf("get nudged profile: %v", err)
	}
	if p.RiskScore != riskprofile.DefaultScore+MissedFraudDelta {
		t.Errorf("nudged score = %d, want %d", p.RiskScore, riskprofile.DefaultScore+MissedFraudDelta)
	}

	// Window consumed: second run sees nothing.
	res2, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !res2.Skipped || res2.Evaluated != 0 {
		t.Errorf("second run = %+v, want empty skip", res2)
	}
}

func TestRun_FalsePositivesRelax(t *testing.T) {
	c, store, global, profiles := testController(t)
	ctx := context.Background()

	// 11 false positives in 100 trips the 0.10 limit.
	addRecords(t, store, 11, "fp", decision.Block, LabelGenuine)
	addRecords(t, store, 89, "ok", decision.Allow, LabelGenuine)

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Adjustment != "relax" {
		t.Errorf("adjustment = %q, want relax", res.Adjustment)
	}

	th, _ := global.Get(ctx)
	if !closeTo(th.Block, thresholds.DefaultBlock+thresholds.Step) {
		t.Errorf("block = %f, want one relax step", th.Block)
	}

	p, err := profiles.Get(ctx, "payer-fp-0@upi")
	if err != nil {
		t.Fatalf("get nudged profile: %v", err)
	}
	if p.RiskScore != riskprofile.DefaultScore+FalsePositiveDelta {
		t.Errorf("nudged score = %d, want %d", p.RiskScore, riskprofile.DefaultScore+FalsePositiveDelta)
	}
}

func TestRun_MissedFraudDominates(t *testing.T) {
	c, store, global, _ := testController(t)
	ctx := context.Background()

	// Both rates trip; tighten wins.
	addRecords(t, store, 9, "fn", decision.Allow, LabelFraud)
	addRecords(t, store, 11, "fp", decision.Block, LabelGenuine)
	addRecords(t, store, 80, "ok", decision.Allow, LabelGenuine)

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Adjustment != "tighten" {
		t.Errorf("adjustment = %q, want tighten when both rates trip", res.Adjustment)
	}

	th, _ := global.Get(ctx)
	if !closeTo(th.Block, thresholds.DefaultBlock-thresholds.Step) {
		t.Errorf("block = %f, want tightened", th.Block)
	}
}

func TestRun_HealthyWindowLeavesThresholdsAlone(t *testing.T) {
	c, store, global, _ := testController(t)
	ctx := context.Background()

	addRecords(t, store, 5, "fn", decision.Allow, LabelFraud)   // 5% < 8%
	addRecords(t, store, 5, "fp", decision.Block, LabelGenuine) // 5% < 10%
	addRecords(t, store, 90, "ok", decision.Allow, LabelGenuine)

	res, err := c.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Adjustment != "" {
		t.Errorf("adjustment = %q, want none", res.Adjustment)
	}

	th, _ := global.Get(ctx)
	if th.Block != thresholds.DefaultBlock || th.StepUp != thresholds.DefaultStepUp {
		t.Errorf("thresholds = %+v, want defaults", th)
	}
}

func closeTo(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
