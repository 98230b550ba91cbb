package scoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/velocity"
)

func TestVelocityRisk_SingleClause(t *testing.T) {
	vel := velocity.Features{Count1h: 5, Count24h: 0, AvgAmount7d: 0}
	if got := VelocityRisk(100, vel); got != 0.2 {
		t.Errorf("VelocityRisk = %f, want exactly 0.2", got)
	}
}

func TestVelocityRisk_AllClauses(t *testing.T) {
	// count_1h=5, count_24h=20, amount/avg = 3 → 0.2 + 0.3 + 0.3
	vel := velocity.Features{Count1h: 5, Count24h: 20, AvgAmount7d: 100}
	if got := VelocityRisk(300, vel); got != 0.8 {
		t.Errorf("VelocityRisk = %f, want exactly 0.8", got)
	}
}

func TestVelocityRisk_BelowThresholds(t *testing.T) {
	vel := velocity.Features{Count1h: 4, Count24h: 19, AvgAmount7d: 100}
	if got := VelocityRisk(299, vel); got != 0.0 {
		t.Errorf("VelocityRisk = %f, want 0.0", got)
	}
}

func TestVelocityRisk_ZeroAverageSkipsRatio(t *testing.T) {
	vel := velocity.Features{AvgAmount7d: 0}
	if got := VelocityRisk(1e9, vel); got != 0.0 {
		t.Errorf("VelocityRisk = %f, want 0.0 when no 7d history", got)
	}
}

func testTxn() *event.Transaction {
	return &event.Transaction{
		TransactionID: "txn-1",
		Payer:         "user@upi",
		Payee:         "merchant@upi",
		Amount:        300,
		Timestamp:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}
}

func TestOrchestrator_CombinedIsCapped(t *testing.T) {
	o, err := NewOrchestrator(&StaticModel{ModelName: "champ", Probability: 0.5}, nil)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	txn := testTxn()
	vel := velocity.Features{Count1h: 5, Count24h: 20, AvgAmount7d: 100}
	fv := BuildFeatures(txn, vel, false)

	r, err := o.Score(context.Background(), txn, fv, vel)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if r.VelocityRisk != 0.8 {
		t.Errorf("VelocityRisk = %f, want 0.8", r.VelocityRisk)
	}
	if r.Combined != 1.0 {
		t.Errorf("Combined = %f, want capped at 1.0", r.Combined)
	}
}

func TestOrchestrator_CombinedAdds(t *testing.T) {
	o, _ := NewOrchestrator(&StaticModel{ModelName: "champ", Probability: 0.1}, nil)

	txn := testTxn()
	vel := velocity.Features{Count1h: 5}
	fv := BuildFeatures(txn, vel, false)

	r, err := o.Score(context.Background(), txn, fv, vel)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if diff := r.Combined - 0.3; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Combined = %f, want 0.3", r.Combined)
	}
}

func TestOrchestrator_ChampionFailureIsFatal(t *testing.T) {
	o, _ := NewOrchestrator(&StaticModel{ModelName: "champ", Err: errors.New("model offline")}, nil)

	txn := testTxn()
	fv := BuildFeatures(txn, velocity.Features{}, false)

	_, err := o.Score(context.Background(), txn, fv, velocity.Features{})
	if !errors.Is(err, ErrChampionUnavailable) {
		t.Fatalf("expected ErrChampionUnavailable, got %v", err)
	}
}

func TestOrchestrator_ChallengerShadow(t *testing.T) {
	o, _ := NewOrchestrator(
		&StaticModel{ModelName: "champ", Probability: 0.2},
		&StaticModel{ModelName: "shadow", Probability: 0.9},
	)

	txn := testTxn()
	fv := BuildFeatures(txn, velocity.Features{}, false)

	r, err := o.Score(context.Background(), txn, fv, velocity.Features{})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if r.Challenger == nil || *r.Challenger != 0.9 {
		t.Fatalf("expected challenger probability 0.9, got %v", r.Challenger)
	}
	// Shadow output never feeds the combined probability.
	if diff := r.Combined - 0.2; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Combined = %f, want 0.2 (champion only)", r.Combined)
	}
}

func TestOrchestrator_ChallengerFailureDegrades(t *testing.T) {
	o, _ := NewOrchestrator(
		&StaticModel{ModelName: "champ", Probability: 0.2},
		&StaticModel{ModelName: "shadow", Err: errors.New("shadow offline")},
	)

	txn := testTxn()
	fv := BuildFeatures(txn, velocity.Features{}, false)

	r, err := o.Score(context.Background(), txn, fv, velocity.Features{})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if r.Challenger != nil {
		t.Errorf("expected nil challenger probability, got %v", *r.Challenger)
	}
}

func TestOrchestrator_RequiresChampion(t *testing.T) {
	if _, err := NewOrchestrator(nil, nil); !errors.Is(err, ErrChampionUnavailable) {
		t.Fatalf("expected ErrChampionUnavailable, got %v", err)
	}
}

func TestBuildFeatures(t *testing.T) {
	txn := testTxn()
	vel := velocity.Features{Count1h: 2, Count24h: 7, AvgAmount7d: 120}

	fv := BuildFeatures(txn, vel, true)
	if fv.HourOfDay != 9 {
		t.Errorf("HourOfDay = %d, want 9", fv.HourOfDay)
	}
	if fv.DayOfWeek != int(time.Saturday) {
		t.Errorf("DayOfWeek = %d, want %d", fv.DayOfWeek, int(time.Saturday))
	}
	if fv.Count24h != 7 || fv.AvgAmount7d != 120 {
		t.Errorf("velocity features not carried: %+v", fv)
	}
	if !fv.ReceiverIsNew {
		t.Error("expected ReceiverIsNew to be set")
	}
}
