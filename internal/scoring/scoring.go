// Package scoring orchestrates the champion and challenger fraud models and
// the velocity-derived risk addend.
//
// The champion model is authoritative: its probability participates in the
// decision. The challenger is scored in shadow for later comparison and never
// influences the outcome.
package scoring

import (
	"context"
	"errors"
	"time"

	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/velocity"
)

// ErrChampionUnavailable is returned when the authoritative model cannot
// score a transaction. No decision is made without a champion probability.
var ErrChampionUnavailable = errors.New("champion model unavailable")

// FeatureVector is the enriched input to both models. One struct per
// deployment domain keeps the model inputs compile-time checked.
type FeatureVector struct {
	Amount         float64
	HourOfDay      int
	DayOfWeek      int
	Count1h        int
	Count24h       int
	AvgAmount7d    float64
	DeviceChange   bool
	LocationChange bool
	FailedAttempts int
	ReceiverIsNew  bool
}

// BuildFeatures assembles the feature vector for one transaction from the
// raw event and its velocity aggregates.
func BuildFeatures(txn *event.Transaction, vel velocity.Features, receiverIsNew bool) *FeatureVector {
	ts := txn.Timestamp.UTC()
	return &FeatureVector{
		Amount:         txn.Amount,
		HourOfDay:      ts.Hour(),
		DayOfWeek:      int(ts.Weekday()),
		Count1h:        vel.Count1h,
		Count24h:       vel.Count24h,
		AvgAmount7d:    vel.AvgAmount7d,
		DeviceChange:   txn.DeviceChange,
		LocationChange: txn.LocationChange,
		ReceiverIsNew:  receiverIsNew,
	}
}

// Model is a stateless scoring capability: probability of fraud in [0,1].
// Implementations must be safe to call concurrently for different
// transactions.
type Model interface {
	Name() string
	Score(ctx context.Context, fv *FeatureVector) (float64, error)
}

// Result carries the orchestrator's outputs for one transaction.
type Result struct {
	Champion     float64  // authoritative probability
	Challenger   *float64 // shadow probability, nil when no challenger is loaded
	VelocityRisk float64  // bounded additive addend
	Combined     float64  // min(1.0, Champion + VelocityRisk)
	ScoredAt     time.Time
}

// Velocity risk thresholds.
const (
	burstCount1h     = 5
	burstCount24h    = 20
	amountSpikeRatio = 3.0

	burstRisk1h     = 0.2
	burstRisk24h    = 0.3
	amountSpikeRisk = 0.3
)

// VelocityRisk computes the bounded additive risk addend from the payer's
// velocity aggregates and the current amount.
func VelocityRisk(amount float64, vel velocity.Features) float64 {
	risk := 0.0

	if vel.Count1h >= burstCount1h {
		risk += burstRisk1h
	}
	if vel.Count24h >= burstCount24h {
		risk += burstRisk24h
	}
	if vel.AvgAmount7d > 0 && amount/vel.AvgAmount7d >= amountSpikeRatio {
		risk += amountSpikeRisk
	}

	return risk
}

// Orchestrator invokes the champion and challenger models.
type Orchestrator struct {
	champion   Model
	challenger Model // nil when the deployment runs without a shadow model
}

// NewOrchestrator creates a scoring orchestrator. champion must be non-nil;
// challenger may be nil.
func NewOrchestrator(champion, challenger Model) (*Orchestrator, error) {
	if champion == nil {
		return nil, ErrChampionUnavailable
	}
	return &Orchestrator{champion: champion, challenger: challenger}, nil
}

// ChampionName returns the champion model's name for audit records.
func (o *Orchestrator) ChampionName() string { return o.champion.Name() }

// ChallengerName returns the challenger's name, or "" when absent.
func (o *Orchestrator) ChallengerName() string {
	if o.challenger == nil {
		return ""
	}
	return o.challenger.Name()
}

// Score evaluates one transaction. A champion failure aborts the transaction;
// a challenger failure only loses the shadow datapoint.
func (o *Orchestrator) Score(ctx context.Context, txn *event.Transaction, fv *FeatureVector, vel velocity.Features) (*Result, error) {
	champion, err := o.champion.Score(ctx, fv)
	if err != nil {
		return nil, errors.Join(ErrChampionUnavailable, err)
	}

	r := &Result{
		Champion:     champion,
		VelocityRisk: VelocityRisk(txn.Amount, vel),
		ScoredAt:     time.Now(),
	}

	if o.challenger != nil {
		if p, err := o.challenger.Score(ctx, fv); err == nil {
			r.Challenger = &p
		}
	}

	r.Combined = champion + r.VelocityRisk
	if r.Combined > 1.0 {
		r.Combined = 1.0
	}

	return r, nil
}
