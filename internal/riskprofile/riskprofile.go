// Package riskprofile maintains the adaptive per-payer risk profile: a
// bounded risk score updated after every decision, and the personalized
// probability thresholds derived from it.
package riskprofile

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/event"
)

// ErrNotFound is returned when a payer has no profile yet.
var ErrNotFound = errors.New("risk profile not found")

// Score bounds and per-decision deltas.
const (
	MinScore = 0
	MaxScore = 100

	DefaultScore = 20

	BlockDelta  = 15
	StepUpDelta = 5
	AllowDelta  = -2
)

// Threshold derivation slopes. Higher accumulated risk lowers both
// thresholds, making the payer easier to challenge or block.
const (
	blockSlope  = 300
	stepUpSlope = 500
)

// Params are the domain-specific threshold parameters. Card rails carry a
// higher step-up base because card transactions see more benign retries.
type Params struct {
	BlockBase   float64
	BlockFloor  float64
	StepUpBase  float64
	StepUpFloor float64
}

var (
	upiParams  = Params{BlockBase: 0.85, BlockFloor: 0.60, StepUpBase: 0.35, StepUpFloor: 0.20}
	cardParams = Params{BlockBase: 0.85, BlockFloor: 0.60, StepUpBase: 0.45, StepUpFloor: 0.25}
)

// ParamsFor returns the threshold parameters for a payment domain.
func ParamsFor(d event.Domain) Params {
	if d == event.DomainCard {
		return cardParams
	}
	return upiParams
}

// ThresholdsFor derives the live thresholds from an accumulated risk score.
func (p Params) ThresholdsFor(score int) decision.Thresholds {
	return decision.Thresholds{
		Block:  math.Max(p.BlockFloor, p.BlockBase-float64(score)/blockSlope),
		StepUp: math.Max(p.StepUpFloor, p.StepUpBase-float64(score)/stepUpSlope),
	}
}

// Profile is one payer's adaptive risk state.
type Profile struct {
	Payer       string              `json:"payer_vpa"`
	RiskScore   int                 `json:"risk_score"`
	Thresholds  decision.Thresholds `json:"thresholds"`
	AllowCount  int64               `json:"allow_count"`
	StepUpCount int64               `json:"step_up_count"`
	BlockCount  int64               `json:"block_count"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Store persists payer profiles. Implementations must apply updates
// atomically per payer; the pipeline additionally serializes all work for a
// payer, so stores never see concurrent updates for the same key.
type Store interface {
	// GetThresholds returns the payer's live thresholds, creating a default
	// profile if none exists. The boolean reports whether the profile
	// already existed; callers fall back to the global thresholds when it
	// did not.
	GetThresholds(ctx context.Context, payer string) (decision.Thresholds, bool, error)

	// ApplyDecision folds a decision outcome into the profile: the score
	// moves by the outcome's delta, clamps to [MinScore, MaxScore], and the
	// thresholds are recomputed.
	ApplyDecision(ctx context.Context, payer string, outcome decision.Outcome, at time.Time) (*Profile, error)

	// AdjustScore applies a feedback nudge to the score and recomputes the
	// thresholds. The profile is created at the default score first if the
	// payer is unknown.
	AdjustScore(ctx context.Context, payer string, delta int, at time.Time) (*Profile, error)

	// Get returns the payer's profile, or ErrNotFound.
	Get(ctx context.Context, payer string) (*Profile, error)
}

// DeltaFor maps a decision outcome to its score delta.
func DeltaFor(o decision.Outcome) int {
	switch o {
	case decision.Block:
		return BlockDelta
	case decision.StepUp:
		return StepUpDelta
	default:
		return AllowDelta
	}
}

func clampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}
