// Package decision implements the terminal decision state machine, the
// graph override rules, and the explanation generator.
package decision

import (
	"fmt"
	"time"
)

// Outcome is the closed set of risk decisions. A decision is terminal per
// transaction; there are no further transitions.
type Outcome string

const (
	Allow  Outcome = "ALLOW"
	StepUp Outcome = "STEP_UP_AUTH"
	Block  Outcome = "BLOCK"
)

// Valid reports whether o is one of the three decision labels.
func (o Outcome) Valid() bool {
	switch o {
	case Allow, StepUp, Block:
		return true
	}
	return false
}

// Override identifies a relationship-graph pattern that forces a BLOCK
// regardless of probability.
type Override string

const (
	// OverrideNone means no graph pattern fired.
	OverrideNone Override = ""
	// OverridePayerMule fires when a payer fans out to too many payees.
	OverridePayerMule Override = "PAYER_MULE_PATTERN"
	// OverrideScamMerchant fires when a payee collects from too many payers.
	OverrideScamMerchant Override = "SCAM_MERCHANT_PATTERN"
	// OverrideRepeatedEdge fires on excessive repetition of one edge.
	OverrideRepeatedEdge Override = "REPEATED_EDGE_ABUSE"
)

// Graph override thresholds.
const (
	MulePayeeFanOut   = 6
	ScamPayerFanIn    = 20
	RepeatedEdgeCount = 4
)

// GraphSignals are the relationship features read for one decision.
type GraphSignals struct {
	UniquePayees int   `json:"payer_unique_payees"`
	UniquePayers int   `json:"payee_unique_payers"`
	EdgeCount    int64 `json:"edge_count"`
}

// DetectOverride evaluates the graph override rules in precedence order.
func DetectOverride(g GraphSignals) Override {
	switch {
	case g.UniquePayees >= MulePayeeFanOut:
		return OverridePayerMule
	case g.UniquePayers >= ScamPayerFanIn:
		return OverrideScamMerchant
	case g.EdgeCount >= RepeatedEdgeCount:
		return OverrideRepeatedEdge
	default:
		return OverrideNone
	}
}

// Thresholds are the live probability cutoffs for one evaluation. They come
// from the payer's adaptive profile, or from the global configuration when
// the payer has no profile yet.
type Thresholds struct {
	Block  float64 `json:"block"`
	StepUp float64 `json:"step_up"`
}

// Evaluate maps (graph override, combined probability, live thresholds) to a
// final decision. Boundary values equal to a threshold trigger it.
func Evaluate(override Override, combined float64, th Thresholds) Outcome {
	switch {
	case override != OverrideNone:
		return Block
	case combined >= th.Block:
		return Block
	case combined >= th.StepUp:
		return StepUp
	default:
		return Allow
	}
}

// Record is the immutable audit output of one decided transaction.
type Record struct {
	TransactionID  string    `json:"transaction_id"`
	Payer          string    `json:"payer_vpa"`
	Payee          string    `json:"payee_vpa"`
	Amount         float64   `json:"amount"`
	Decision       Outcome   `json:"decision"`
	ChampionProb   float64   `json:"champion_probability"`
	ChallengerProb *float64  `json:"challenger_probability,omitempty"`
	VelocityRisk   float64   `json:"velocity_risk"`
	CombinedProb   float64   `json:"final_probability"`
	GraphOverride  Override  `json:"graph_override,omitempty"`
	Explanations   []string  `json:"explanations"`
	EventAt        time.Time `json:"event_at"`
	DecidedAt      time.Time `json:"decided_at"`
}

// Validate checks record integrity before the audit append.
func (r *Record) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("decision record: missing transaction id")
	}
	if !r.Decision.Valid() {
		return fmt.Errorf("decision record: invalid decision %q", r.Decision)
	}
	return nil
}
