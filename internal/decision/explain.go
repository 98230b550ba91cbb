package decision

import (
	"fmt"

	"github.com/nmehta6/riskgate/internal/velocity"
)

// Explanation thresholds. Each rule triggers independently and in this
// fixed order; the output is advisory audit metadata and never feeds back
// into the decision.
const (
	highProbability     = 0.8
	moderateProbability = 0.6
	amountSpikeRisk     = 0.3
)

// FallbackExplanation is emitted when no rule fires.
const FallbackExplanation = "Transaction behavior within normal limits"

// Explain converts the numeric signals behind a decision into an ordered
// list of human-readable reasons.
func Explain(championProb float64, vel velocity.Features, velocityRisk float64, g GraphSignals) []string {
	var reasons []string

	if championProb >= highProbability {
		reasons = append(reasons, fmt.Sprintf("High ML fraud probability (%.2f)", championProb))
	} else if championProb >= moderateProbability {
		reasons = append(reasons, fmt.Sprintf("Moderate ML fraud probability (%.2f)", championProb))
	}

	if vel.Count1h >= 5 {
		reasons = append(reasons, fmt.Sprintf("%d transactions in last 1 hour", vel.Count1h))
	}

	if vel.Count24h >= 20 {
		reasons = append(reasons, fmt.Sprintf("%d transactions in last 24 hours", vel.Count24h))
	}

	if vel.AvgAmount7d > 0 && velocityRisk >= amountSpikeRisk {
		reasons = append(reasons, "Transaction amount significantly higher than normal")
	}

	if g.UniquePayees >= MulePayeeFanOut {
		reasons = append(reasons, fmt.Sprintf("Payer connected to %d unique payees", g.UniquePayees))
	}

	if g.UniquePayers >= ScamPayerFanIn {
		reasons = append(reasons, fmt.Sprintf("Payee receiving money from many unique payers (%d)", g.UniquePayers))
	}

	if g.EdgeCount >= RepeatedEdgeCount {
		reasons = append(reasons, "Repeated transactions to same payee detected")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, FallbackExplanation)
	}

	return reasons
}
