package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmehta6/riskgate/internal/metrics"
	"github.com/nmehta6/riskgate/internal/riskprofile"
	"github.com/nmehta6/riskgate/internal/thresholds"
)

// Drift trip rates over one evaluation window.
const (
	MissedFraudRateLimit   = 0.08
	FalsePositiveRateLimit = 0.10
)

// DefaultWindowSize and MinWindowSize bound one controller evaluation.
const (
	DefaultWindowSize = 100
	MinWindowSize     = 10
)

// Controller is the drift controller. Each run consumes a window of
// unprocessed feedback, moves the global thresholds when the misclassification
// rate trips a limit, and nudges the scores of misclassified payers.
type Controller struct {
	store      Store
	global     thresholds.Store
	profiles   riskprofile.Store
	logger     *slog.Logger
	windowSize int
	minWindow  int
}

// NewController creates a drift controller. windowSize falls back to
// DefaultWindowSize when zero.
func NewController(store Store, global thresholds.Store, profiles riskprofile.Store, windowSize int, logger *slog.Logger) *Controller {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Controller{
		store:      store,
		global:     global,
		profiles:   profiles,
		logger:     logger,
		windowSize: windowSize,
		minWindow:  MinWindowSize,
	}
}

// RunResult summarizes one controller evaluation.
type RunResult struct {
	Evaluated      int     `json:"evaluated"`
	Skipped        bool    `json:"skipped"`
	MissedFraud    int     `json:"missed_fraud"`
	FalsePositives int     `json:"false_positives"`
	MissedRate     float64 `json:"missed_rate"`
	FalseRate      float64 `json:"false_rate"`
	Adjustment     string  `json:"adjustment,omitempty"` // "tighten" or "relax"
}

// Run performs one evaluation. Windows smaller than the minimum are left
// unprocessed so labels accumulate for the next run.
func (c *Controller) Run(ctx context.Context) (*RunResult, error) {
	recs, err := c.store.Unprocessed(ctx, c.windowSize)
	if err != nil {
		return nil, fmt.Errorf("read feedback window: %w", err)
	}

	res := &RunResult{Evaluated: len(recs)}
	if len(recs) < c.minWindow {
		res.Skipped = true
		return res, nil
	}

	now := time.Now().UTC()
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)

		switch {
		case r.MissedFraud():
			res.MissedFraud++
			if _, err := c.profiles.AdjustScore(ctx, r.Payer, MissedFraudDelta, now); err != nil {
				return nil, fmt.Errorf("nudge payer %s: %w", r.Payer, err)
			}
		case r.FalsePositive():
			res.FalsePositives++
			if _, err := c.profiles.AdjustScore(ctx, r.Payer, FalsePositiveDelta, now); err != nil {
				return nil, fmt.Errorf("nudge payer %s: %w", r.Payer, err)
			}
		}
	}

	res.MissedRate = float64(res.MissedFraud) / float64(len(recs))
	res.FalseRate = float64(res.FalsePositives) / float64(len(recs))

	// Missed fraud dominates: when both rates trip, tighten.
	switch {
	case res.MissedRate > MissedFraudRateLimit:
		th, changed, err := c.global.Tighten(ctx)
		if err != nil {
			return nil, fmt.Errorf("tighten global thresholds: %w", err)
		}
		if changed {
			res.Adjustment = "tighten"
			metrics.ThresholdAdjustmentsTotal.WithLabelValues("tighten").Inc()
			c.logger.Warn("drift detected, tightening global thresholds",
				"missed_rate", res.MissedRate, "block", th.Block, "step_up", th.StepUp)
		}
	case res.FalseRate > FalsePositiveRateLimit:
		th, changed, err := c.global.Relax(ctx)
		if err != nil {
			return nil, fmt.Errorf("relax global thresholds: %w", err)
		}
		if changed {
			res.Adjustment = "relax"
			metrics.ThresholdAdjustmentsTotal.WithLabelValues("relax").Inc()
			c.logger.Info("excess friction, relaxing global thresholds",
				"false_rate", res.FalseRate, "block", th.Block, "step_up", th.StepUp)
		}
	}

	if err := c.store.MarkProcessed(ctx, ids); err != nil {
		return nil, fmt.Errorf("mark feedback processed: %w", err)
	}
	return res, nil
}
