// Package thresholds manages the global decision thresholds used for payers
// without an adaptive profile. The drift controller moves them in fixed
// steps inside hard bounds.
package thresholds

import (
	"context"

	"github.com/nmehta6/riskgate/internal/decision"
)

// Default global thresholds and the bounds the drift controller operates in.
const (
	DefaultBlock  = 0.85
	DefaultStepUp = 0.45

	Step = 0.05

	BlockFloor  = 0.60
	StepUpFloor = 0.30
	BlockCap    = 0.95
	StepUpCap   = 0.70
)

// Store holds the single global threshold pair.
type Store interface {
	// Get returns the current global thresholds.
	Get(ctx context.Context) (decision.Thresholds, error)

	// Tighten lowers both thresholds by one step, bounded at the floors.
	// It returns the resulting thresholds and whether anything changed.
	Tighten(ctx context.Context) (decision.Thresholds, bool, error)

	// Relax raises both thresholds by one step, bounded at the caps.
	// It returns the resulting thresholds and whether anything changed.
	Relax(ctx context.Context) (decision.Thresholds, bool, error)
}

func tighten(th decision.Thresholds) decision.Thresholds {
	th.Block = clamp(th.Block-Step, BlockFloor, BlockCap)
	th.StepUp = clamp(th.StepUp-Step, StepUpFloor, StepUpCap)
	return th
}

func relax(th decision.Thresholds) decision.Thresholds {
	th.Block = clamp(th.Block+Step, BlockFloor, BlockCap)
	th.StepUp = clamp(th.StepUp+Step, StepUpFloor, StepUpCap)
	return th
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
