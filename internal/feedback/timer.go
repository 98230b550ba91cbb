package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically runs the drift controller.
type Timer struct {
	controller *Controller
	interval   time.Duration
	logger     *slog.Logger
	stop       chan struct{}
	running    atomic.Bool
}

// NewTimer creates a feedback evaluation timer.
func NewTimer(controller *Controller, interval time.Duration, logger *slog.Logger) *Timer {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Timer{
		controller: controller,
		interval:   interval,
		logger:     logger,
		stop:       make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the periodic evaluation loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeRun(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in feedback timer", "panic", fmt.Sprint(r))
		}
	}()

	res, err := t.controller.Run(ctx)
	if err != nil {
		t.logger.Warn("feedback evaluation failed", "error", err)
		return
	}
	if !res.Skipped {
		t.logger.Info("feedback window evaluated",
			"evaluated", res.Evaluated,
			"missed_fraud", res.MissedFraud,
			"false_positives", res.FalsePositives,
			"adjustment", res.Adjustment)
	}
}
