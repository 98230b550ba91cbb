package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nmehta6/riskgate/internal/audit"
	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/feedback"
	"github.com/nmehta6/riskgate/internal/idgen"
	"github.com/nmehta6/riskgate/internal/logging"
	"github.com/nmehta6/riskgate/internal/metrics"
	"github.com/nmehta6/riskgate/internal/riskprofile"
)

// enqueueTransaction handles POST /v1/transactions: validate and queue one
// event for the pipeline. The decision is made asynchronously.
func (s *Server) enqueueTransaction(c *gin.Context) {
	ctx := c.Request.Context()

	var txn event.Transaction
	if err := c.ShouldBindJSON(&txn); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if txn.Timestamp.IsZero() {
		txn.Timestamp = time.Now().UTC()
	}

	if err := txn.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_event",
			"message": err.Error(),
		})
		return
	}

	if err := s.queue.Enqueue(ctx, &txn); err != nil {
		logging.L(ctx).Error("failed to enqueue event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to queue transaction",
		})
		return
	}

	if depth, err := s.queue.Depth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":         "queued",
		"transaction_id": txn.TransactionID,
	})
}

// getDecision handles GET /v1/decisions/:txn_id.
func (s *Server) getDecision(c *gin.Context) {
	rec, err := s.auditLog.GetByTxnID(c.Request.Context(), c.Param("txn_id"))
	if errors.Is(err, audit.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No decision for this transaction id",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to read decision", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read decision",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// listDecisions handles GET /v1/decisions?limit=n (newest first, default 50).
func (s *Server) listDecisions(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	recs, err := s.auditLog.Recent(c.Request.Context(), limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to list decisions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list decisions",
		})
		return
	}

	if recs == nil {
		recs = []*decision.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
}

// getProfile handles GET /v1/profiles/:payer.
func (s *Server) getProfile(c *gin.Context) {
	p, err := s.profiles.Get(c.Request.Context(), c.Param("payer"))
	if errors.Is(err, riskprofile.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No risk profile for this payer",
		})
		return
	}
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to read profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read profile",
		})
		return
	}

	c.JSON(http.StatusOK, p)
}

// getGlobalThresholds handles GET /v1/thresholds.
func (s *Server) getGlobalThresholds(c *gin.Context) {
	th, err := s.global.Get(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("failed to read global thresholds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read thresholds",
		})
		return
	}

	c.JSON(http.StatusOK, th)
}

// ingestFeedback handles POST /v1/feedback: a confirmed outcome for a past
// decision. The drift controller consumes these on its own schedule.
func (s *Server) ingestFeedback(c *gin.Context) {
	ctx := c.Request.Context()

	var req struct {
		TransactionID string `json:"transaction_id" binding:"required"`
		Actual        string `json:"actual" binding:"required"`
		Source        string `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "transaction_id and actual are required",
		})
		return
	}

	label := feedback.Label(req.Actual)
	if !label.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_label",
			"message": "actual must be FRAUD or GENUINE",
		})
		return
	}

	// The decision must exist: feedback corrects a decision, it cannot
	// precede one.
	rec, err := s.auditLog.GetByTxnID(ctx, req.TransactionID)
	if errors.Is(err, audit.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No decision for this transaction id",
		})
		return
	}
	if err != nil {
		logging.L(ctx).Error("failed to read decision for feedback", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read decision",
		})
		return
	}

	source := req.Source
	if source == "" {
		source = feedback.SourceManual
	}

	fb := &feedback.Record{
		ID:            idgen.WithPrefix("fb_"),
		TransactionID: rec.TransactionID,
		Payer:         rec.Payer,
		Decision:      rec.Decision,
		Actual:        label,
		Source:        source,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.feedback.Add(ctx, fb); err != nil {
		logging.L(ctx).Error("failed to store feedback", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to store feedback",
		})
		return
	}

	metrics.FeedbackRecordsTotal.WithLabelValues(source).Inc()

	c.JSON(http.StatusAccepted, gin.H{
		"status":      "recorded",
		"feedback_id": fb.ID,
	})
}

// stripeWebhook handles POST /v1/webhooks/stripe: card dispute lifecycle
// events translated into feedback records.
func (s *Server) stripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Failed to read request body",
		})
		return
	}

	rec, err := s.stripe.Parse(payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, feedback.ErrIgnoredEvent) {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}
	if err != nil {
		logging.L(ctx).Warn("rejected stripe webhook", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_webhook",
			"message": "Signature verification or payload decoding failed",
		})
		return
	}

	if err := s.feedback.Add(ctx, rec); err != nil {
		logging.L(ctx).Error("failed to store stripe feedback", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to store feedback",
		})
		return
	}

	metrics.FeedbackRecordsTotal.WithLabelValues(feedback.SourceStripe).Inc()

	c.JSON(http.StatusOK, gin.H{"status": "recorded", "feedback_id": rec.ID})
}

// -----------------------------------------------------------------------------
// Health & info
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	if s.worker.Running() {
		checks["pipeline"] = "healthy"
	} else {
		checks["pipeline"] = "stopped"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "riskgate",
		"description": "Real-time transaction fraud risk decision engine",
		"version":     "0.1.0",
		"domain":      s.domain,
		"champion":    s.scorer.ChampionName(),
		"challenger":  s.scorer.ChallengerName(),
	})
}
