package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmehta6/riskgate/internal/config"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/scoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, championProb float64) *Server {
	t.Helper()

	scorer, err := scoring.NewOrchestrator(
		&scoring.StaticModel{ModelName: "test-champion", Probability: championProb},
		nil,
	)
	require.NoError(t, err)

	cfg := &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		LogFormat:          "text",
		Domain:             "upi",
		ChampionModelPath:  "unused",
		BatchSize:          config.DefaultBatchSize,
		PollInterval:       config.DefaultPollInterval,
		FeedbackInterval:   config.DefaultFeedbackInterval,
		FeedbackWindowSize: config.DefaultFeedbackWindow,
	}

	s, err := New(cfg, WithScorer(scorer))
	require.NoError(t, err)
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

// decide runs one transaction through the pipeline directly, bypassing the
// queue consumer, so read endpoints have something to return.
func decide(t *testing.T, s *Server, txnID, payer, payee string, amount float64) {
	t.Helper()
	_, err := s.pipeline.Process(context.Background(), &event.Transaction{
		TransactionID: txnID,
		Payer:         payer,
		Payee:         payee,
		Amount:        amount,
		Timestamp:     time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestEnqueueTransaction(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodPost, "/v1/transactions", event.Transaction{
		TransactionID: "txn-1",
		Payer:         "alice@upi",
		Payee:         "bob@upi",
		Amount:        250,
		Timestamp:     time.Now().UTC(),
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp["status"])
	assert.Equal(t, "txn-1", resp["transaction_id"])

	depth, err := s.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, depth)
}

func TestEnqueueTransaction_MissingTimestampDefaulted(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodPost, "/v1/transactions", map[string]any{
		"transaction_id": "txn-nt",
		"payer_vpa":      "alice@upi",
		"payee_vpa":      "bob@upi",
		"amount":         100,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestEnqueueTransaction_Invalid(t *testing.T) {
	s := newTestServer(t, 0.1)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing payer", map[string]any{
			"transaction_id": "t", "payee_vpa": "b@upi", "amount": 10,
		}},
		{"zero amount", map[string]any{
			"transaction_id": "t", "payer_vpa": "a@upi", "payee_vpa": "b@upi", "amount": 0,
		}},
		{"missing transaction id", map[string]any{
			"payer_vpa": "a@upi", "payee_vpa": "b@upi", "amount": 10,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/v1/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestEnqueueTransaction_MalformedBody(t *testing.T) {
	s := newTestServer(t, 0.1)

	req := httptest.NewRequest(http.MethodPost, "/v1/transactions",
		bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDecision(t *testing.T) {
	s := newTestServer(t, 0.1)
	decide(t, s, "txn-d1", "alice@upi", "bob@upi", 500)

	w := doJSON(t, s, http.MethodGet, "/v1/decisions/txn-d1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "txn-d1", resp["transaction_id"])
	assert.Equal(t, "ALLOW", resp["decision"])
}

func TestGetDecision_NotFound(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/v1/decisions/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListDecisions(t *testing.T) {
	s := newTestServer(t, 0.1)
	for i := 0; i < 3; i++ {
		decide(t, s, fmt.Sprintf("txn-l%d", i), "alice@upi", "bob@upi", 100)
	}

	w := doJSON(t, s, http.MethodGet, "/v1/decisions?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Decisions []map[string]any `json:"decisions"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	// Newest first
	assert.Equal(t, "txn-l2", resp.Decisions[0]["transaction_id"])
}

func TestListDecisions_Empty(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/v1/decisions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Decisions []map[string]any `json:"decisions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Decisions)
	assert.Len(t, resp.Decisions, 0)
}

func TestListDecisions_BadLimit(t *testing.T) {
	s := newTestServer(t, 0.1)

	for _, limit := range []string{"0", "-1", "1000", "abc"} {
		w := doJSON(t, s, http.MethodGet, "/v1/decisions?limit="+limit, nil)
		assert.Equalf(t, http.StatusBadRequest, w.Code, "limit=%s", limit)
	}
}

func TestGetProfile(t *testing.T) {
	s := newTestServer(t, 0.1)
	decide(t, s, "txn-p1", "alice@upi", "bob@upi", 100)

	w := doJSON(t, s, http.MethodGet, "/v1/profiles/alice@upi", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice@upi", resp["payer_vpa"])
}

func TestGetProfile_NotFound(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/v1/profiles/ghost@upi", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetGlobalThresholds(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/v1/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.InDelta(t, 0.85, resp["block"], 1e-9)
	assert.InDelta(t, 0.45, resp["step_up"], 1e-9)
}

func TestIngestFeedback(t *testing.T) {
	s := newTestServer(t, 0.1)
	decide(t, s, "txn-fb", "alice@upi", "bob@upi", 100)

	w := doJSON(t, s, http.MethodPost, "/v1/feedback", map[string]any{
		"transaction_id": "txn-fb",
		"actual":         "FRAUD",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "recorded", resp["status"])
	assert.NotEmpty(t, resp["feedback_id"])

	recs, err := s.feedback.Unprocessed(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "txn-fb", recs[0].TransactionID)
	assert.Equal(t, "alice@upi", recs[0].Payer)
}

func TestIngestFeedback_UnknownTransaction(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodPost, "/v1/feedback", map[string]any{
		"transaction_id": "never-decided",
		"actual":         "FRAUD",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestFeedback_InvalidLabel(t *testing.T) {
	s := newTestServer(t, 0.1)
	decide(t, s, "txn-bad", "alice@upi", "bob@upi", 100)

	w := doJSON(t, s, http.MethodPost, "/v1/feedback", map[string]any{
		"transaction_id": "txn-bad",
		"actual":         "MAYBE",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_DisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodPost, "/v1/webhooks/stripe", map[string]any{})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "in-memory", health.Checks["database"])

	w = doJSON(t, s, http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run() has started the background workers.
	w = doJSON(t, s, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/api", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "riskgate", resp["name"])
	assert.Equal(t, "upi", resp["domain"])
	assert.Equal(t, "test-champion", resp["champion"])
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t, 0.1)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))

	// Generated when absent
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, 0.1)

	w := doJSON(t, s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "riskgate_")
}
