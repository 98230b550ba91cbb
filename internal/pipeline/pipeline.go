// Package pipeline runs one transaction event through the full decision
// sequence: idempotency gate, velocity read, scoring, graph update, live
// thresholds, decision, explanation, audit, profile update.
//
// All work for one payer is serialized through a keyed mutex, so the
// read-score-write sequence never interleaves for a payer. The audit append
// is the commit point and marking the transaction processed is the final
// durable step: a crash before the append lets redelivery recompute the
// decision from scratch, while a crash after it makes redelivery reuse the
// stored record and redo only the gate write, so profile and velocity
// effects apply exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nmehta6/riskgate/internal/audit"
	"github.com/nmehta6/riskgate/internal/decision"
	"github.com/nmehta6/riskgate/internal/event"
	"github.com/nmehta6/riskgate/internal/graph"
	"github.com/nmehta6/riskgate/internal/idempotency"
	"github.com/nmehta6/riskgate/internal/logging"
	"github.com/nmehta6/riskgate/internal/metrics"
	"github.com/nmehta6/riskgate/internal/riskprofile"
	"github.com/nmehta6/riskgate/internal/scoring"
	"github.com/nmehta6/riskgate/internal/syncutil"
	"github.com/nmehta6/riskgate/internal/thresholds"
	"github.com/nmehta6/riskgate/internal/traces"
	"github.com/nmehta6/riskgate/internal/velocity"
)

// ErrDuplicate marks an event whose transaction id already produced a
// decision. Duplicates are acknowledged, never reprocessed.
var ErrDuplicate = errors.New("duplicate transaction event")

// Feed receives each decision as it is made. Implementations must not block.
type Feed interface {
	BroadcastDecision(rec *decision.Record)
}

// Source label written to the idempotency gate.
const sourceQueue = "queue"

// Pipeline decides transactions.
type Pipeline struct {
	gate     idempotency.Store
	velocity velocity.Store
	graph    graph.Store
	scorer   *scoring.Orchestrator
	profiles riskprofile.Store
	global   thresholds.Store
	audit    audit.Store
	feed     Feed // optional
	locks    *syncutil.KeyedMutex
	logger   *slog.Logger
}

// Config collects the pipeline's dependencies. Feed may be nil.
type Config struct {
	Gate     idempotency.Store
	Velocity velocity.Store
	Graph    graph.Store
	Scorer   *scoring.Orchestrator
	Profiles riskprofile.Store
	Global   thresholds.Store
	Audit    audit.Store
	Feed     Feed
	Logger   *slog.Logger
}

// New creates a decision pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		gate:     cfg.Gate,
		velocity: cfg.Velocity,
		graph:    cfg.Graph,
		scorer:   cfg.Scorer,
		profiles: cfg.Profiles,
		global:   cfg.Global,
		audit:    cfg.Audit,
		feed:     cfg.Feed,
		locks:    syncutil.NewKeyedMutex(),
		logger:   cfg.Logger,
	}
}

// Process runs one event through the pipeline and returns the decision
// record. Returns ErrDuplicate for already-processed transaction ids and
// event.ErrInvalidEvent for malformed events; both are terminal for the
// event, not for the batch.
func (p *Pipeline) Process(ctx context.Context, txn *event.Transaction) (*decision.Record, error) {
	if err := txn.Validate(); err != nil {
		return nil, err
	}

	ctx = logging.WithTxnID(ctx, txn.TransactionID)
	ctx, span := traces.StartSpan(ctx, "pipeline.process",
		traces.TxnID(txn.TransactionID),
		traces.Payer(txn.Payer),
		traces.Payee(txn.Payee),
		traces.Amount(txn.Amount))
	defer span.End()

	started := time.Now()

	unlock, err := p.locks.Lock(ctx, txn.Payer)
	if err != nil {
		return nil, fmt.Errorf("acquire payer lock: %w", err)
	}
	defer unlock()

	// Gate first: a duplicate must observe no state change at all.
	processed, err := p.gate.IsProcessed(ctx, txn.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		return nil, ErrDuplicate
	}

	// An unprocessed transaction with a logged decision means the previous
	// delivery crashed between the audit append and MarkProcessed. Its side
	// effects are already applied; finish the gate write and return the
	// stored record instead of recomputing.
	prior, err := p.audit.GetByTxnID(ctx, txn.TransactionID)
	switch {
	case err == nil:
		if err := p.gate.MarkProcessed(ctx, txn.TransactionID, string(prior.Decision), sourceQueue); err != nil &&
			!errors.Is(err, idempotency.ErrAlreadyProcessed) {
			return nil, fmt.Errorf("mark processed: %w", err)
		}
		logging.L(ctx).Info("recovered decision on redelivery", "decision", prior.Decision)
		return prior, nil
	case !errors.Is(err, audit.ErrNotFound):
		return nil, fmt.Errorf("audit lookup: %w", err)
	}

	// Velocity features exclude the current transaction: its own record is
	// appended only after the decision.
	vel, err := p.velocity.Features(ctx, txn.Payer, txn.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("velocity features: %w", err)
	}

	// Receiver novelty is judged before the edge upsert.
	priorEdge, err := p.graph.EdgeStats(ctx, txn.Payer, txn.Payee)
	if err != nil {
		return nil, fmt.Errorf("graph edge read: %w", err)
	}

	fv := scoring.BuildFeatures(txn, vel, priorEdge == nil)
	score, err := p.scorer.Score(ctx, txn, fv, vel)
	if err != nil {
		return nil, fmt.Errorf("score transaction: %w", err)
	}

	// The graph write precedes the graph reads so the current transaction
	// counts toward its own edge.
	if err := p.graph.RecordTransaction(ctx, txn.Payer, txn.Payee, txn.Amount, txn.Timestamp); err != nil {
		return nil, fmt.Errorf("graph edge upsert: %w", err)
	}

	signals, err := p.graphSignals(ctx, txn)
	if err != nil {
		return nil, err
	}

	th, err := p.liveThresholds(ctx, txn.Payer)
	if err != nil {
		return nil, err
	}

	override := decision.DetectOverride(signals)
	outcome := decision.Evaluate(override, score.Combined, th)
	reasons := decision.Explain(score.Champion, vel, score.VelocityRisk, signals)

	rec := &decision.Record{
		TransactionID:  txn.TransactionID,
		Payer:          txn.Payer,
		Payee:          txn.Payee,
		Amount:         txn.Amount,
		Decision:       outcome,
		ChampionProb:   score.Champion,
		ChallengerProb: score.Challenger,
		VelocityRisk:   score.VelocityRisk,
		CombinedProb:   score.Combined,
		GraphOverride:  override,
		Explanations:   reasons,
		EventAt:        txn.Timestamp,
		DecidedAt:      time.Now().UTC(),
	}

	if err := p.audit.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit append: %w", err)
	}

	if _, err := p.profiles.ApplyDecision(ctx, txn.Payer, outcome, rec.DecidedAt); err != nil {
		return nil, fmt.Errorf("profile update: %w", err)
	}

	if err := p.velocity.Record(ctx, txn.Payer, txn.Amount, txn.Timestamp); err != nil {
		return nil, fmt.Errorf("velocity append: %w", err)
	}

	// Final durable step. Everything before this is safe to redo.
	if err := p.gate.MarkProcessed(ctx, txn.TransactionID, string(outcome), sourceQueue); err != nil &&
		!errors.Is(err, idempotency.ErrAlreadyProcessed) {
		return nil, fmt.Errorf("mark processed: %w", err)
	}

	span.SetAttributes(traces.DecisionLabel(string(outcome)))
	metrics.DecisionsTotal.WithLabelValues(string(outcome)).Inc()
	if override != decision.OverrideNone {
		metrics.GraphOverridesTotal.WithLabelValues(string(override)).Inc()
	}
	metrics.PipelineDuration.Observe(time.Since(started).Seconds())

	if p.feed != nil {
		p.feed.BroadcastDecision(rec)
	}

	logging.L(ctx).Info("transaction decided",
		"decision", outcome,
		"combined", score.Combined,
		"override", override,
		"duration_ms", time.Since(started).Milliseconds())

	return rec, nil
}

func (p *Pipeline) graphSignals(ctx context.Context, txn *event.Transaction) (decision.GraphSignals, error) {
	payees, err := p.graph.UniquePayees(ctx, txn.Payer)
	if err != nil {
		return decision.GraphSignals{}, fmt.Errorf("graph unique payees: %w", err)
	}
	payers, err := p.graph.UniquePayers(ctx, txn.Payee)
	if err != nil {
		return decision.GraphSignals{}, fmt.Errorf("graph unique payers: %w", err)
	}
	edge, err := p.graph.EdgeStats(ctx, txn.Payer, txn.Payee)
	if err != nil {
		return decision.GraphSignals{}, fmt.Errorf("graph edge stats: %w", err)
	}

	signals := decision.GraphSignals{UniquePayees: payees, UniquePayers: payers}
	if edge != nil {
		signals.EdgeCount = edge.Count
	}
	return signals, nil
}

// liveThresholds returns the payer's adaptive thresholds, or the global pair
// on the payer's very first transaction (the default profile is created in
// the same step and governs every later decision).
func (p *Pipeline) liveThresholds(ctx context.Context, payer string) (decision.Thresholds, error) {
	th, existed, err := p.profiles.GetThresholds(ctx, payer)
	if err != nil {
		return decision.Thresholds{}, fmt.Errorf("profile thresholds: %w", err)
	}
	if existed {
		return th, nil
	}

	global, err := p.global.Get(ctx)
	if err != nil {
		return decision.Thresholds{}, fmt.Errorf("global thresholds: %w", err)
	}
	return global, nil
}
