package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/nmehta6/riskgate/internal/decision"
)

// PostgresStore persists decision records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit log.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the decisions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			transaction_id    VARCHAR(128) PRIMARY KEY,
			payer_vpa         VARCHAR(128) NOT NULL,
			payee_vpa         VARCHAR(128) NOT NULL,
			amount            NUMERIC(20,2) NOT NULL,
			decision          VARCHAR(16) NOT NULL,
			champion_prob     DOUBLE PRECISION NOT NULL,
			challenger_prob   DOUBLE PRECISION,
			velocity_risk     DOUBLE PRECISION NOT NULL,
			combined_prob     DOUBLE PRECISION NOT NULL,
			graph_override    VARCHAR(32) NOT NULL DEFAULT '',
			explanations      TEXT[] NOT NULL,
			event_at          TIMESTAMPTZ NOT NULL,
			decided_at        TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_decisions_decided_at
			ON decisions (decided_at DESC);
	`)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, rec *decision.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(transaction_id, payer_vpa, payee_vpa, amount, decision,
			 champion_prob, challenger_prob, velocity_risk, combined_prob,
			 graph_override, explanations, event_at, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (transaction_id) DO NOTHING
	`, rec.TransactionID, rec.Payer, rec.Payee, rec.Amount, rec.Decision,
		rec.ChampionProb, rec.ChallengerProb, rec.VelocityRisk, rec.CombinedProb,
		rec.GraphOverride, pq.Array(rec.Explanations), rec.EventAt, rec.DecidedAt); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByTxnID(ctx context.Context, txnID string) (*decision.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT transaction_id, payer_vpa, payee_vpa, amount, decision,
		       champion_prob, challenger_prob, velocity_risk, combined_prob,
		       graph_override, explanations, event_at, decided_at
		FROM decisions
		WHERE transaction_id = $1
	`, txnID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Recent(ctx context.Context, n int) ([]*decision.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, payer_vpa, payee_vpa, amount, decision,
		       champion_prob, challenger_prob, velocity_risk, combined_prob,
		       graph_override, explanations, event_at, decided_at
		FROM decisions
		ORDER BY decided_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []*decision.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*decision.Record, error) {
	var rec decision.Record
	var challenger sql.NullFloat64

	err := row.Scan(&rec.TransactionID, &rec.Payer, &rec.Payee, &rec.Amount,
		&rec.Decision, &rec.ChampionProb, &challenger, &rec.VelocityRisk,
		&rec.CombinedProb, &rec.GraphOverride, pq.Array(&rec.Explanations),
		&rec.EventAt, &rec.DecidedAt)
	if err != nil {
		return nil, err
	}

	if challenger.Valid {
		rec.ChallengerProb = &challenger.Float64
	}
	return &rec, nil
}
