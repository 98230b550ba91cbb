package riskprofile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
)

// PostgresStore persists payer profiles in PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	params Params
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB, params Params) *PostgresStore {
	return &PostgresStore{db: db, params: params}
}

// Migrate creates the risk_profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_profiles (
			payer_vpa         VARCHAR(128) PRIMARY KEY,
			risk_score        INT NOT NULL,
			block_threshold   NUMERIC(5,4) NOT NULL,
			step_up_threshold NUMERIC(5,4) NOT NULL,
			allow_count       BIGINT NOT NULL DEFAULT 0,
			step_up_count     BIGINT NOT NULL DEFAULT 0,
			block_count       BIGINT NOT NULL DEFAULT 0,
			created_at        TIMESTAMPTZ NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) GetThresholds(ctx context.Context, payer string) (decision.Thresholds, bool, error) {
	now := time.Now().UTC()
	def := s.params.ThresholdsFor(DefaultScore)

	// ON CONFLICT DO NOTHING plus xmax=0 distinguishes a fresh insert from
	// an existing row in a single round trip.
	var th decision.Thresholds
	var inserted bool
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO risk_profiles
			(payer_vpa, risk_score, block_threshold, step_up_threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (payer_vpa) DO UPDATE SET payer_vpa = EXCLUDED.payer_vpa
		RETURNING block_threshold, step_up_threshold, (xmax = 0)
	`, payer, DefaultScore, def.Block, def.StepUp, now).
		Scan(&th.Block, &th.StepUp, &inserted)
	if err != nil {
		return decision.Thresholds{}, false, fmt.Errorf("get thresholds: %w", err)
	}
	return th, !inserted, nil
}

func (s *PostgresStore) ApplyDecision(ctx context.Context, payer string, outcome decision.Outcome, at time.Time) (*Profile, error) {
	var counterCol string
	switch outcome {
	case decision.Block:
		counterCol = "block_count"
	case decision.StepUp:
		counterCol = "step_up_count"
	default:
		counterCol = "allow_count"
	}

	return s.update(ctx, payer, at, DeltaFor(outcome), counterCol)
}

func (s *PostgresStore) AdjustScore(ctx context.Context, payer string, delta int, at time.Time) (*Profile, error) {
	return s.update(ctx, payer, at, delta, "")
}

// update applies a score delta (and optionally bumps one decision counter)
// under a row lock, recomputing the derived thresholds.
func (s *PostgresStore) update(ctx context.Context, payer string, at time.Time, delta int, counterCol string) (*Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin profile update: %w", err)
	}
	defer tx.Rollback()

	def := s.params.ThresholdsFor(DefaultScore)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO risk_profiles
			(payer_vpa, risk_score, block_threshold, step_up_threshold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (payer_vpa) DO NOTHING
	`, payer, DefaultScore, def.Block, def.StepUp, at); err != nil {
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	p := &Profile{Payer: payer}
	if err := tx.QueryRowContext(ctx, `
		SELECT risk_score, allow_count, step_up_count, block_count, created_at
		FROM risk_profiles
		WHERE payer_vpa = $1
		FOR UPDATE
	`, payer).Scan(&p.RiskScore, &p.AllowCount, &p.StepUpCount, &p.BlockCount, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("lock profile: %w", err)
	}

	p.RiskScore = clampScore(p.RiskScore + delta)
	p.Thresholds = s.params.ThresholdsFor(p.RiskScore)
	p.UpdatedAt = at

	switch counterCol {
	case "block_count":
		p.BlockCount++
	case "step_up_count":
		p.StepUpCount++
	case "allow_count":
		p.AllowCount++
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE risk_profiles
		SET risk_score = $2,
		    block_threshold = $3,
		    step_up_threshold = $4,
		    allow_count = $5,
		    step_up_count = $6,
		    block_count = $7,
		    updated_at = $8
		WHERE payer_vpa = $1
	`, payer, p.RiskScore, p.Thresholds.Block, p.Thresholds.StepUp,
		p.AllowCount, p.StepUpCount, p.BlockCount, at); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit profile update: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Get(ctx context.Context, payer string) (*Profile, error) {
	p := &Profile{Payer: payer}
	err := s.db.QueryRowContext(ctx, `
		SELECT risk_score, block_threshold, step_up_threshold,
		       allow_count, step_up_count, block_count, created_at, updated_at
		FROM risk_profiles
		WHERE payer_vpa = $1
	`, payer).Scan(&p.RiskScore, &p.Thresholds.Block, &p.Thresholds.StepUp,
		&p.AllowCount, &p.StepUpCount, &p.BlockCount, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}
