package thresholds

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nmehta6/riskgate/internal/decision"
)

// PostgresStore persists the global thresholds as a single row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed global threshold store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the global_thresholds table and seeds the default row.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS global_thresholds (
			id                SMALLINT PRIMARY KEY CHECK (id = 1),
			block_threshold   NUMERIC(5,4) NOT NULL,
			step_up_threshold NUMERIC(5,4) NOT NULL,
			updated_at        TIMESTAMPTZ NOT NULL
		);
	`); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_thresholds (id, block_threshold, step_up_threshold, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, DefaultBlock, DefaultStepUp, time.Now().UTC())
	return err
}

func (s *PostgresStore) Get(ctx context.Context) (decision.Thresholds, error) {
	var th decision.Thresholds
	err := s.db.QueryRowContext(ctx, `
		SELECT block_threshold, step_up_threshold FROM global_thresholds WHERE id = 1
	`).Scan(&th.Block, &th.StepUp)
	if err != nil {
		return decision.Thresholds{}, fmt.Errorf("get global thresholds: %w", err)
	}
	return th, nil
}

func (s *PostgresStore) Tighten(ctx context.Context) (decision.Thresholds, bool, error) {
	return s.adjust(ctx, tighten)
}

func (s *PostgresStore) Relax(ctx context.Context) (decision.Thresholds, bool, error) {
	return s.adjust(ctx, relax)
}

func (s *PostgresStore) adjust(ctx context.Context, f func(decision.Thresholds) decision.Thresholds) (decision.Thresholds, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decision.Thresholds{}, false, fmt.Errorf("begin threshold adjust: %w", err)
	}
	defer tx.Rollback()

	var cur decision.Thresholds
	if err := tx.QueryRowContext(ctx, `
		SELECT block_threshold, step_up_threshold FROM global_thresholds WHERE id = 1 FOR UPDATE
	`).Scan(&cur.Block, &cur.StepUp); err != nil {
		return decision.Thresholds{}, false, fmt.Errorf("lock global thresholds: %w", err)
	}

	next := f(cur)
	if next == cur {
		return cur, false, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE global_thresholds
		SET block_threshold = $1, step_up_threshold = $2, updated_at = $3
		WHERE id = 1
	`, next.Block, next.StepUp, time.Now().UTC()); err != nil {
		return decision.Thresholds{}, false, fmt.Errorf("update global thresholds: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return decision.Thresholds{}, false, fmt.Errorf("commit threshold adjust: %w", err)
	}
	return next, true, nil
}
