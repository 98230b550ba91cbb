package feedback

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists feedback records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed feedback store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the feedback_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS feedback_records (
			id             VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(128) NOT NULL,
			payer_vpa      VARCHAR(128) NOT NULL,
			decision       VARCHAR(16) NOT NULL,
			actual         VARCHAR(16) NOT NULL,
			source         VARCHAR(32) NOT NULL,
			processed      BOOLEAN NOT NULL DEFAULT FALSE,
			created_at     TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_feedback_unprocessed
			ON feedback_records (created_at) WHERE NOT processed;
	`)
	return err
}

func (s *PostgresStore) Add(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback_records
			(id, transaction_id, payer_vpa, decision, actual, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.TransactionID, rec.Payer, rec.Decision, rec.Actual,
		rec.Source, rec.CreatedAt); err != nil {
		return fmt.Errorf("add feedback: %w", err)
	}
	return nil
}

func (s *PostgresStore) Unprocessed(ctx context.Context, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, payer_vpa, decision, actual, source, created_at
		FROM feedback_records
		WHERE NOT processed
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed feedback: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.Payer, &r.Decision,
			&r.Actual, &r.Source, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		UPDATE feedback_records SET processed = TRUE WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("mark feedback processed: %w", err)
	}
	return nil
}
