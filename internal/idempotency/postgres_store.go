package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists processed transactions in PostgreSQL. The primary
// key on transaction_id is the uniqueness constraint the gate relies on.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed processed-transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the processed_transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS processed_transactions (
			transaction_id  VARCHAR(64) PRIMARY KEY,
			decision        VARCHAR(16) NOT NULL,
			source          VARCHAR(32) NOT NULL,
			processed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) IsProcessed(ctx context.Context, txnID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM processed_transactions WHERE transaction_id = $1)
	`, txnID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check processed transaction: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, txnID, decision, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_transactions (transaction_id, decision, source)
		VALUES ($1, $2, $3)
	`, txnID, decision, source)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("mark transaction processed: %w", err)
	}
	return nil
}
