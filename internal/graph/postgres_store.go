package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists graph edges in PostgreSQL. The upsert is a single
// atomic statement, so concurrent edge writers never lose counts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed graph store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the graph_edges table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS graph_edges (
			payer_vpa     VARCHAR(128) NOT NULL,
			payee_vpa     VARCHAR(128) NOT NULL,
			count         BIGINT NOT NULL DEFAULT 0,
			total_amount  NUMERIC(20,2) NOT NULL DEFAULT 0,
			last_seen     TIMESTAMPTZ NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (payer_vpa, payee_vpa)
		);

		CREATE INDEX IF NOT EXISTS idx_graph_edges_payee ON graph_edges (payee_vpa);
	`)
	return err
}

func (s *PostgresStore) RecordTransaction(ctx context.Context, payer, payee string, amount float64, timestamp time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_edges (payer_vpa, payee_vpa, count, total_amount, last_seen, created_at)
		VALUES ($1, $2, 1, $3, $4, $4)
		ON CONFLICT (payer_vpa, payee_vpa) DO UPDATE SET
			count = graph_edges.count + 1,
			total_amount = graph_edges.total_amount + EXCLUDED.total_amount,
			last_seen = EXCLUDED.last_seen
	`, payer, payee, amount, timestamp); err != nil {
		return fmt.Errorf("upsert graph edge: %w", err)
	}
	return nil
}

func (s *PostgresStore) EdgeStats(ctx context.Context, payer, payee string) (*EdgeStats, error) {
	e := &EdgeStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT payer_vpa, payee_vpa, count, total_amount, last_seen, created_at
		FROM graph_edges
		WHERE payer_vpa = $1 AND payee_vpa = $2
	`, payer, payee).Scan(&e.Payer, &e.Payee, &e.Count, &e.TotalAmount, &e.LastSeen, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query graph edge: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) UniquePayees(ctx context.Context, payer string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM graph_edges WHERE payer_vpa = $1
	`, payer).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unique payees: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) UniquePayers(ctx context.Context, payee string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM graph_edges WHERE payee_vpa = $1
	`, payee).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unique payers: %w", err)
	}
	return n, nil
}
