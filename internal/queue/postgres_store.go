package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/nmehta6/riskgate/internal/event"
)

// PostgresStore persists the event queue in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event queue.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the event_queue table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS event_queue (
			id           BIGSERIAL PRIMARY KEY,
			payload      JSONB NOT NULL,
			enqueued_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *PostgresStore) Enqueue(ctx context.Context, txn *event.Transaction) error {
	payload, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO event_queue (payload) VALUES ($1)
	`, payload); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReadBatch(ctx context.Context, limit int) ([]Envelope, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload FROM event_queue ORDER BY id ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("read event batch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batch []Envelope
	for rows.Next() {
		var e Envelope
		var payload []byte
		if err := rows.Scan(&e.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Event); err != nil {
			return nil, fmt.Errorf("unmarshal event %d: %w", e.ID, err)
		}
		batch = append(batch, e)
	}
	return batch, rows.Err()
}

func (s *PostgresStore) Ack(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM event_queue WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return fmt.Errorf("ack events: %w", err)
	}
	return nil
}

func (s *PostgresStore) Depth(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM event_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}
