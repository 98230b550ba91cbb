package velocity

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore persists velocity records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed velocity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the velocity_records table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS velocity_records (
			id         BIGSERIAL PRIMARY KEY,
			payer_vpa  VARCHAR(128) NOT NULL,
			amount     NUMERIC(20,2) NOT NULL,
			ts         TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_velocity_payer_ts
			ON velocity_records (payer_vpa, ts DESC);
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, payer string, amount float64, timestamp time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO velocity_records (payer_vpa, amount, ts) VALUES ($1, $2, $3)
	`, payer, amount, timestamp); err != nil {
		return fmt.Errorf("record velocity fact: %w", err)
	}
	return nil
}

func (s *PostgresStore) Features(ctx context.Context, payer string, now time.Time) (Features, error) {
	var f Features
	var avg sql.NullFloat64

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE ts >= $3),
			COUNT(*) FILTER (WHERE ts >= $4),
			AVG(amount)
		FROM velocity_records
		WHERE payer_vpa = $1 AND ts >= $5 AND ts <= $2
	`, payer, now, now.Add(-WindowShort), now.Add(-WindowDay), now.Add(-WindowWeek)).
		Scan(&f.Count1h, &f.Count24h, &avg)
	if err != nil {
		return Features{}, fmt.Errorf("query velocity features: %w", err)
	}

	if avg.Valid {
		f.AvgAmount7d = avg.Float64
	}
	return f, nil
}
