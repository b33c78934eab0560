package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lexaudit/pkg/platform/sentinel"
)

// PostgresStore persists artifacts in a single jsonb table. An upsert on
// (run_id, key) gives the last-write-wins semantics the pipeline expects.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the artifacts table. Called once at startup; safe to rerun.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artifacts (
			run_id     TEXT        NOT NULL,
			key        TEXT        NOT NULL,
			payload    JSONB       NOT NULL,
			written_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (run_id, key)
		)`)
	if err != nil {
		return fmt.Errorf("migrate artifacts table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, runID string, key Key, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (run_id, key, payload, written_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (run_id, key)
		DO UPDATE SET payload = EXCLUDED.payload, written_at = now()`,
		runID, string(key), payload)
	if err != nil {
		return fmt.Errorf("postgres save %s/%s: %w", runID, key, err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, runID string, key Key) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM artifacts WHERE run_id = $1 AND key = $2`,
		runID, string(key)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres find %s/%s: %w", runID, key, err)
	}
	return payload, nil
}
