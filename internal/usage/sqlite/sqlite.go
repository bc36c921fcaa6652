package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/paylessai/payless-gateway/internal/usage"
)

// Store implements usage.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite usage store at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS provider_usage (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	credits_spent REAL NOT NULL,
	tokens_input INTEGER NOT NULL,
	tokens_output INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_provider_usage_user_created ON provider_usage(user_id, created_at DESC);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases underlying database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a new usage row.
func (s *Store) Record(ctx context.Context, rec usage.Record) error {
	if rec.UserID == "" {
		return errors.New("usage record requires user id")
	}
	if rec.Provider == "" || rec.Model == "" {
		return errors.New("usage record requires provider and model")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO provider_usage(request_id, user_id, provider, model, credits_spent, tokens_input, tokens_output, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		rec.UserID,
		rec.Provider,
		rec.Model,
		rec.CreditsSpent,
		rec.TokensInput,
		rec.TokensOutput,
		created,
	)
	return err
}

// ListRecent returns the latest usage rows for a user.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]usage.Record, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, request_id, user_id, provider, model, credits_spent, tokens_input, tokens_output, created_at
FROM provider_usage
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []usage.Record
	for rows.Next() {
		var rec usage.Record
		if err := rows.Scan(&rec.ID, &rec.RequestID, &rec.UserID, &rec.Provider, &rec.Model, &rec.CreditsSpent, &rec.TokensInput, &rec.TokensOutput, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
