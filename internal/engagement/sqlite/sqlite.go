// Package sqlite provides a SQLite-backed engagement session store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/paylessai/payless-gateway/internal/engagement"
)

// Store implements engagement.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite session store at the supplied path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create engagement directory: %w", err)
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
	// The partial unique index is what makes "one active session per user"
	// hold under concurrent heartbeats: a second concurrent insert fails
	// instead of producing two live sessions.
	const schema = `
CREATE TABLE IF NOT EXISTS engagement_sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	last_heartbeat TIMESTAMP NOT NULL,
	total_seconds INTEGER NOT NULL DEFAULT 0,
	credits_earned REAL NOT NULL DEFAULT 0,
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_engagement_sessions_user ON engagement_sessions(user_id, last_heartbeat);
CREATE UNIQUE INDEX IF NOT EXISTS idx_engagement_sessions_active
	ON engagement_sessions(user_id) WHERE is_active = 1;
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

// ActiveSession returns the user's active session, or nil when none exists.
func (s *Store) ActiveSession(ctx context.Context, userID string) (*engagement.Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, started_at, last_heartbeat, total_seconds, credits_earned, is_active
FROM engagement_sessions
WHERE user_id = ? AND is_active = 1`, userID)

	var sess engagement.Session
	var active int
	err := row.Scan(&sess.ID, &sess.UserID, &sess.StartedAt, &sess.LastHeartbeat,
		&sess.TotalSeconds, &sess.CreditsEarned, &active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	sess.IsActive = active == 1
	return &sess, nil
}

// StartSession deactivates any active session for the user and inserts the
// fresh one inside a single transaction.
func (s *Store) StartSession(ctx context.Context, session *engagement.Session) error {
	if session == nil || session.ID == "" || session.UserID == "" {
		return errors.New("session id and user id required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
UPDATE engagement_sessions SET is_active = 0 WHERE user_id = ? AND is_active = 1`,
		session.UserID); err != nil {
		return fmt.Errorf("deactivate prior session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO engagement_sessions(id, user_id, started_at, last_heartbeat, total_seconds, credits_earned, is_active)
VALUES(?, ?, ?, ?, 0, 0, 1)`,
		session.ID, session.UserID, session.StartedAt.UTC(), session.LastHeartbeat.UTC()); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return tx.Commit()
}

// RecordHeartbeat advances the session clock and accumulates earned time.
func (s *Store) RecordHeartbeat(ctx context.Context, sessionID string, at time.Time, addSeconds int64, addCredits float64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE engagement_sessions
SET last_heartbeat = ?, total_seconds = total_seconds + ?, credits_earned = credits_earned + ?
WHERE id = ?`, at.UTC(), addSeconds, addCredits, sessionID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// EndSession marks the session inactive.
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE engagement_sessions SET is_active = 0 WHERE id = ?`, sessionID)
	return err
}
