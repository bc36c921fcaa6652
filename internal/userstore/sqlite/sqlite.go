package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/paylessai/payless-gateway/internal/userstore"
)

// Store implements userstore.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite user store at the supplied path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create identity directory: %w", err)
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
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	display_name TEXT,
	avatar_url TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
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

// EnsureUser returns the stored user, creating the row on first sight.
func (s *Store) EnsureUser(ctx context.Context, id, email, displayName, avatarURL string) (*userstore.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("user id required")
	}
	existing, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	created := time.Now().UTC()
	// INSERT OR IGNORE tolerates a concurrent first-login racing this one.
	_, err = s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO users(id, email, display_name, avatar_url, created_at)
VALUES(?, ?, ?, ?, ?)`,
		id, strings.ToLower(strings.TrimSpace(email)), displayName, avatarURL, created,
	)
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

// FindByID returns the user or nil when absent.
func (s *Store) FindByID(ctx context.Context, id string) (*userstore.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, COALESCE(display_name, ''), COALESCE(avatar_url, ''), created_at
FROM users WHERE id = ?`, id)

	var u userstore.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
