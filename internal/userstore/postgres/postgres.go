// Package postgres provides a PostgreSQL implementation of the user store.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/paylessai/payless-gateway/internal/userstore"
)

// Store implements userstore.Store for PostgreSQL.
type Store struct {
	db *sql.DB
}

// Config holds connection pool settings.
type Config struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns sensible defaults for connection pooling.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// New creates a new PostgreSQL user store with the given DSN.
func New(dsn string, cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
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

	var u userstore.User
	err := s.db.QueryRowContext(ctx, `
INSERT INTO users(id, email, display_name, avatar_url)
VALUES($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET id = users.id
RETURNING id, email, COALESCE(display_name, ''), COALESCE(avatar_url, ''), created_at`,
		id, strings.ToLower(strings.TrimSpace(email)), displayName, avatarURL,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &u, nil
}

// FindByID returns the user or nil when absent.
func (s *Store) FindByID(ctx context.Context, id string) (*userstore.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, COALESCE(display_name, ''), COALESCE(avatar_url, ''), created_at
FROM users WHERE id = $1`, id)

	var u userstore.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
