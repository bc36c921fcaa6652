package userstore

import (
	"context"
	"time"
)

// User is the identity anchor all ledger activity hangs off. Rows are
// created on first successful authentication and never deleted here.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists users across SQLite/Postgres backends.
type Store interface {
	// EnsureUser returns the user with the given id, creating the row
	// with the supplied profile fields when it does not exist yet.
	EnsureUser(ctx context.Context, id, email, displayName, avatarURL string) (*User, error)

	// FindByID returns the user or nil when not found.
	FindByID(ctx context.Context, id string) (*User, error)

	Close() error
}
