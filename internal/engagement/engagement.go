// Package engagement tracks active browsing sessions and converts watched
// time into ledger credits via periodic client heartbeats.
package engagement

import (
	"context"
	"time"
)

// Session is one continuous engagement period for a user. At most one
// session per user is active at a time.
type Session struct {
	ID            string
	UserID        string
	StartedAt     time.Time
	LastHeartbeat time.Time
	TotalSeconds  int64
	CreditsEarned float64
	IsActive      bool
}

// Store persists engagement sessions.
type Store interface {
	// ActiveSession returns the user's active session, or nil when none exists.
	ActiveSession(ctx context.Context, userID string) (*Session, error)

	// StartSession deactivates any existing active session for the user and
	// creates a fresh one in a single transaction.
	StartSession(ctx context.Context, session *Session) error

	// RecordHeartbeat advances the session clock and accumulates earned time.
	RecordHeartbeat(ctx context.Context, sessionID string, at time.Time, addSeconds int64, addCredits float64) error

	// EndSession marks the session inactive.
	EndSession(ctx context.Context, sessionID string) error

	Close() error
}
