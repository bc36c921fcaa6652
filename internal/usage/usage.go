// Package usage persists audit records of provider calls. Records are
// informational only; the ledger remains the sole authority on balance.
package usage

import (
	"context"
	"time"
)

// Record is one LLM call's audit row. Created once per successful
// execution, never mutated.
type Record struct {
	ID           int64     `json:"id"`
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	CreditsSpent float64   `json:"credits_spent"`
	TokensInput  int       `json:"tokens_input"`
	TokensOutput int       `json:"tokens_output"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store defines persistence behaviour for usage records.
type Store interface {
	Record(ctx context.Context, rec Record) error
	ListRecent(ctx context.Context, userID string, limit int) ([]Record, error)
	Close() error
}
