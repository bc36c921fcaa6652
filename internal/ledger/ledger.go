package ledger

import (
	"context"
	"errors"
	"time"
)

// Reason classifies why credits moved on a user's balance.
type Reason string

const (
	ReasonMint           Reason = "mint"
	ReasonAllocate       Reason = "allocate"
	ReasonSpend          Reason = "spend"
	ReasonAdjust         Reason = "adjust"
	ReasonEngagementEarn Reason = "engagement_earn"
	ReasonSurveyComplete Reason = "survey_complete"
)

// Valid reports whether the reason is one of the known ledger reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonMint, ReasonAllocate, ReasonSpend, ReasonAdjust, ReasonEngagementEarn, ReasonSurveyComplete:
		return true
	}
	return false
}

// ErrDuplicateReference is returned by AppendWithRef when an entry with the
// same external reference already exists. Postback retries branch on this.
var ErrDuplicateReference = errors.New("ledger: duplicate external reference")

// Entry is one immutable signed delta against a user's balance.
// Entries are append-only; they are never updated or deleted.
type Entry struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	Delta       float64   `json:"delta"`
	Reason      Reason    `json:"reason"`
	Description string    `json:"description,omitempty"`
	ExternalRef string    `json:"external_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SpendResult reports the outcome of a conditional spend.
type SpendResult struct {
	Success    bool    `json:"success"`
	NewBalance float64 `json:"new_balance"`
}

// EarnStats aggregates engagement earnings for a user.
type EarnStats struct {
	TotalEarned float64 `json:"total_earned"`
	EarnedToday float64 `json:"earned_today"`
}

// Store defines persistence behaviour for the credit ledger. Balance truth
// lives here and only here. Spend enforcement happens inside Spend as one
// atomic store operation, serialized per user, so two concurrent spends
// cannot both pass the balance check and drive the balance negative.
type Store interface {
	// Append inserts one entry unconditionally. No balance validation;
	// validation is the caller's job.
	Append(ctx context.Context, userID string, delta float64, reason Reason, description string) (Entry, error)

	// AppendWithRef inserts one entry tagged with a unique external
	// reference. Returns ErrDuplicateReference when the reference was
	// already recorded.
	AppendWithRef(ctx context.Context, userID string, delta float64, reason Reason, description, externalRef string) (Entry, error)

	// Balance returns the sum of all deltas for the user, 0 when the
	// user has no entries.
	Balance(ctx context.Context, userID string) (float64, error)

	// Spend appends a negative spend entry only if the current balance
	// covers the amount.
	Spend(ctx context.Context, userID string, amount float64, description string) (SpendResult, error)

	// ListRecent returns the latest entries for a user, newest first.
	ListRecent(ctx context.Context, userID string, limit int) ([]Entry, error)

	// EarnStatsFor aggregates engagement earnings for a user, all-time
	// and since midnight UTC.
	EarnStatsFor(ctx context.Context, userID string) (EarnStats, error)

	Close() error
}
