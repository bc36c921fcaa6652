package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

// Store implements ledger.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL-backed ledger using the provided DSN and
// connection pool settings.
func New(dsn string, maxOpen, maxIdle, lifetimeMinutes, idleTimeMinutes int) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}

	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if lifetimeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(lifetimeMinutes) * time.Minute)
	}
	if idleTimeMinutes > 0 {
		db.SetConnMaxIdleTime(time.Duration(idleTimeMinutes) * time.Minute)
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
CREATE TABLE IF NOT EXISTS credit_ledger (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	delta DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL CHECK(reason IN ('mint','allocate','spend','adjust','engagement_earn','survey_complete')),
	description TEXT,
	external_ref TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_credit_ledger_user_created ON credit_ledger(user_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS idx_credit_ledger_external_ref ON credit_ledger(external_ref) WHERE external_ref IS NOT NULL;
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

// Append inserts a new ledger entry without balance validation.
func (s *Store) Append(ctx context.Context, userID string, delta float64, reason ledger.Reason, description string) (ledger.Entry, error) {
	return s.insert(ctx, userID, delta, reason, description, "")
}

// AppendWithRef inserts a new ledger entry tagged with a unique external
// reference.
func (s *Store) AppendWithRef(ctx context.Context, userID string, delta float64, reason ledger.Reason, description, externalRef string) (ledger.Entry, error) {
	if strings.TrimSpace(externalRef) == "" {
		return ledger.Entry{}, errors.New("external reference required")
	}
	return s.insert(ctx, userID, delta, reason, description, externalRef)
}

func (s *Store) insert(ctx context.Context, userID string, delta float64, reason ledger.Reason, description, externalRef string) (ledger.Entry, error) {
	if userID == "" {
		return ledger.Entry{}, errors.New("ledger append requires user id")
	}
	if !reason.Valid() {
		return ledger.Entry{}, fmt.Errorf("invalid reason %q", reason)
	}

	var ref any
	if externalRef != "" {
		ref = externalRef
	}
	entry := ledger.Entry{
		UserID:      userID,
		Delta:       delta,
		Reason:      reason,
		Description: description,
		ExternalRef: externalRef,
	}
	row := s.db.QueryRowContext(ctx, `
INSERT INTO credit_ledger(user_id, delta, reason, description, external_ref)
VALUES($1, $2, $3, $4, $5)
RETURNING id, created_at`,
		userID, delta, string(reason), description, ref,
	)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ledger.Entry{}, ledger.ErrDuplicateReference
		}
		return ledger.Entry{}, err
	}
	return entry, nil
}

// Balance returns the sum of all deltas for the user.
func (s *Store) Balance(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return 0, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1`, userID)
	var balance sql.NullFloat64
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance.Float64, nil
}

// Spend appends a spend entry of -amount only when the current balance
// covers it. The check and the insert run inside one transaction holding a
// per-user advisory lock: under READ COMMITTED two concurrent conditional
// inserts would each evaluate the balance sub-select against a snapshot that
// excludes the other's uncommitted row, so both could pass. The lock
// serializes spends per user; it is released on commit or rollback.
func (s *Store) Spend(ctx context.Context, userID string, amount float64, description string) (ledger.SpendResult, error) {
	if userID == "" {
		return ledger.SpendResult{}, errors.New("user id required")
	}
	if amount < 0 {
		return ledger.SpendResult{}, fmt.Errorf("spend amount must be non-negative, got %v", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ledger.SpendResult{}, fmt.Errorf("begin spend tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return ledger.SpendResult{}, fmt.Errorf("acquire spend lock: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO credit_ledger(user_id, delta, reason, description)
SELECT $1, $2, 'spend', $3
WHERE (SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $4) >= $5`,
		userID, -amount, description, userID, amount,
	)
	if err != nil {
		return ledger.SpendResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.SpendResult{}, err
	}
	var balance sql.NullFloat64
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = $1`, userID).Scan(&balance); err != nil {
		return ledger.SpendResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ledger.SpendResult{}, fmt.Errorf("commit spend tx: %w", err)
	}
	return ledger.SpendResult{Success: affected > 0, NewBalance: balance.Float64}, nil
}

// ListRecent returns the latest entries for a user.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, delta, reason, COALESCE(description, ''), COALESCE(external_ref, ''), created_at
FROM credit_ledger
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		var reason string
		if err := rows.Scan(&e.ID, &e.UserID, &e.Delta, &reason, &e.Description, &e.ExternalRef, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reason = ledger.Reason(reason)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EarnStatsFor aggregates engagement earnings all-time and since midnight UTC.
func (s *Store) EarnStatsFor(ctx context.Context, userID string) (ledger.EarnStats, error) {
	if userID == "" {
		return ledger.EarnStats{}, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(delta), 0),
	COALESCE(SUM(CASE WHEN created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC') THEN delta ELSE 0 END), 0)
FROM credit_ledger
WHERE user_id = $1 AND reason = 'engagement_earn'`, userID)

	var stats ledger.EarnStats
	if err := row.Scan(&stats.TotalEarned, &stats.EarnedToday); err != nil {
		return ledger.EarnStats{}, err
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
