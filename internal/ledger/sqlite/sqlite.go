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

	// register sqlite driver
	_ "modernc.org/sqlite"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

// Store implements ledger.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite ledger at the given path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	// Wait for a writer instead of failing with SQLITE_BUSY; concurrent
	// spends must serialize, not error.
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
CREATE TABLE IF NOT EXISTS credit_ledger (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	delta REAL NOT NULL,
	reason TEXT NOT NULL CHECK(reason IN ('mint','allocate','spend','adjust','engagement_earn','survey_complete')),
	description TEXT,
	external_ref TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
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
// reference. A second insert with the same reference returns
// ledger.ErrDuplicateReference.
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
	created := time.Now().UTC()

	var ref any
	if externalRef != "" {
		ref = externalRef
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO credit_ledger(user_id, delta, reason, description, external_ref, created_at)
VALUES(?, ?, ?, ?, ?, ?)`,
		userID, delta, string(reason), description, ref, created,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.Entry{}, ledger.ErrDuplicateReference
		}
		return ledger.Entry{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{
		ID:          id,
		UserID:      userID,
		Delta:       delta,
		Reason:      reason,
		Description: description,
		ExternalRef: externalRef,
		CreatedAt:   created,
	}, nil
}

// Balance returns the sum of all deltas for the user.
func (s *Store) Balance(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return 0, errors.New("user id required")
	}
	row := s.db.QueryRowContext(ctx, `
SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ?`, userID)
	var balance sql.NullFloat64
	if err := row.Scan(&balance); err != nil {
		return 0, err
	}
	return balance.Float64, nil
}

// Spend appends a spend entry of -amount only when the current balance
// covers it. The balance check and the insert run as a single statement,
// so two near-simultaneous spends against an almost drained balance cannot
// both pass the check.
func (s *Store) Spend(ctx context.Context, userID string, amount float64, description string) (ledger.SpendResult, error) {
	if userID == "" {
		return ledger.SpendResult{}, errors.New("user id required")
	}
	if amount < 0 {
		return ledger.SpendResult{}, fmt.Errorf("spend amount must be non-negative, got %v", amount)
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO credit_ledger(user_id, delta, reason, description, created_at)
SELECT ?, ?, 'spend', ?, ?
WHERE (SELECT COALESCE(SUM(delta), 0) FROM credit_ledger WHERE user_id = ?) >= ?`,
		userID, -amount, description, time.Now().UTC(), userID, amount,
	)
	if err != nil {
		return ledger.SpendResult{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return ledger.SpendResult{}, err
	}
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return ledger.SpendResult{}, err
	}
	return ledger.SpendResult{Success: affected > 0, NewBalance: balance}, nil
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
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?`, userID, limit)
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
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	row := s.db.QueryRowContext(ctx, `
SELECT
	COALESCE(SUM(delta), 0) AS total,
	COALESCE(SUM(CASE WHEN created_at >= ? THEN delta ELSE 0 END), 0) AS today
FROM credit_ledger
WHERE user_id = ? AND reason = 'engagement_earn'`, midnight, userID)

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
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
