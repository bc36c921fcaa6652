package engagement

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

const (
	// SessionTimeout is the window after which a session with no heartbeat
	// is considered stale. It also caps the billable gap between beats so a
	// client cannot sleep for hours and claim the gap as engagement time.
	SessionTimeout = 60 * time.Second

	// DefaultCreditsPerMinute is the accrual rate when none is configured.
	DefaultCreditsPerMinute = 10
)

// HeartbeatResult is returned for every accepted heartbeat.
type HeartbeatResult struct {
	CreditsEarned  float64
	TotalCredits   float64
	SessionSeconds int64
}

// Tracker converts heartbeats into session time and ledger credits.
type Tracker struct {
	sessions Store
	entries  ledger.Store
	perMin   float64
	logger   *log.Logger
	now      func() time.Time
}

// NewTracker creates a Tracker backed by the given stores.
func NewTracker(sessions Store, entries ledger.Store, creditsPerMinute float64) *Tracker {
	if creditsPerMinute <= 0 {
		creditsPerMinute = DefaultCreditsPerMinute
	}
	return &Tracker{
		sessions: sessions,
		entries:  entries,
		perMin:   creditsPerMinute,
		now:      time.Now,
	}
}

// SetLogger attaches a logger for heartbeat diagnostics.
func (t *Tracker) SetLogger(l *log.Logger) { t.logger = l }

// CreditsPerMinute returns the configured accrual rate.
func (t *Tracker) CreditsPerMinute() float64 { return t.perMin }

// ProcessHeartbeat advances the user's engagement session and grants credits
// for the elapsed time since the previous beat.
//
// When no live session exists (first heartbeat, or the previous one timed
// out) a fresh session is started and zero credits are granted since no
// billable time has elapsed yet.
func (t *Tracker) ProcessHeartbeat(ctx context.Context, userID string) (*HeartbeatResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("engagement: user id required")
	}
	now := t.now().UTC()

	session, err := t.sessions.ActiveSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engagement: lookup session: %w", err)
	}

	timeoutSecs := int64(SessionTimeout / time.Second)
	if session != nil {
		// Truncation to whole seconds keeps a sub-second overshoot of the
		// timeout billable at exactly the timeout instead of starting over.
		elapsed := int64(now.Sub(session.LastHeartbeat).Seconds())
		if elapsed > timeoutSecs {
			session = nil
		}
	}

	if session == nil {
		fresh := &Session{
			ID:            uuid.NewString(),
			UserID:        userID,
			StartedAt:     now,
			LastHeartbeat: now,
			IsActive:      true,
		}
		if err := t.sessions.StartSession(ctx, fresh); err != nil {
			return nil, fmt.Errorf("engagement: start session: %w", err)
		}
		balance, err := t.entries.Balance(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("engagement: read balance: %w", err)
		}
		t.debugf("session started user=%s session=%s", userID, fresh.ID)
		return &HeartbeatResult{TotalCredits: balance}, nil
	}

	seconds := int64(now.Sub(session.LastHeartbeat).Seconds())
	if seconds > timeoutSecs {
		seconds = timeoutSecs
	}
	if seconds < 0 {
		seconds = 0
	}
	earned := floorCredits(float64(seconds) / 60 * t.perMin)

	if err := t.sessions.RecordHeartbeat(ctx, session.ID, now, seconds, earned); err != nil {
		return nil, fmt.Errorf("engagement: record heartbeat: %w", err)
	}
	if earned >= 0.01 {
		_, err := t.entries.Append(ctx, userID, earned, ledger.ReasonEngagementEarn,
			fmt.Sprintf("Earned %.2f credits for %ds engagement", earned, seconds))
		if err != nil {
			return nil, fmt.Errorf("engagement: append earn entry: %w", err)
		}
	}
	balance, err := t.entries.Balance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("engagement: read balance: %w", err)
	}
	t.debugf("heartbeat user=%s session=%s seconds=%d earned=%.2f", userID, session.ID, seconds, earned)
	return &HeartbeatResult{
		CreditsEarned:  earned,
		TotalCredits:   balance,
		SessionSeconds: session.TotalSeconds + seconds,
	}, nil
}

// EndSession closes the user's active session, if any. Already-earned
// credits are untouched; the next heartbeat starts a fresh session.
func (t *Tracker) EndSession(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("engagement: user id required")
	}
	session, err := t.sessions.ActiveSession(ctx, userID)
	if err != nil {
		return fmt.Errorf("engagement: lookup session: %w", err)
	}
	if session == nil {
		return nil
	}
	if err := t.sessions.EndSession(ctx, session.ID); err != nil {
		return fmt.Errorf("engagement: end session: %w", err)
	}
	t.debugf("session ended user=%s session=%s seconds=%d", userID, session.ID, session.TotalSeconds)
	return nil
}

// Stats reports all-time and today's engagement earnings from the ledger.
func (t *Tracker) Stats(ctx context.Context, userID string) (ledger.EarnStats, float64, error) {
	stats, err := t.entries.EarnStatsFor(ctx, userID)
	if err != nil {
		return ledger.EarnStats{}, 0, fmt.Errorf("engagement: read stats: %w", err)
	}
	balance, err := t.entries.Balance(ctx, userID)
	if err != nil {
		return ledger.EarnStats{}, 0, fmt.Errorf("engagement: read balance: %w", err)
	}
	return stats, balance, nil
}

func (t *Tracker) debugf(format string, args ...any) {
	if t.logger != nil {
		t.logger.Printf(format, args...)
	}
}

// floorCredits truncates to 2 decimal places for ledger hygiene.
func floorCredits(v float64) float64 {
	return math.Floor(v*100) / 100
}
