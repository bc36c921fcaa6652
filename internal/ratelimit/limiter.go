package ratelimit

import (
	"context"
	"time"
)

// Store defines the interface for heartbeat interval storage backends.
// Implementations can be in-memory (for single instance) or distributed.
type Store interface {
	// Touch records an attempt for the user. It returns whether the attempt
	// is allowed under the minimum interval and, when denied, how long the
	// caller should wait before retrying.
	Touch(ctx context.Context, userID string, minInterval time.Duration) (allowed bool, retryAfter time.Duration, err error)

	// Reset clears the recorded attempt for a user.
	Reset(ctx context.Context, userID string) error

	// Close releases resources.
	Close() error
}

// Limiter enforces a minimum interval between heartbeats per user using a
// pluggable storage backend. For single-instance deployments, use MemoryStore.
type Limiter struct {
	store       Store
	minInterval time.Duration
}

// Config holds configuration for the limiter.
type Config struct {
	// Storage backend (optional, defaults to MemoryStore)
	Store Store

	// Minimum spacing between accepted heartbeats per user.
	MinInterval time.Duration
}

// DefaultMinInterval matches the client heartbeat cadence.
const DefaultMinInterval = 25 * time.Second

// NewLimiter creates a limiter with the given configuration.
func NewLimiter(cfg Config) *Limiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	return &Limiter{store: store, minInterval: cfg.MinInterval}
}

// Allow checks whether a heartbeat from the user should be accepted now.
// On storage errors the request is allowed (fail open).
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, time.Duration) {
	if userID == "" {
		return true, 0
	}
	allowed, retryAfter, err := l.store.Touch(ctx, userID, l.minInterval)
	if err != nil {
		return true, 0
	}
	return allowed, retryAfter
}

// Reset clears the limiter state for a user.
func (l *Limiter) Reset(ctx context.Context, userID string) {
	_ = l.store.Reset(ctx, userID)
}

// MinInterval returns the configured spacing.
func (l *Limiter) MinInterval() time.Duration {
	return l.minInterval
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}
