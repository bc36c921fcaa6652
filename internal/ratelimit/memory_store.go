package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements an in-memory interval store.
// Suitable for single-instance deployments.
type MemoryStore struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithCleanup(5 * time.Minute)
}

// NewMemoryStoreWithCleanup creates a new in-memory store with a custom
// cleanup interval for expiring stale entries.
func NewMemoryStoreWithCleanup(cleanupInterval time.Duration) *MemoryStore {
	s := &MemoryStore{
		lastSeen:        make(map[string]time.Time),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}
	go s.cleanupLoop()
	return s
}

// Touch records an attempt and reports whether it is allowed.
func (s *MemoryStore) Touch(ctx context.Context, userID string, minInterval time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastSeen[userID]; ok {
		elapsed := now.Sub(last)
		if elapsed < minInterval {
			return false, minInterval - elapsed, nil
		}
	}
	s.lastSeen[userID] = now
	return true, 0, nil
}

// Reset clears the recorded attempt for a user.
func (s *MemoryStore) Reset(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastSeen, userID)
	return nil
}

// Close stops background cleanup.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

// cleanup drops entries older than the cleanup interval; anything that stale
// can no longer influence an interval check.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.cleanupInterval)
	for id, last := range s.lastSeen {
		if last.Before(cutoff) {
			delete(s.lastSeen, id)
		}
	}
}
