package httpserver

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/paylessai/payless-gateway/internal/engagement"
)

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)

	allowed, retryAfter := s.limiter.Allow(r.Context(), info.identity.UserID)
	if !allowed {
		wait := int(math.Ceil(retryAfter.Seconds()))
		w.Header().Set("Retry-After", fmt.Sprintf("%d", wait))
		s.respondJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       fmt.Sprintf("Rate limited. Please wait %d seconds.", wait),
			"code":        "RATE_LIMITED",
			"retry_after": wait,
		})
		return
	}

	result, err := s.tracker.ProcessHeartbeat(r.Context(), info.identity.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "HEARTBEAT_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"credits_earned":     result.CreditsEarned,
		"total_credits":      result.TotalCredits,
		"session_seconds":    result.SessionSeconds,
		"credits_per_minute": s.tracker.CreditsPerMinute(),
	})
}

func (s *Server) handleEarnEnd(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)
	if err := s.tracker.EndSession(r.Context(), info.identity.UserID); err != nil {
		s.respondError(w, http.StatusInternalServerError, "SESSION_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func (s *Server) handleEarnStats(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)
	stats, balance, err := s.tracker.Stats(r.Context(), info.identity.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "STATS_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"total_earned":       stats.TotalEarned,
		"earned_today":       stats.EarnedToday,
		"current_balance":    balance,
		"credits_per_minute": s.tracker.CreditsPerMinute(),
	})
}

func (s *Server) handleEarnConfig(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"credits_per_minute":         s.tracker.CreditsPerMinute(),
		"heartbeat_interval_seconds": int(s.limiter.MinInterval() / time.Second),
		"session_timeout_seconds":    int(engagement.SessionTimeout / time.Second),
	})
}
