package httpserver

import (
	"net/http"
	"time"

	"github.com/paylessai/payless-gateway/internal/health"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status":    health.StatusHealthy,
			"timestamp": time.Now().UTC(),
		})
		return
	}
	overall := s.checker.Check(r.Context())
	status := http.StatusOK
	if overall.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, overall)
}
