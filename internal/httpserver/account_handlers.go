package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)
	user, err := s.identity.EnsureUser(r.Context(), info.identity.UserID, info.identity.Email, "", "")
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "USER_ERROR", err)
		return
	}
	s.grantWelcomeCredits(r.Context(), user.ID)
	balance, err := s.entries.Balance(r.Context(), user.ID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "BALANCE_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID,
		"email":          user.Email,
		"display_name":   user.DisplayName,
		"avatar_url":     user.AvatarURL,
		"credit_balance": balance,
	})
}

// grantWelcomeCredits mints the signup bonus at most once per user. The
// ledger's reference uniqueness makes redelivery a no-op.
func (s *Server) grantWelcomeCredits(ctx context.Context, userID string) {
	if s.welcomeCredits <= 0 {
		return
	}
	_, err := s.entries.AppendWithRef(ctx, userID, s.welcomeCredits, ledger.ReasonMint, "Welcome credits", "welcome:"+userID)
	if err != nil && !errors.Is(err, ledger.ErrDuplicateReference) {
		s.infof("welcome credits grant failed for %s: %v", userID, err)
	}
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)
	balance, err := s.entries.Balance(r.Context(), info.identity.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "BALANCE_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"credit_balance": balance})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	info := s.session(r)
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 500 {
			s.respondError(w, http.StatusBadRequest, "INVALID_LIMIT", errors.New("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}
	entries, err := s.entries.ListRecent(r.Context(), info.identity.UserID, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "HISTORY_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
