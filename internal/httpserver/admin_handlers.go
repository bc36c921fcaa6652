package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/paylessai/payless-gateway/internal/ledger"
)

type adminCreditRequest struct {
	UserID      string  `json:"user_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

// handleAdminCredits serves both mint and allocate, which differ only in the
// ledger reason recorded against the entry.
func (s *Server) handleAdminCredits(reason ledger.Reason, defaultDesc string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req adminCreditRequest
		if err := s.decodeJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "INVALID_BODY", err)
			return
		}
		req.UserID = strings.TrimSpace(req.UserID)
		if req.UserID == "" {
			s.respondError(w, http.StatusBadRequest, "MISSING_USER", errors.New("user_id is required"))
			return
		}
		if req.Amount <= 0 {
			s.respondError(w, http.StatusBadRequest, "INVALID_AMOUNT", errors.New("amount must be positive"))
			return
		}
		desc := req.Description
		if desc == "" {
			desc = defaultDesc
		}

		entry, err := s.entries.Append(r.Context(), req.UserID, req.Amount, reason, desc)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "LEDGER_ERROR", err)
			return
		}
		balance, err := s.entries.Balance(r.Context(), req.UserID)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, "LEDGER_ERROR", err)
			return
		}

		amountKey := "amount_minted"
		if reason == ledger.ReasonAllocate {
			amountKey = "amount_allocated"
		}
		s.infof("admin %s: user=%s amount=%.2f entry=%d", reason, req.UserID, req.Amount, entry.ID)
		s.respondJSON(w, http.StatusOK, map[string]any{
			"success":     true,
			"user_id":     req.UserID,
			amountKey:     req.Amount,
			"new_balance": balance,
		})
	}
}

// handleAdminAdjust records a manual correction; the amount may be negative.
func (s *Server) handleAdminAdjust(w http.ResponseWriter, r *http.Request) {
	var req adminCreditRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "INVALID_BODY", err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		s.respondError(w, http.StatusBadRequest, "MISSING_USER", errors.New("user_id is required"))
		return
	}
	if req.Amount == 0 {
		s.respondError(w, http.StatusBadRequest, "INVALID_AMOUNT", errors.New("amount must be non-zero"))
		return
	}
	desc := req.Description
	if desc == "" {
		desc = "Admin adjustment"
	}

	entry, err := s.entries.Append(r.Context(), req.UserID, req.Amount, ledger.ReasonAdjust, desc)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "LEDGER_ERROR", err)
		return
	}
	balance, err := s.entries.Balance(r.Context(), req.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "LEDGER_ERROR", err)
		return
	}

	s.infof("admin adjust: user=%s amount=%.2f entry=%d", req.UserID, req.Amount, entry.ID)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user_id":     req.UserID,
		"amount":      req.Amount,
		"new_balance": balance,
	})
}
