package httpserver

import (
	"errors"
	"net"
	"net/http"

	"github.com/paylessai/payless-gateway/internal/reconciler"
)

func (s *Server) handleSurveys(w http.ResponseWriter, r *http.Request) {
	if s.surveys == nil || !s.surveys.Configured() {
		s.respondError(w, http.StatusServiceUnavailable, "CPX_NOT_CONFIGURED",
			errors.New("survey network is not configured"))
		return
	}
	info := s.session(r)

	list, err := s.surveys.Surveys(r.Context(), info.identity.UserID, clientIP(r), r.UserAgent())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, "SURVEYS_ERROR", err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handlePostback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := reconciler.Postback{
		TransID:   q.Get("trans_id"),
		UserID:    q.Get("user_id"),
		Status:    q.Get("status"),
		AmountUSD: q.Get("amount_usd"),
		OfferID:   q.Get("offer_id"),
		Hash:      q.Get("hash"),
	}

	outcome, err := s.reconciler.Handle(r.Context(), p)
	if err != nil {
		switch {
		case errors.Is(err, reconciler.ErrMissingParams):
			s.respondError(w, http.StatusBadRequest, "MISSING_PARAMS", err)
		case errors.Is(err, reconciler.ErrBadSignature):
			s.respondError(w, http.StatusForbidden, "INVALID_HASH", err)
		case errors.Is(err, reconciler.ErrUnknownStatus):
			s.respondError(w, http.StatusBadRequest, "UNKNOWN_STATUS", err)
		default:
			s.respondError(w, http.StatusInternalServerError, "POSTBACK_ERROR", err)
		}
		return
	}

	resp := map[string]any{"status": "ok"}
	if outcome.CreditsReversed > 0 {
		resp["credits_reversed"] = outcome.CreditsReversed
	} else {
		resp["credits_awarded"] = outcome.CreditsAwarded
	}
	if outcome.Duplicate {
		resp["duplicate"] = true
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRewardsConfig(w http.ResponseWriter, _ *http.Request) {
	configured := s.surveys != nil && s.surveys.Configured()
	resp := map[string]any{"configured": configured}
	if configured {
		resp["credits_per_dollar"] = s.surveys.CreditsPerDollar()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// clientIP returns the caller address; middleware.RealIP has already folded
// X-Forwarded-For into RemoteAddr when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
