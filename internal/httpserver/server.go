// Package httpserver exposes the REST endpoints of the Payless gateway.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/paylessai/payless-gateway/internal/auth"
	"github.com/paylessai/payless-gateway/internal/core"
	"github.com/paylessai/payless-gateway/internal/engagement"
	"github.com/paylessai/payless-gateway/internal/health"
	"github.com/paylessai/payless-gateway/internal/ledger"
	"github.com/paylessai/payless-gateway/internal/ratelimit"
	"github.com/paylessai/payless-gateway/internal/reconciler"
	"github.com/paylessai/payless-gateway/internal/rewards"
	"github.com/paylessai/payless-gateway/internal/usage"
	"github.com/paylessai/payless-gateway/internal/userstore"
)

// Server exposes REST endpoints for the credit gateway.
type Server struct {
	orchestrator *core.Orchestrator
	entries      ledger.Store
	identity     userstore.Store
	records      usage.Store
	auth         *auth.Manager
	tracker      *engagement.Tracker
	limiter      *ratelimit.Limiter
	reconciler   *reconciler.Reconciler
	surveys      *rewards.Client
	checker      *health.Checker

	adminKey       string
	authDisabled   bool
	welcomeCredits float64

	logger   *log.Logger
	logLevel string
}

// Config bundles the server dependencies.
type Config struct {
	Orchestrator *core.Orchestrator
	Ledger       ledger.Store
	Identity     userstore.Store
	Usage        usage.Store
	Auth         *auth.Manager
	Tracker      *engagement.Tracker
	Limiter      *ratelimit.Limiter
	Reconciler   *reconciler.Reconciler
	Surveys      *rewards.Client
	Checker      *health.Checker
	AdminKey     string

	// WelcomeCredits, when positive, is granted once per user on first
	// contact.
	WelcomeCredits float64
}

// New constructs a Server with the required dependencies.
func New(cfg Config) *Server {
	return &Server{
		orchestrator: cfg.Orchestrator,
		entries:      cfg.Ledger,
		identity:     cfg.Identity,
		records:      cfg.Usage,
		auth:         cfg.Auth,
		tracker:      cfg.Tracker,
		limiter:      cfg.Limiter,
		reconciler:   cfg.Reconciler,
		surveys:      cfg.Surveys,
		checker:      cfg.Checker,
		adminKey:     cfg.AdminKey,

		welcomeCredits: cfg.WelcomeCredits,
	}
}

// SetLogger configures server-level logger and verbosity ("debug", "info", ...).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	if logger != nil {
		s.logger = logger
	}
}

// SetAuthDisabled bypasses token verification; callers are identified by the
// X-User-ID header. Development only.
func (s *Server) SetAuthDisabled(disabled bool) {
	s.authDisabled = disabled
	if disabled {
		s.debugf("authorization disabled via configuration")
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }

func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

func (s *Server) infof(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Routes assembles the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/llm/models", s.handleModels)
	r.Get("/earn/config", s.handleEarnConfig)
	r.Get("/rewards/config", s.handleRewardsConfig)
	r.Get("/rewards/postback", s.handlePostback)

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/me", s.handleMe)
		r.Get("/credits/balance", s.handleBalance)
		r.Get("/credits/history", s.handleHistory)
		r.Post("/llm/estimate", s.handleEstimate)
		r.Post("/llm/execute", s.handleExecute)
		r.Post("/earn/heartbeat", s.handleHeartbeat)
		r.Post("/earn/end", s.handleEarnEnd)
		r.Get("/earn/stats", s.handleEarnStats)
		r.Get("/rewards/surveys", s.handleSurveys)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminMiddleware)
		r.Post("/credits/mint", s.handleAdminCredits(ledger.ReasonMint, "Admin minted credits"))
		r.Post("/credits/allocate", s.handleAdminCredits(ledger.ReasonAllocate, "Credits allocated"))
		r.Post("/credits/adjust", s.handleAdminAdjust)
	})

	return r
}

type sessionContextKey struct{}

type sessionInfo struct {
	identity auth.Identity
}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := s.authenticateRequest(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticateRequest(r *http.Request) (*sessionInfo, error) {
	if s.authDisabled {
		id := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if id == "" {
			id = "dev-user"
		}
		return &sessionInfo{identity: auth.Identity{UserID: id, Email: r.Header.Get("X-User-Email")}}, nil
	}
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, errors.New("missing or invalid authorization header")
	}
	identity, err := s.auth.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	return &sessionInfo{identity: identity}, nil
}

func (s *Server) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminKey == "" || r.Header.Get("X-Admin-Key") != s.adminKey {
			s.respondError(w, http.StatusForbidden, "FORBIDDEN", errors.New("admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) session(r *http.Request) *sessionInfo {
	info, _ := r.Context().Value(sessionContextKey{}).(*sessionInfo)
	return info
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code string, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error(), "code": code})
}

// respondCoreError maps orchestrator error codes onto HTTP statuses.
func (s *Server) respondCoreError(w http.ResponseWriter, err error) {
	code := core.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case core.CodeInvalidProvider, core.CodeInvalidModel, core.CodeInvalidPrompt:
		status = http.StatusBadRequest
	case core.CodeInsufficientCredits:
		status = http.StatusPaymentRequired
	case core.CodeProviderError:
		status = http.StatusBadGateway
	case core.CodeLedgerError:
		status = http.StatusInternalServerError
	default:
		code = "INTERNAL_ERROR"
	}
	var ce *core.Error
	if errors.As(err, &ce) {
		err = errors.New(ce.Message)
	}
	s.respondError(w, status, code, err)
}

func (s *Server) decodeJSON(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
