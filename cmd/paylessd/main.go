package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/paylessai/payless-gateway/internal/auth"
	"github.com/paylessai/payless-gateway/internal/config"
	"github.com/paylessai/payless-gateway/internal/core"
	"github.com/paylessai/payless-gateway/internal/engagement"
	engagementsqlite "github.com/paylessai/payless-gateway/internal/engagement/sqlite"
	"github.com/paylessai/payless-gateway/internal/health"
	"github.com/paylessai/payless-gateway/internal/httpserver"
	"github.com/paylessai/payless-gateway/internal/ledger"
	ledgerpg "github.com/paylessai/payless-gateway/internal/ledger/postgres"
	ledgersqlite "github.com/paylessai/payless-gateway/internal/ledger/sqlite"
	"github.com/paylessai/payless-gateway/internal/logging"
	"github.com/paylessai/payless-gateway/internal/pricing"
	"github.com/paylessai/payless-gateway/internal/provider"
	provideranthropic "github.com/paylessai/payless-gateway/internal/provider/anthropic"
	providergemini "github.com/paylessai/payless-gateway/internal/provider/gemini"
	provideropenai "github.com/paylessai/payless-gateway/internal/provider/openai"
	"github.com/paylessai/payless-gateway/internal/ratelimit"
	"github.com/paylessai/payless-gateway/internal/reconciler"
	"github.com/paylessai/payless-gateway/internal/rewards"
	usageasync "github.com/paylessai/payless-gateway/internal/usage/async"
	usagesqlite "github.com/paylessai/payless-gateway/internal/usage/sqlite"
	"github.com/paylessai/payless-gateway/internal/userstore"
	userstorepg "github.com/paylessai/payless-gateway/internal/userstore/postgres"
	userstoresqlite "github.com/paylessai/payless-gateway/internal/userstore/sqlite"
)

func main() {
	cfg, err := config.LoadGatewayConfig(".")
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	logTarget := strings.TrimSpace(cfg.LogFile)
	if logTarget != "" {
		rot, err := logging.NewRotatingWriter(logTarget, logging.DefaultMaxBytes)
		if err != nil {
			log.Fatalf("init rotating log: %v", err)
		}
		// Mirror to stdout as well for foreground runs
		log.SetOutput(io.MultiWriter(os.Stdout, rot))
		log.SetFlags(log.LstdFlags | log.Lmicroseconds)
		log.SetPrefix("[paylessd] ")
		defer rot.Close()
	}

	if cfg.PricingRatesFile != "" {
		if err := pricing.LoadRateOverrides(cfg.PricingRatesFile); err != nil {
			log.Fatalf("load pricing rates: %v", err)
		}
		log.Printf("pricing rate overrides loaded from %s", cfg.PricingRatesFile)
	}

	ledgerStore, err := openLedgerStore(cfg)
	if err != nil {
		log.Fatalf("open ledger: %v", err)
	}
	defer ledgerStore.Close()

	identityStore, err := openIdentityStore(cfg)
	if err != nil {
		log.Fatalf("open identity store: %v", err)
	}
	defer identityStore.Close()

	usageStore, err := usagesqlite.New(cfg.UsagePath)
	if err != nil {
		log.Fatalf("open usage store: %v", err)
	}
	asyncUsage := usageasync.New(usageStore, usageasync.Config{
		Logger: logging.NewLogger(log.Writer(), "paylessd/usage"),
	})
	defer asyncUsage.Close()

	sessionStore, err := engagementsqlite.New(cfg.EngagementPath)
	if err != nil {
		log.Fatalf("open engagement store: %v", err)
	}
	defer sessionStore.Close()

	registry := buildRegistry(cfg)
	configured := registry.Configured()
	if len(configured) == 0 {
		log.Printf("no provider API keys configured; /llm/execute will reject all requests")
	} else {
		log.Printf("providers configured: %v", configured)
	}

	orchestrator := core.New(registry, ledgerStore, asyncUsage)
	orchestrator.SetLogger(logging.NewLogger(log.Writer(), "paylessd/core"))

	var authManager *auth.Manager
	if !cfg.AuthDisabled {
		authManager = auth.NewManager(cfg.AuthSecret, cfg.AuthTokenTTL)
	} else {
		log.Printf("authorization disabled: identifying callers by X-User-ID header")
	}

	tracker := engagement.NewTracker(sessionStore, ledgerStore, cfg.CreditsPerMinute)
	tracker.SetLogger(logging.NewLogger(log.Writer(), "paylessd/earn"))

	limiter := ratelimit.NewLimiter(ratelimit.Config{MinInterval: cfg.HeartbeatInterval})
	defer limiter.Close()

	rec := reconciler.New(ledgerStore, cfg.RewardsSecret, cfg.CreditsPerDollar)
	rec.SetLogger(logging.NewLogger(log.Writer(), "paylessd/rewards"))

	surveys := rewards.New(rewards.Config{
		AppID:            cfg.RewardsAppID,
		Secret:           cfg.RewardsSecret,
		BaseURL:          cfg.RewardsBaseURL,
		CreditsPerDollar: cfg.CreditsPerDollar,
	})
	if surveys.Configured() {
		log.Printf("survey rewards network configured app_id=%s", cfg.RewardsAppID)
	} else {
		log.Printf("survey rewards network not configured; /rewards/surveys disabled")
	}

	checker := buildChecker(cfg, ledgerStore, identityStore)

	httpSrv := httpserver.New(httpserver.Config{
		Orchestrator:   orchestrator,
		Ledger:         ledgerStore,
		Identity:       identityStore,
		Usage:          asyncUsage,
		Auth:           authManager,
		Tracker:        tracker,
		Limiter:        limiter,
		Reconciler:     rec,
		Surveys:        surveys,
		Checker:        checker,
		AdminKey:       cfg.AdminKey,
		WelcomeCredits: cfg.WelcomeCredits,
	})
	httpSrv.SetAuthDisabled(cfg.AuthDisabled)
	httpSrv.SetLogger(cfg.LogLevel, logging.NewLogger(log.Writer(), "paylessd/http"))

	srv := &http.Server{
		Addr:         cfg.HTTPAddress,
		Handler:      httpSrv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second, // generation calls can run long
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("payless gateway listening on %s (env=%s)", cfg.HTTPAddress, cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	<-sigs

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

func openLedgerStore(cfg config.GatewayConfig) (ledger.Store, error) {
	if dsn := strings.TrimSpace(cfg.LedgerDSN); dsn != "" {
		log.Printf("ledger backend: postgres")
		return ledgerpg.New(dsn, 25, 5, 5, 1)
	}
	log.Printf("ledger backend: sqlite path=%s", cfg.LedgerPath)
	return ledgersqlite.New(cfg.LedgerPath)
}

func openIdentityStore(cfg config.GatewayConfig) (userstore.Store, error) {
	if dsn := strings.TrimSpace(cfg.IdentityDSN); dsn != "" {
		log.Printf("identity backend: postgres")
		return userstorepg.New(dsn, userstorepg.DefaultConfig())
	}
	log.Printf("identity backend: sqlite path=%s", cfg.IdentityPath)
	return userstoresqlite.New(cfg.IdentityPath)
}

// buildRegistry registers a lazy factory per provider with a configured API
// key. Clients are only constructed on first use.
func buildRegistry(cfg config.GatewayConfig) *provider.Registry {
	registry := provider.NewRegistry()

	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		registry.Register(provider.OpenAI, func() (provider.Executor, error) {
			return provideropenai.New(provideropenai.Config{
				APIKey:         cfg.OpenAIAPIKey,
				BaseURL:        cfg.OpenAIBaseURL,
				Organization:   cfg.OpenAIOrg,
				RequestTimeout: provider.DefaultRequestTimeout,
			})
		})
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		registry.Register(provider.Anthropic, func() (provider.Executor, error) {
			return provideranthropic.New(provideranthropic.Config{
				APIKey:         cfg.AnthropicAPIKey,
				BaseURL:        cfg.AnthropicBaseURL,
				Version:        cfg.AnthropicVersion,
				RequestTimeout: provider.DefaultRequestTimeout,
			})
		})
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		registry.Register(provider.Gemini, func() (provider.Executor, error) {
			return providergemini.New(providergemini.Config{
				APIKey:         cfg.GeminiAPIKey,
				BaseURL:        cfg.GeminiBaseURL,
				RequestTimeout: provider.GeminiRequestTimeout,
			})
		})
	}
	return registry
}

func buildChecker(cfg config.GatewayConfig, entries ledger.Store, identity userstore.Store) *health.Checker {
	probes := []health.Probe{
		{Name: "ledger", Check: func(ctx context.Context) error {
			_, err := entries.Balance(ctx, "health-probe")
			return err
		}},
		{Name: "identity", Check: func(ctx context.Context) error {
			_, err := identity.FindByID(ctx, "health-probe")
			return err
		}},
	}

	upstreams := make(map[string]string)
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		upstreams["openai"] = firstNonEmpty(cfg.OpenAIBaseURL, "https://api.openai.com/v1")
	}
	if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
		upstreams["anthropic"] = firstNonEmpty(cfg.AnthropicBaseURL, "https://api.anthropic.com")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		upstreams["gemini"] = firstNonEmpty(cfg.GeminiBaseURL, "https://generativelanguage.googleapis.com")
	}

	return health.New(health.Config{Probes: probes, Upstreams: upstreams})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
