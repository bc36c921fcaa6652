package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/gateway.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// GatewayConfig describes runtime options for the daemon.
type GatewayConfig struct {
	Environment string
	HTTPAddress string

	// Store locations. SQLite paths are used unless a Postgres DSN is set.
	LedgerPath     string
	LedgerDSN      string
	IdentityPath   string
	IdentityDSN    string
	UsagePath      string
	EngagementPath string

	// Upstream provider credentials
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIOrg        string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	AnthropicVersion string
	GeminiAPIKey     string
	GeminiBaseURL    string

	// Auth
	AuthSecret   string
	AuthDisabled bool
	AuthTokenTTL time.Duration
	AdminKey     string

	// Engagement earning
	CreditsPerMinute  float64
	HeartbeatInterval time.Duration
	WelcomeCredits    float64

	// Survey rewards (CPX postbacks)
	RewardsAppID     string
	RewardsSecret    string
	RewardsBaseURL   string
	CreditsPerDollar float64

	// Pricing
	PricingRatesFile string

	LogFile  string
	LogLevel string
}

// LoadGatewayConfig reads the current environment and loads the appropriate
// gateway config file. A .env file at the root is applied first, then INI
// values, then PAYLESS_* environment overrides.
func LoadGatewayConfig(root string) (GatewayConfig, error) {
	if root == "" {
		root = "."
	}
	// Optional .env; absence is not an error.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	s, err := loadSettings(root)
	if err != nil {
		return GatewayConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return GatewayConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := GatewayConfig{
		Environment:    s.Environment,
		HTTPAddress:    firstNonEmpty(os.Getenv("PAYLESS_HTTP_ADDRESS"), merged["http_address"], ":8084"),
		LedgerPath:     firstNonEmpty(os.Getenv("PAYLESS_LEDGER_PATH"), merged["ledger_path"], DefaultLedgerPath()),
		LedgerDSN:      firstNonEmpty(os.Getenv("PAYLESS_LEDGER_DSN"), merged["ledger_dsn"]),
		IdentityPath:   firstNonEmpty(os.Getenv("PAYLESS_IDENTITY_PATH"), merged["identity_path"], DefaultIdentityPath()),
		IdentityDSN:    firstNonEmpty(os.Getenv("PAYLESS_IDENTITY_DSN"), merged["identity_dsn"]),
		UsagePath:      firstNonEmpty(os.Getenv("PAYLESS_USAGE_PATH"), merged["usage_path"], DefaultUsagePath()),
		EngagementPath: firstNonEmpty(os.Getenv("PAYLESS_ENGAGEMENT_PATH"), merged["engagement_path"], DefaultEngagementPath()),
		AuthSecret:     firstNonEmpty(os.Getenv("PAYLESS_AUTH_SECRET"), merged["auth_secret"], "payless-dev-secret"),
		AuthDisabled:   parseOptionalBool(firstNonEmpty(os.Getenv("PAYLESS_AUTH_DISABLED"), merged["auth_disabled"]), false),
		AdminKey:       firstNonEmpty(os.Getenv("PAYLESS_ADMIN_KEY"), merged["admin_key"]),
		LogFile:        firstNonEmpty(os.Getenv("PAYLESS_LOG_FILE"), merged["log_file"]),
		LogLevel:       firstNonEmpty(os.Getenv("PAYLESS_LOG_LEVEL"), merged["log_level"], "info"),
	}

	// Upstream provider env overrides
	cfg.OpenAIAPIKey = firstNonEmpty(os.Getenv("PAYLESS_OPENAI_API_KEY"), os.Getenv("OPENAI_API_KEY"), merged["openai_api_key"])
	cfg.OpenAIBaseURL = firstNonEmpty(os.Getenv("PAYLESS_OPENAI_BASE_URL"), merged["openai_base_url"])
	cfg.OpenAIOrg = firstNonEmpty(os.Getenv("PAYLESS_OPENAI_ORG"), merged["openai_org"])
	cfg.AnthropicAPIKey = firstNonEmpty(os.Getenv("PAYLESS_ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"), merged["anthropic_api_key"])
	cfg.AnthropicBaseURL = firstNonEmpty(os.Getenv("PAYLESS_ANTHROPIC_BASE_URL"), merged["anthropic_base_url"])
	cfg.AnthropicVersion = firstNonEmpty(os.Getenv("PAYLESS_ANTHROPIC_VERSION"), merged["anthropic_version"], "2023-06-01")
	cfg.GeminiAPIKey = firstNonEmpty(os.Getenv("PAYLESS_GEMINI_API_KEY"), os.Getenv("GEMINI_API_KEY"), merged["gemini_api_key"])
	cfg.GeminiBaseURL = firstNonEmpty(os.Getenv("PAYLESS_GEMINI_BASE_URL"), merged["gemini_base_url"])

	cfg.AuthTokenTTL = parseOptionalDuration(firstNonEmpty(os.Getenv("PAYLESS_AUTH_TOKEN_TTL"), merged["auth_token_ttl"]), 24*time.Hour)

	cfg.CreditsPerMinute = parseOptionalFloat(firstNonEmpty(os.Getenv("PAYLESS_CREDITS_PER_MINUTE"), merged["credits_per_minute"]), 10)
	cfg.HeartbeatInterval = parseOptionalDuration(firstNonEmpty(os.Getenv("PAYLESS_HEARTBEAT_INTERVAL"), merged["heartbeat_interval"]), 25*time.Second)
	cfg.WelcomeCredits = parseOptionalFloat(firstNonEmpty(os.Getenv("PAYLESS_WELCOME_CREDITS"), merged["welcome_credits"]), 0)

	cfg.RewardsAppID = firstNonEmpty(os.Getenv("PAYLESS_REWARDS_APP_ID"), merged["rewards_app_id"])
	cfg.RewardsSecret = firstNonEmpty(os.Getenv("PAYLESS_REWARDS_SECRET"), merged["rewards_secret"])
	cfg.RewardsBaseURL = firstNonEmpty(os.Getenv("PAYLESS_REWARDS_BASE_URL"), merged["rewards_base_url"])
	cfg.CreditsPerDollar = parseOptionalFloat(firstNonEmpty(os.Getenv("PAYLESS_CREDITS_PER_DOLLAR"), merged["credits_per_dollar"]), 100)

	cfg.PricingRatesFile = firstNonEmpty(os.Getenv("PAYLESS_PRICING_RATES_FILE"), merged["pricing_rates_file"])

	if cfg.CreditsPerMinute < 0 {
		return GatewayConfig{}, fmt.Errorf("credits_per_minute must be non-negative, got %v", cfg.CreditsPerMinute)
	}
	if cfg.CreditsPerDollar <= 0 {
		return GatewayConfig{}, fmt.Errorf("credits_per_dollar must be positive, got %v", cfg.CreditsPerDollar)
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalFloat(v string, fallback float64) float64 {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
		return parsed
	}
	return fallback
}

func parseOptionalDuration(v string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultLedgerPath returns the fallback ledger location under the user's home directory.
func DefaultLedgerPath() string {
	return defaultDataPath("ledger.db")
}

// DefaultIdentityPath returns the fallback identity database path.
func DefaultIdentityPath() string {
	return defaultDataPath("identity.db")
}

// DefaultUsagePath returns the fallback usage database path.
func DefaultUsagePath() string {
	return defaultDataPath("usage.db")
}

// DefaultEngagementPath returns the fallback engagement session database path.
func DefaultEngagementPath() string {
	return defaultDataPath("engagement.db")
}

func defaultDataPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".payless", name)
}
