package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultSandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
	DefaultProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
)

// ErrMissingSharedSecret is returned by Load when APPLE_SHARED_SECRET is unset.
var ErrMissingSharedSecret = errors.New("APPLE_SHARED_SECRET is required")

type Config struct {
	// Server configuration
	Port        string
	Mode        string
	Environment string

	// Database configuration
	DatabaseURL string
	SQLitePath  string

	// Redis configuration (optional)
	RedisURL        string
	PremiumCacheTTL time.Duration

	// Apple verifyReceipt configuration
	AppleSharedSecret  string
	AppleSandboxURL    string
	AppleProductionURL string
	AppleTimeout       time.Duration
	AppleRetryDelay    time.Duration

	// Admin and rate limiting
	AdminAPIKey       string
	RateLimitRequests int
	RateLimitPeriod   time.Duration

	// App backend webhook
	WebhookCallbackURL string
	WebhookSecret      string

	// Brevo ops alerts
	BrevoAPIKey    string
	BrevoFromEmail string
	BrevoFromName  string
	AlertEmail     string
}

// IsProduction reports whether ENV=production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsePostgres reports whether a Postgres DSN was configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

// AlertsEnabled reports whether the Brevo alert mailer has everything it needs.
func (c *Config) AlertsEnabled() bool {
	return c.BrevoAPIKey != "" && c.BrevoFromEmail != "" && c.AlertEmail != ""
}

// Load reads configuration from the environment, after loading .env if present.
// A missing shared secret is a fatal startup condition.
func Load() (*Config, error) {
	// Ignore error if .env file doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Mode:               getEnv("GIN_MODE", "debug"),
		Environment:        strings.ToLower(getEnv("ENV", "development")),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLitePath:         getEnv("SQLITE_PATH", "receipt-api.db"),
		RedisURL:           getEnv("REDIS_URL", ""),
		PremiumCacheTTL:    getEnvDuration("PREMIUM_CACHE_TTL", time.Minute),
		AppleSharedSecret:  getEnv("APPLE_SHARED_SECRET", ""),
		AppleSandboxURL:    getEnv("APPLE_SANDBOX_URL", DefaultSandboxURL),
		AppleProductionURL: getEnv("APPLE_PRODUCTION_URL", DefaultProductionURL),
		AppleTimeout:       getEnvDuration("APPLE_TIMEOUT", 30*time.Second),
		AppleRetryDelay:    getEnvDuration("APPLE_RETRY_DELAY", 3*time.Second),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		RateLimitRequests:  getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitPeriod:    getEnvDuration("RATE_LIMIT_PERIOD", time.Minute),
		WebhookCallbackURL: getEnv("WEBHOOK_CALLBACK_URL", ""),
		WebhookSecret:      getEnv("WEBHOOK_SECRET", ""),
		BrevoAPIKey:        getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail:     getEnv("BREVO_FROM_EMAIL", ""),
		BrevoFromName:      getEnv("BREVO_FROM_NAME", "Receipt API"),
		AlertEmail:         getEnv("ALERT_EMAIL", ""),
	}

	if cfg.AppleSharedSecret == "" {
		return nil, ErrMissingSharedSecret
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d >= 0 {
			return d
		}
	}
	return defaultValue
}
