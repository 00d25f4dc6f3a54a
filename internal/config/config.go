package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config carries every environment-driven setting the server needs.
// Load validates the required values once at startup so a missing
// secret fails fast instead of surfacing as a 500 mid-request.
type Config struct {
	// Environment is "development" or "production".
	Environment string

	// Port the HTTP server listens on.
	Port string

	// JWTSecret signs session tokens (HS256).
	JWTSecret string

	// SessionSecret verifies HMAC signatures on host handshake
	// payloads. Optional: when empty, signature checks are skipped.
	SessionSecret string

	// SessionTTL is how long issued session tokens stay valid.
	SessionTTL time.Duration

	// CommonGroundBaseURL is the host platform origin used to build
	// share-link redirect targets.
	CommonGroundBaseURL string

	// PublicBaseURL is this server's externally reachable origin.
	// Minted share URLs start with it.
	PublicBaseURL string

	// EthRPCURL and LuksoRPCURL point at JSON-RPC endpoints for the
	// two gating chains. Verification endpoints return 503 when the
	// relevant URL is unset.
	EthRPCURL   string
	LuksoRPCURL string

	// Telegram bot settings. Empty BotToken disables the bot.
	TelegramBotToken      string
	TelegramWebhookSecret string
	TelegramBotName       string

	// S3 settings for community background uploads. Empty Bucket
	// disables the upload endpoint.
	S3Region  string
	S3Bucket  string
	S3BaseURL string
	S3ACL     string

	// AllowedOrigins gates CORS. Comma-separated list; empty means
	// same-origin only in production and * in development.
	AllowedOrigins []string
}

// Load reads and validates configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:           getEnv("GO_ENV", "development"),
		Port:                  getEnv("PORT", "8080"),
		JWTSecret:             os.Getenv("JWT_SECRET"),
		SessionSecret:         os.Getenv("CURIA_SESSION_SECRET"),
		SessionTTL:            24 * time.Hour,
		CommonGroundBaseURL:   getEnv("COMMON_GROUND_BASE_URL", "https://app.cg"),
		PublicBaseURL:         getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		EthRPCURL:             os.Getenv("ETH_RPC_URL"),
		LuksoRPCURL:           os.Getenv("LUKSO_RPC_URL"),
		TelegramBotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookSecret: os.Getenv("TELEGRAM_WEBHOOK_SECRET"),
		TelegramBotName:       getEnv("TELEGRAM_BOT_NAME", "curia_notify_bot"),
		S3Region:              getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:              os.Getenv("AWS_BUCKET"),
		S3BaseURL:             os.Getenv("CDN_BASE_URL"),
		S3ACL:                 os.Getenv("S3_ACL"),
	}

	if cfg.S3Bucket != "" && cfg.S3BaseURL == "" {
		cfg.S3BaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.S3Region)
	}

	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TTL %q: %w", ttl, err)
		}
		cfg.SessionTTL = d
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
			}
		}
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("JWT_SECRET is required in production")
		}
		cfg.JWTSecret = "dev-secret-do-not-use-in-production"
	}

	if cfg.TelegramBotToken != "" && cfg.TelegramWebhookSecret == "" {
		return nil, fmt.Errorf("TELEGRAM_WEBHOOK_SECRET is required when TELEGRAM_BOT_TOKEN is set")
	}

	return cfg, nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// TelegramEnabled reports whether bot features should be wired up.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// S3Enabled reports whether the background upload endpoint should be wired up.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
