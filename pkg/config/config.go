// Package config loads process configuration from the environment. A .env
// file is honored in development (godotenv); production reads real env vars
// only and refuses to start when the hard requirements are not met.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// MinSigningSecretLength is the floor for JWT_SIGNING_SECRET.
const MinSigningSecretLength = 32

// Config is the full process configuration.
type Config struct {
	Environment string
	HTTPPort    int
	LogLevel    string

	JWTSigningSecret     string
	BillingWebhookSecret string

	// DatabaseURL empty outside production selects the in-memory store.
	DatabaseURL string
	// QueueURL empty selects the in-process queue backend.
	QueueURL string
	// CacheURL empty selects in-memory rate limiting and memoization.
	CacheURL string

	LLMAPIKey        string
	LLMBaseURL       string
	LLMModel         string
	LLMReviewerModel string

	CORSAllowOrigins []string

	// WorkerCount 0 means the pool picks its default.
	WorkerCount int
}

// Load reads the configuration. In development a .env file is loaded first;
// a missing file is not an error. The returned config is already validated.
func Load() (*Config, error) {
	env := envOrDefault("ENVIRONMENT", EnvDevelopment)
	if env != EnvProduction {
		_ = godotenv.Load()
		// .env may set ENVIRONMENT itself.
		env = envOrDefault("ENVIRONMENT", EnvDevelopment)
	}

	port, err := envIntOrDefault("HTTP_PORT", 8080)
	if err != nil {
		return nil, err
	}
	workers, err := envIntOrDefault("WORKER_COUNT", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Environment:          env,
		HTTPPort:             port,
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		JWTSigningSecret:     os.Getenv("JWT_SIGNING_SECRET"),
		BillingWebhookSecret: os.Getenv("BILLING_WEBHOOK_SECRET"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		QueueURL:             os.Getenv("QUEUE_URL"),
		CacheURL:             os.Getenv("CACHE_URL"),
		LLMAPIKey:            os.Getenv("LLM_API_KEY"),
		LLMBaseURL:           envOrDefault("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMModel:             os.Getenv("LLM_MODEL"),
		LLMReviewerModel:     os.Getenv("LLM_REVIEWER_MODEL"),
		CORSAllowOrigins:     splitOrigins(os.Getenv("CORS_ALLOW_ORIGINS")),
		WorkerCount:          workers,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the startup requirements. Development tolerates missing
// infrastructure (and falls back to in-memory substitutes); production does
// not.
func (c *Config) Validate() error {
	if len(c.JWTSigningSecret) < MinSigningSecretLength {
		return fmt.Errorf("JWT_SIGNING_SECRET must be at least %d bytes", MinSigningSecretLength)
	}
	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("ENVIRONMENT must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("HTTP_PORT out of range: %d", c.HTTPPort)
	}
	if c.WorkerCount < 0 {
		return fmt.Errorf("WORKER_COUNT must be non-negative")
	}

	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required in production")
		}
		if c.LLMAPIKey == "" {
			return fmt.Errorf("LLM_API_KEY is required in production")
		}
		if c.BillingWebhookSecret == "" {
			return fmt.Errorf("BILLING_WEBHOOK_SECRET is required in production")
		}
		for _, origin := range c.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOW_ORIGINS must not contain * in production")
			}
		}
	}
	return nil
}

// IsProduction reports whether the process runs with production rules.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func splitOrigins(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
