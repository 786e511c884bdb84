package config

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Environment:      EnvDevelopment,
		HTTPPort:         8080,
		LogLevel:         "info",
		JWTSigningSecret: strings.Repeat("s", MinSigningSecretLength),
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SIGNING_SECRET", strings.Repeat("s", 32))
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("HTTP_PORT", "")
	t.Setenv("CORS_ALLOW_ORIGINS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "https://api.openai.com/v1", cfg.LLMBaseURL)
	assert.Equal(t, 0, cfg.WorkerCount)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ParsesOrigins(t *testing.T) {
	t.Setenv("JWT_SIGNING_SECRET", strings.Repeat("s", 32))
	t.Setenv("CORS_ALLOW_ORIGINS", "https://app.example.com, https://admin.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.CORSAllowOrigins)
}

func TestValidate(t *testing.T) {
	t.Run("valid development config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("short signing secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.JWTSigningSecret = "short"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JWT_SIGNING_SECRET")
	})

	t.Run("unknown environment", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = "staging"
		assert.Error(t, cfg.Validate())
	})

	t.Run("port out of range", func(t *testing.T) {
		cfg := validConfig()
		cfg.HTTPPort = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires database url", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvProduction
		cfg.LLMAPIKey = "key"
		cfg.BillingWebhookSecret = "whsec"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("production requires llm api key", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvProduction
		cfg.DatabaseURL = "postgres://localhost/boardroom"
		cfg.BillingWebhookSecret = "whsec"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "LLM_API_KEY")
	})

	t.Run("production requires billing webhook secret", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvProduction
		cfg.DatabaseURL = "postgres://localhost/boardroom"
		cfg.LLMAPIKey = "key"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "BILLING_WEBHOOK_SECRET")
	})

	t.Run("production rejects wildcard cors", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvProduction
		cfg.DatabaseURL = "postgres://localhost/boardroom"
		cfg.LLMAPIKey = "key"
		cfg.BillingWebhookSecret = "whsec"
		cfg.CORSAllowOrigins = []string{"*"}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CORS_ALLOW_ORIGINS")
	})

	t.Run("full production config passes", func(t *testing.T) {
		cfg := validConfig()
		cfg.Environment = EnvProduction
		cfg.DatabaseURL = "postgres://localhost/boardroom"
		cfg.LLMAPIKey = "key"
		cfg.BillingWebhookSecret = "whsec"
		cfg.CORSAllowOrigins = []string{"https://app.example.com"}
		assert.NoError(t, cfg.Validate())
	})
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"unknown": slog.LevelInfo,
	}
	for raw, want := range cases {
		cfg := validConfig()
		cfg.LogLevel = raw
		assert.Equal(t, want, cfg.SlogLevel(), "level %q", raw)
	}
}
