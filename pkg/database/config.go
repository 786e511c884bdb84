package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the Postgres connection settings.
type Config struct {
	// URL is a pgx connection string (postgres://...).
	URL string

	// Connection pool settings.
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfigFromEnv reads the database configuration from the environment.
// DATABASE_URL must be set; pool knobs fall back to sane defaults.
func LoadConfigFromEnv() (Config, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is not set")
	}

	maxConns, err := envInt32("DB_MAX_CONNS", 10)
	if err != nil {
		return Config{}, err
	}
	minConns, err := envInt32("DB_MIN_CONNS", 2)
	if err != nil {
		return Config{}, err
	}

	return Config{
		URL:             url,
		MaxConns:        maxConns,
		MinConns:        minConns,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}, nil
}

func envInt32(key string, def int32) (int32, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return int32(n), nil
}
