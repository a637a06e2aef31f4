package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Rate limiter backends selectable at deploy time.
const (
	RateLimitMemory   = "memory"
	RateLimitPostgres = "postgres"
)

// Config carries all runtime settings, sourced from environment variables.
type Config struct {
	Addr        string
	PostgresDSN string

	AuthSecret string
	TokenTTL   time.Duration

	RateLimitWindow  time.Duration
	RateLimitMax     int
	RateLimitBackend string

	UploadDir string
}

// FromEnv builds a Config from EQUIPTRACK_* environment variables,
// applying defaults for everything except the auth secret and DSN.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:             envOr("EQUIPTRACK_ADDR", ":8080"),
		PostgresDSN:      os.Getenv("EQUIPTRACK_PG_DSN"),
		AuthSecret:       os.Getenv("EQUIPTRACK_AUTH_SECRET"),
		TokenTTL:         7 * 24 * time.Hour,
		RateLimitWindow:  15 * time.Minute,
		RateLimitMax:     100,
		RateLimitBackend: envOr("EQUIPTRACK_RATE_LIMIT_BACKEND", RateLimitMemory),
		UploadDir:        envOr("EQUIPTRACK_UPLOAD_DIR", "uploads"),
	}

	if raw := os.Getenv("EQUIPTRACK_TOKEN_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: invalid EQUIPTRACK_TOKEN_TTL %q", raw)
		}
		cfg.TokenTTL = d
	}
	if raw := os.Getenv("EQUIPTRACK_RATE_LIMIT_WINDOW"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Config{}, fmt.Errorf("config: invalid EQUIPTRACK_RATE_LIMIT_WINDOW %q", raw)
		}
		cfg.RateLimitWindow = d
	}
	if raw := os.Getenv("EQUIPTRACK_RATE_LIMIT_MAX"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: invalid EQUIPTRACK_RATE_LIMIT_MAX %q", raw)
		}
		cfg.RateLimitMax = n
	}

	switch cfg.RateLimitBackend {
	case RateLimitMemory, RateLimitPostgres:
	default:
		return Config{}, fmt.Errorf("config: unknown rate limit backend %q", cfg.RateLimitBackend)
	}
	if cfg.RateLimitBackend == RateLimitPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("config: postgres rate limit backend requires EQUIPTRACK_PG_DSN")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
