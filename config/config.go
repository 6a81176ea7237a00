// Package config loads server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// minSecretLen is the shortest JWT signing secret accepted.
const minSecretLen = 16

// Config holds every tunable of the API server and its tools.
type Config struct {
	Addr string `env:"ADDR" envDefault:":10000"`

	DatabaseDSN    string        `env:"DATABASE_DSN" envDefault:"file:campusconnect.db"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"1"`
	DBQueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"5s"`
	DBSlowQuery    time.Duration `env:"DB_SLOW_QUERY" envDefault:"200ms"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"168h"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"campusconnect"`

	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`

	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"10s"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `env:"OTEL_SERVICE_NAME" envDefault:"campusconnect-api"`
}

// Load parses the environment into a Config. It does not validate it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate reports the first setting that would keep the server from running safely.
func (c Config) Validate() error {
	if len(strings.TrimSpace(c.JWTSecret)) < minSecretLen {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen)
	}
	if c.JWTTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("REQUEST_TIMEOUT must be positive")
	}
	if c.RateLimitRequests < 0 {
		return errors.New("RATE_LIMIT_REQUESTS must not be negative")
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
