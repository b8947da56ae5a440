// Package config provides configuration loading and management for the lulinks API.
// It handles environment variable parsing and provides default values for all settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// init loads environment variables from .env files during package initialization.
// godotenv.Load() does not override already-set environment variables,
// preserving OS env > .env.local > .env precedence.
func init() {
	// Load .env.local first so local overrides win over the shared file
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Load(".env.local"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env.local file: %v\n", err)
		}
	}

	// Load .env file if it exists (for shared development config)
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
		}
	}
}

// envPrefix is prepended to every variable name below.
const envPrefix = "LULINKS_"

// Firebase secure-token endpoints used when only a project id is configured.
const (
	firebaseIssuerBase = "https://securetoken.google.com/"
	firebaseJWKSURL    = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
)

// defaultCORSOrigins are the front-ends that historically consumed this API.
var defaultCORSOrigins = []string{
	"http://localhost:4200",
	"https://lulinks-7e45f.web.app",
	"https://demindly.web.app",
}

// Config captures environment-driven settings for the lulinks API.
type Config struct {
	Env  string `env:"ENV" envDefault:"dev"`   // Deployment environment (dev, staging, prod)
	Port string `env:"PORT" envDefault:"8080"` // HTTP server port

	DatabaseDSN string `env:"DB_DSN"`    // PostgreSQL connection string; empty selects the in-memory store
	RedisURL    string `env:"REDIS_URL"` // Redis URL for statistics counters; empty uses the document store
	NATSURL     string `env:"NATS_URL"`  // NATS server URL; empty disables event publishing

	// Identity provider
	FirebaseProjectID string        `env:"FIREBASE_PROJECT_ID"` // Derives issuer, audience and JWKS URL when set
	AuthIssuer        string        `env:"AUTH_ISSUER"`         // Expected token issuer
	AuthAudience      string        `env:"AUTH_AUDIENCE"`       // Expected token audience
	AuthJWKSURL       string        `env:"AUTH_JWKS_URL"`       // Key set used to verify token signatures
	JWKSCacheTTL      time.Duration `env:"JWKS_CACHE_TTL" envDefault:"5m"`

	// HTTP
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	StatsRateLimit     int           `env:"STATS_RATE_LIMIT" envDefault:"120"` // statistics events per IP per minute, 0 disables
	ReadTimeout        time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout       time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes       int64         `env:"MAX_BODY_BYTES" envDefault:"1048576"`
}

// Load reads environment variables and produces a Config suitable for wiring the service.
// Returns an error if required parameters are missing or invalid.
func Load() (Config, error) {
	cfg := Config{}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	// Firebase projects publish a fixed issuer/audience pair
	if cfg.FirebaseProjectID != "" {
		if cfg.AuthIssuer == "" {
			cfg.AuthIssuer = firebaseIssuerBase + cfg.FirebaseProjectID
		}
		if cfg.AuthAudience == "" {
			cfg.AuthAudience = cfg.FirebaseProjectID
		}
		if cfg.AuthJWKSURL == "" {
			cfg.AuthJWKSURL = firebaseJWKSURL
		}
	}
	if cfg.AuthJWKSURL == "" && cfg.AuthIssuer != "" {
		cfg.AuthJWKSURL = strings.TrimSuffix(cfg.AuthIssuer, "/") + "/.well-known/jwks.json"
	}

	cfg.CORSAllowedOrigins = trimList(cfg.CORSAllowedOrigins)
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = append([]string(nil), defaultCORSOrigins...)
	}

	// Validate required parameters
	if cfg.AuthIssuer == "" {
		return cfg, fmt.Errorf("%sAUTH_ISSUER or %sFIREBASE_PROJECT_ID is required", envPrefix, envPrefix)
	}
	if cfg.AuthAudience == "" {
		return cfg, fmt.Errorf("%sAUTH_AUDIENCE or %sFIREBASE_PROJECT_ID is required", envPrefix, envPrefix)
	}
	if cfg.StatsRateLimit < 0 {
		return cfg, fmt.Errorf("%sSTATS_RATE_LIMIT must not be negative", envPrefix)
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs with development defaults.
func (c Config) IsDevelopment() bool {
	return c.Env == "dev"
}

// trimList drops blanks and surrounding whitespace from a comma-split list
func trimList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
