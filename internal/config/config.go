// Package config centralises runtime configuration, read once at startup
// from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the server needs to start. Defaults suit local
// development; production overrides via the environment.
type Config struct {
	Port   int    `env:"PORT"    envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"data/platform.db"`

	// JWTSecret must be at least 32 bytes of random data in production:
	// JWT_SECRET=$(openssl rand -hex 32)
	JWTSecret string `env:"JWT_SECRET"`

	RedisAddr string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	OTPTTL    time.Duration `env:"OTP_TTL"    envDefault:"5m"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`
}

// Load parses the environment into a Config and fills in derived defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing environment: %w", err)
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: JWT_SECRET is required")
	}

	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/auth/google/callback", cfg.Port)
	}

	return cfg, nil
}
