// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	RedisURL string        `env:"REDIS_URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"30s"`

	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	BcryptCost     int           `env:"BCRYPT_COST" envDefault:"10"`

	StartingBalanceCents int64 `env:"STARTING_BALANCE_CENTS" envDefault:"1000000"`
	MaxSharesPerTrade    int64 `env:"MAX_SHARES_PER_TRADE" envDefault:"10000"`

	CORSOrigins []string   `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Parse reads configuration from the given variables only.
func Parse(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ValidateServer checks the settings the HTTP server cannot run without.
func (c *Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("BCRYPT_COST must be between 4 and 31")
	}
	if c.StartingBalanceCents < 0 {
		return errors.New("STARTING_BALANCE_CENTS must not be negative")
	}
	if c.MaxSharesPerTrade < 1 {
		return errors.New("MAX_SHARES_PER_TRADE must be at least 1")
	}
	return nil
}
