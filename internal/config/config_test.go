package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/atmx/college-market/internal/config"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse(map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.CacheTTL != 30*time.Second || cfg.AccessTokenTTL != 30*time.Minute {
		t.Errorf("unexpected durations: cache=%s token=%s", cfg.CacheTTL, cfg.AccessTokenTTL)
	}
	if cfg.StartingBalanceCents != 1_000_000 || cfg.MaxSharesPerTrade != 10_000 {
		t.Errorf("unexpected trading defaults: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("expected info level, got %s", cfg.LogLevel)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("expected empty DATABASE_URL, got %q", cfg.DatabaseURL)
	}
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := config.Parse(map[string]string{
		"PORT":                 "9000",
		"JWT_SECRET":           "s3cret",
		"CACHE_TTL":            "1m",
		"MAX_SHARES_PER_TRADE": "500",
		"CORS_ORIGINS":         "http://a.test,http://b.test",
		"LOG_LEVEL":            "debug",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9000" || cfg.JWTSecret != "s3cret" || cfg.CacheTTL != time.Minute || cfg.MaxSharesPerTrade != 500 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("unexpected CORS origins: %v", cfg.CORSOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("expected debug level, got %s", cfg.LogLevel)
	}
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("expected valid server config, got %v", err)
	}
}

func TestParse_BadValue(t *testing.T) {
	if _, err := config.Parse(map[string]string{"MAX_SHARES_PER_TRADE": "lots"}); err == nil {
		t.Error("expected error for non-numeric MAX_SHARES_PER_TRADE")
	}
}

func TestValidateServer_RequiresSecret(t *testing.T) {
	cfg, err := config.Parse(map[string]string{})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected missing JWT_SECRET to be rejected")
	}
}

func TestBcryptCost(t *testing.T) {
	cfg, err := config.Parse(map[string]string{"JWT_SECRET": "s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BcryptCost != 10 {
		t.Errorf("expected default cost 10, got %d", cfg.BcryptCost)
	}

	cfg, err = config.Parse(map[string]string{"JWT_SECRET": "s3cret", "BCRYPT_COST": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected BCRYPT_COST below 4 to be rejected")
	}
}
