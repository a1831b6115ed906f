package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SITE_URL", "https://plots.example")
	t.Setenv("DATABASE_URL", "postgres://plotmarket:pw@localhost:5432/plotmarket")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("ADMIN_TOKEN", "admin-token-123")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("expected default environment local, got %q", cfg.Environment)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.Registry.MaxPlots != 48 {
		t.Errorf("expected default max plots 48, got %d", cfg.Registry.MaxPlots)
	}
	if cfg.Registry.DefaultBaseRateCents != 6800 {
		t.Errorf("expected default base rate 6800, got %d", cfg.Registry.DefaultBaseRateCents)
	}
	if cfg.Sweeper.Interval != 10*time.Minute {
		t.Errorf("expected default sweep interval 10m, got %v", cfg.Sweeper.Interval)
	}
	if len(cfg.Server.CorsAllowedOrigins) != 1 || cfg.Server.CorsAllowedOrigins[0] != "*" {
		t.Errorf("expected default CORS origins [*], got %v", cfg.Server.CorsAllowedOrigins)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_PLOTS", "96")
	t.Setenv("SWEEP_INTERVAL", "1m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Environment != "prod" {
		t.Errorf("expected environment prod, got %q", cfg.Environment)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("expected port 9000, got %q", cfg.Server.Port)
	}
	if cfg.Registry.MaxPlots != 96 {
		t.Errorf("expected max plots 96, got %d", cfg.Registry.MaxPlots)
	}
	if cfg.Sweeper.Interval != time.Minute {
		t.Errorf("expected sweep interval 1m, got %v", cfg.Sweeper.Interval)
	}
	if len(cfg.Server.CorsAllowedOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.Server.CorsAllowedOrigins)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected an error for missing DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DatabaseConfig.URL") && !strings.Contains(err.Error(), "Database.URL") {
		t.Errorf("expected the error to name the failing field, got: %v", err)
	}
}

func TestLoadConfig_InvalidEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected an error for unrecognized APP_ENV value")
	}
}

func TestLoadConfig_SecretsAreRedacted(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := cfg.Database.URL.String(); got != "[REDACTED]" {
		t.Errorf("expected redacted database URL, got %q", got)
	}
	if cfg.Billing.StripeSecretKey.Reveal() != "sk_test_123" {
		t.Error("expected Reveal to return the raw secret")
	}
}
