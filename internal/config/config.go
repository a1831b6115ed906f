// Package config defines the global configuration structure for the
// PlotMarket service. Configuration is loaded once at process initialization
// and is immutable thereafter. It follows 12-Factor App principles by
// strictly separating code from configuration.
//
// Values are resolved from the OS environment, with an optional .env file for
// local development. Any missing required value or invalid format causes the
// application to fail immediately on startup.
package config

import (
	"time"

	"plotmarket/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the PlotMarket service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Billing  BillingConfig
	Registry RegistryConfig
	Sweeper  SweeperConfig
	Admin    AdminConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public site URL used to build checkout redirect targets (no trailing slash).
	SiteURL            string   `envconfig:"SITE_URL" validate:"required,url"`
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds payment provider credentials and webhook settings.
type BillingConfig struct {
	StripeSecretKey SecretString `envconfig:"STRIPE_SECRET_KEY" validate:"required"`
	// WebhookSecret is the shared secret for inbound event signature
	// verification. Every webhook payload is authenticated against it
	// before any parsing.
	WebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET" validate:"required"`
	// Override for testing; defaults to the public Stripe API base.
	APIBaseURL string `envconfig:"STRIPE_API_BASE_URL"`
}

// RegistryConfig bounds the plot space and sets default pricing.
type RegistryConfig struct {
	// MaxPlots is the highest valid plot id (ids run 1..MaxPlots).
	MaxPlots int `envconfig:"MAX_PLOTS" default:"48" validate:"min=1"`
	// DefaultBaseRateCents is the fallback base monthly rate when a checkout
	// request does not carry one.
	DefaultBaseRateCents int64 `envconfig:"DEFAULT_BASE_RATE_CENTS" default:"6800" validate:"min=1"`
}

// SweeperConfig tunes the background expiry sweep.
type SweeperConfig struct {
	Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"10m" validate:"min=1s"`
}

// AdminConfig guards the trusted synchronous bypass path.
type AdminConfig struct {
	// Token authorizes the admin endpoints (mark-sold, renew, reset).
	// Compared in constant time; never logged.
	Token SecretString `envconfig:"ADMIN_TOKEN" validate:"required"`
}
