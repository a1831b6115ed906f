// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs in rental-end arithmetic.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig resolves and validates the full service configuration.
// It fails fast: any missing required value or invalid format returns an
// error and the caller is expected to abort startup.
func LoadConfig() (*Config, error) {
	// All rental-end comparisons assume UTC; pin the process timezone so a
	// misconfigured host cannot shift expiry boundaries.
	time.Local = time.UTC
	os.Setenv("TZ", "UTC")

	// Best-effort .env for local development. A missing file is normal in
	// deployed environments.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateConfig runs struct-tag validation over the populated config and
// renders a readable error naming every failing field.
func validateConfig(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config validation failed: field %s violates rule %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
