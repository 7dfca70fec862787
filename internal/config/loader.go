// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadConfig loads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	// Enforce UTC to prevent drift bugs between contexts.
	time.Local = time.UTC

	// godotenv.Load silently succeeds if no .env file exists and never
	// overrides existing environment variables.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	cfg.Build = NewBuildInfo()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	if err := validateCrossFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validateCrossFields checks constraints that span multiple fields and
// cannot be expressed as per-field validate tags.
func validateCrossFields(cfg *Config) error {
	if cfg.Provider.Mode == "http" && cfg.Provider.BaseURL == "" {
		return fmt.Errorf("config: PROVIDER_BASE_URL is required when PROVIDER_MODE=http")
	}
	if cfg.Thresholds.PreAlertKm >= cfg.Thresholds.ApproachKm {
		return fmt.Errorf("config: THRESHOLD_PRE_ALERT_KM (%.2f) must be below THRESHOLD_APPROACH_KM (%.2f)",
			cfg.Thresholds.PreAlertKm, cfg.Thresholds.ApproachKm)
	}
	if cfg.Thresholds.AlarmKm >= cfg.Thresholds.ApproachKm {
		return fmt.Errorf("config: THRESHOLD_ALARM_KM (%.2f) must be below THRESHOLD_APPROACH_KM (%.2f)",
			cfg.Thresholds.AlarmKm, cfg.Thresholds.ApproachKm)
	}
	return nil
}
