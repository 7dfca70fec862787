// Package config defines the global configuration for the trainwatch
// processes. Configuration is loaded once at process initialization and is
// immutable thereafter, following 12-Factor principles: OS environment
// (highest) over dotenv file. Any missing required value or invalid format
// fails the process immediately on startup.
package config

import (
	"time"

	"trainwatch/internal/types"
)

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	// System metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"trainwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain configurations
	Server     ServerConfig
	Database   DatabaseConfig
	AWS        AWSConfig
	Provider   ProviderConfig
	Alerting   AlertingConfig
	Thresholds ThresholdConfig
	Sampling   SamplingConfig
	Simulation SimulationConfig

	// Build metadata, injected via ldflags rather than the environment.
	Build BuildInfo
}

// BuildInfo carries the compile-time identity of the binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// ServerConfig holds the bridge HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds route cache database connection and pool tuning.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"omitempty,url"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	AlertQueueURL   string `envconfig:"SQS_ALERTS" validate:"omitempty,url"`
	ControlQueueURL string `envconfig:"SQS_CONTROL" validate:"omitempty,url"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"TrainWatch"`

	// LocalStack support, empty in production.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// ProviderConfig holds route provider selection and tuning.
type ProviderConfig struct {
	// Mode selects the route source: "http" for the upstream rail-data API,
	// "demo" for the built-in offline route.
	Mode      string        `envconfig:"PROVIDER_MODE" default:"demo" validate:"oneof=demo http"`
	BaseURL   string        `envconfig:"PROVIDER_BASE_URL" validate:"omitempty,url"`
	Timeout   time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"10s"`
	UserAgent string        `envconfig:"PROVIDER_USER_AGENT" default:"TrainWatch/1.0"`
}

// AlertingConfig holds background worker rendering settings.
type AlertingConfig struct {
	// NotifyEndpoint receives rendered alerts as HTTP POSTs. When empty the
	// worker keeps alerts in memory only.
	NotifyEndpoint string        `envconfig:"NOTIFY_ENDPOINT" validate:"omitempty,url"`
	NotifyTimeout  time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
}

// ThresholdConfig holds the alarm distance thresholds and snooze settings.
// Distances are kilometers from the relevant station.
type ThresholdConfig struct {
	ApproachKm      float64       `envconfig:"THRESHOLD_APPROACH_KM" default:"15" validate:"gt=0"`
	PreAlertKm      float64       `envconfig:"THRESHOLD_PRE_ALERT_KM" default:"0.5" validate:"gt=0"`
	AlarmKm         float64       `envconfig:"THRESHOLD_ALARM_KM" default:"2" validate:"gt=0"`
	Snooze          time.Duration `envconfig:"SNOOZE_DURATION" default:"2m" validate:"gt=0"`
	DebounceSamples int           `envconfig:"DEBOUNCE_SAMPLES" default:"0" validate:"gte=0"`
}

// SamplingConfig holds the adaptive position sampling settings.
type SamplingConfig struct {
	// HighAccuracyWithinKm is the destination distance below which the
	// sampler switches to the high accuracy profile.
	HighAccuracyWithinKm float64 `envconfig:"HIGH_ACCURACY_WITHIN_KM" default:"50" validate:"gt=0"`
}

// SimulationConfig holds simulated playback settings.
type SimulationConfig struct {
	BaseTickInterval time.Duration `envconfig:"SIM_TICK_INTERVAL" default:"1s" validate:"gt=0"`
	StepsPerSegment  int           `envconfig:"SIM_STEPS_PER_SEGMENT" default:"100" validate:"gt=0"`
	SpeedMultiplier  float64       `envconfig:"SIM_SPEED_MULTIPLIER" default:"1" validate:"gt=0"`
}

// Thresholds converts the loaded threshold settings to the domain type.
func (c ThresholdConfig) Thresholds() types.Thresholds {
	return types.Thresholds{
		ApproachKm:      c.ApproachKm,
		PreAlertKm:      c.PreAlertKm,
		AlarmKm:         c.AlarmKm,
		Snooze:          c.Snooze,
		DebounceSamples: c.DebounceSamples,
	}
}

// Params converts the loaded simulation settings to the domain type.
func (c SimulationConfig) Params() types.SimulationParams {
	return types.SimulationParams{
		BaseTickInterval: c.BaseTickInterval,
		StepsPerSegment:  c.StepsPerSegment,
		SpeedMultiplier:  c.SpeedMultiplier,
	}
}
