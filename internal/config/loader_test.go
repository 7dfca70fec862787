package config

import (
	"strings"
	"testing"
	"time"

	"trainwatch/internal/types"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Environment != "local" {
		t.Errorf("environment = %s", cfg.Environment)
	}
	if cfg.Provider.Mode != "demo" {
		t.Errorf("provider mode = %s", cfg.Provider.Mode)
	}
	if cfg.AWS.MetricNamespace != "TrainWatch" {
		t.Errorf("metric namespace = %s", cfg.AWS.MetricNamespace)
	}
	if cfg.Build.Version != "dev" {
		t.Errorf("build version = %s", cfg.Build.Version)
	}

	th := cfg.Thresholds.Thresholds()
	want := types.DefaultThresholds()
	if th != want {
		t.Errorf("thresholds = %+v, want defaults %+v", th, want)
	}

	sim := cfg.Simulation.Params()
	if sim.BaseTickInterval != time.Second || sim.StepsPerSegment != 100 || sim.SpeedMultiplier != 1 {
		t.Errorf("simulation params = %+v", sim)
	}
	if cfg.Sampling.HighAccuracyWithinKm != 50 {
		t.Errorf("high accuracy radius = %f", cfg.Sampling.HighAccuracyWithinKm)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("THRESHOLD_ALARM_KM", "3.5")
	t.Setenv("SNOOZE_DURATION", "90s")
	t.Setenv("PROVIDER_MODE", "http")
	t.Setenv("PROVIDER_BASE_URL", "https://rail.example.com/api")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Thresholds.AlarmKm != 3.5 {
		t.Errorf("alarm km = %f", cfg.Thresholds.AlarmKm)
	}
	if cfg.Thresholds.Snooze != 90*time.Second {
		t.Errorf("snooze = %v", cfg.Thresholds.Snooze)
	}
	if cfg.Provider.Mode != "http" || cfg.Provider.BaseURL != "https://rail.example.com/api" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
}

func TestLoadConfig_RejectsInvalidEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production-ish")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfig_HTTPModeRequiresBaseURL(t *testing.T) {
	t.Setenv("PROVIDER_MODE", "http")
	t.Setenv("PROVIDER_BASE_URL", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "PROVIDER_BASE_URL") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadConfig_RejectsInvertedThresholds(t *testing.T) {
	t.Setenv("THRESHOLD_PRE_ALERT_KM", "20")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for pre-alert above approach threshold")
	}
}
