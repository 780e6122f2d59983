package config

import (
	"os"
	"path/filepath"
	"testing"

	"afmfusion/pkg/registration"
)

// TestDefaultConfig verifies the baked-in defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Input.CAFMChannel != "current" {
		t.Errorf("Expected default cAFM channel %q, got %q", "current", cfg.Input.CAFMChannel)
	}
	if !cfg.Input.FlattenScalar {
		t.Error("Scalar-channel flattening should default to on")
	}
	if cfg.Decomposition.Components != 10 {
		t.Errorf("Expected 10 default components, got %d", cfg.Decomposition.Components)
	}
	if cfg.Regression.MaxPredictors != 10 || !cfg.Regression.Intercept {
		t.Errorf("Unexpected regression defaults: %d predictors, intercept %v",
			cfg.Regression.MaxPredictors, cfg.Regression.Intercept)
	}
	if cfg.Unmixing.Endmembers != 4 || cfg.Unmixing.Seed != 1 {
		t.Errorf("Unexpected unmixing defaults: %d endmembers, seed %d",
			cfg.Unmixing.Endmembers, cfg.Unmixing.Seed)
	}

	opts, err := cfg.RegistrationOptions()
	if err != nil {
		t.Fatalf("Default registration options should be valid: %v", err)
	}
	if opts.Metric != registration.CrossCorrelation || opts.Interp != registration.Linear {
		t.Error("Default registration options should be cross-correlation with linear interpolation")
	}
}

// TestLoadConfigMissingFile verifies the fallback to defaults.
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig should fall back to defaults, got %v", err)
	}
	if cfg.Decomposition.Components != DefaultConfig().Decomposition.Components {
		t.Error("Missing config file should yield the default configuration")
	}
}

// TestSaveLoadConfig verifies the YAML round trip.
func TestSaveLoadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Input.CAFMChannel = "topography"
	cfg.Input.FlattenScalar = false
	cfg.Input.LaserPower = 3.5
	cfg.Registration.Metric = "mutual-information"
	cfg.Registration.Interpolation = "cubic"
	cfg.Decomposition.Components = 7
	cfg.Unmixing.Seed = 99
	cfg.Output.SaveIntermediaryResults = true

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loaded.Input.CAFMChannel != "topography" || loaded.Input.LaserPower != 3.5 {
		t.Error("Input section did not survive the round trip")
	}
	if loaded.Input.FlattenScalar {
		t.Error("Disabled scalar flattening did not survive the round trip")
	}
	if loaded.Registration.Metric != "mutual-information" || loaded.Registration.Interpolation != "cubic" {
		t.Error("Registration section did not survive the round trip")
	}
	if loaded.Decomposition.Components != 7 || loaded.Unmixing.Seed != 99 {
		t.Error("Analysis sections did not survive the round trip")
	}
	if !loaded.Output.SaveIntermediaryResults {
		t.Error("Output section did not survive the round trip")
	}
}

// TestLoadConfigMalformed verifies the parse failure path.
func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("input: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

// TestRegistrationOptions verifies the string-to-option conversion and
// its rejection of unknown values.
func TestRegistrationOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Registration.Metric = "mutual-information"
	cfg.Registration.Interpolation = "nearest"
	cfg.Registration.MaxIterations = 123
	cfg.Registration.MinDet = 0.5

	opts, err := cfg.RegistrationOptions()
	if err != nil {
		t.Fatalf("RegistrationOptions failed: %v", err)
	}
	if opts.Metric != registration.MutualInformation {
		t.Error("Expected mutual information metric")
	}
	if opts.Interp != registration.Nearest {
		t.Error("Expected nearest-neighbor interpolation")
	}
	if opts.MaxIterations != 123 || opts.MinDet != 0.5 {
		t.Errorf("Numeric options not carried over: %+v", opts)
	}

	cfg.Registration.Metric = "phase-correlation"
	if _, err := cfg.RegistrationOptions(); err == nil {
		t.Error("Expected error for unknown metric")
	}

	cfg.Registration.Metric = "cross-correlation"
	cfg.Registration.Interpolation = "quintic"
	if _, err := cfg.RegistrationOptions(); err == nil {
		t.Error("Expected error for unknown interpolation order")
	}
}
