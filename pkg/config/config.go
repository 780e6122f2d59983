// Package config provides configuration loading and management for
// afmfusion. It handles loading configuration from YAML files and
// provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"afmfusion/pkg/registration"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Input parameters
	Input struct {
		// CAFMChannel selects the scalar channel by caption substring
		CAFMChannel string `yaml:"cafmChannel"`

		// FlattenScalar removes the per-line linear background from the
		// selected cAFM channel after loading
		FlattenScalar bool `yaml:"flattenScalar"`

		// LaserPower normalizes spectra between scans taken at
		// different power settings (<= 0 disables the correction)
		LaserPower float64 `yaml:"laserPower"`
	} `yaml:"input"`

	// Registration parameters
	Registration struct {
		// Metric is the similarity measure: "cross-correlation" or
		// "mutual-information"
		Metric string `yaml:"metric"`

		// Interpolation is the resampling order: "nearest", "linear"
		// or "cubic"
		Interpolation string `yaml:"interpolation"`

		// MaxIterations is the optimizer's iteration budget
		MaxIterations int `yaml:"maxIterations"`

		// MinDet rejects estimated transforms whose determinant falls
		// below this floor
		MinDet float64 `yaml:"minDet"`
	} `yaml:"registration"`

	// Decomposition parameters
	Decomposition struct {
		// Components is the number of principal components to retain
		Components int `yaml:"components"`
	} `yaml:"decomposition"`

	// Regression parameters
	Regression struct {
		// MaxPredictors is the largest leading-PC subset in the sweep
		MaxPredictors int `yaml:"maxPredictors"`

		// Intercept includes a constant column in each design matrix
		Intercept bool `yaml:"intercept"`
	} `yaml:"regression"`

	// Unmixing parameters
	Unmixing struct {
		// Endmembers is the number of components each algorithm recovers
		Endmembers int `yaml:"endmembers"`

		// Seed drives every stochastic algorithm for reproducible runs
		Seed int64 `yaml:"seed"`
	} `yaml:"unmixing"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults determines whether to save score and
		// abundance maps during processing
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary maps are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default input parameters
	cfg.Input.CAFMChannel = "current"
	cfg.Input.FlattenScalar = true
	cfg.Input.LaserPower = 0

	// Set default registration parameters
	cfg.Registration.Metric = "cross-correlation"
	cfg.Registration.Interpolation = "linear"
	cfg.Registration.MaxIterations = 400
	cfg.Registration.MinDet = 1e-6

	// Set default analysis parameters
	cfg.Decomposition.Components = 10
	cfg.Regression.MaxPredictors = 10
	cfg.Regression.Intercept = true
	cfg.Unmixing.Endmembers = 4
	cfg.Unmixing.Seed = 1

	// Set default output parameters
	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = "intermediary_results"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// RegistrationOptions converts the configured registration section into
// the options consumed by the registration package
func (c *Config) RegistrationOptions() (registration.Options, error) {
	opts := registration.DefaultOptions()

	switch c.Registration.Metric {
	case "", "cross-correlation":
		opts.Metric = registration.CrossCorrelation
	case "mutual-information":
		opts.Metric = registration.MutualInformation
	default:
		return opts, fmt.Errorf("unknown registration metric %q", c.Registration.Metric)
	}

	switch c.Registration.Interpolation {
	case "nearest":
		opts.Interp = registration.Nearest
	case "", "linear":
		opts.Interp = registration.Linear
	case "cubic":
		opts.Interp = registration.Cubic
	default:
		return opts, fmt.Errorf("unknown interpolation order %q", c.Registration.Interpolation)
	}

	if c.Registration.MaxIterations > 0 {
		opts.MaxIterations = c.Registration.MaxIterations
	}
	if c.Registration.MinDet > 0 {
		opts.MinDet = c.Registration.MinDet
	}

	return opts, nil
}
