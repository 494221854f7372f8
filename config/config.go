// Package config provides configuration loading for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// ErrInvalidConfig is returned when a loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Emission    EmissionConfig    `yaml:"emission"`
	Source      SourceConfig      `yaml:"source"`
	Environment EnvironmentConfig `yaml:"environment"`
	Kappa       KappaConfig       `yaml:"kappa"`
	Clock       ClockConfig       `yaml:"clock"`
	Run         RunConfig         `yaml:"run"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// EmissionConfig holds the radiation law constants.
type EmissionConfig struct {
	StefanBoltzmann float64 `yaml:"stefan_boltzmann" env:"RADIATE_STEFAN_BOLTZMANN"`
	ScaleDivisor    float64 `yaml:"scale_divisor" env:"RADIATE_SCALE_DIVISOR"` // Rate divisor, tuning knob
}

// SourceConfig holds the radiating reservoir parameters.
type SourceConfig struct {
	InitialSupply float64 `yaml:"initial_supply" env:"RADIATE_INITIAL_SUPPLY"`
}

// EnvironmentConfig holds the absorbing reservoir parameters.
type EnvironmentConfig struct {
	LevelCount int `yaml:"level_count" env:"RADIATE_LEVEL_COUNT"` // 0 disables level tracking
}

// KappaConfig holds the level-split sampler parameters.
type KappaConfig struct {
	Shape      float64 `yaml:"shape" env:"RADIATE_KAPPA"`
	MaxRetries int     `yaml:"max_retries" env:"RADIATE_KAPPA_MAX_RETRIES"`
}

// ClockConfig holds tick pacing.
type ClockConfig struct {
	Tick     time.Duration `yaml:"tick" env:"RADIATE_TICK"`
	Realtime bool          `yaml:"realtime" env:"RADIATE_REALTIME"`
}

// RunConfig holds driver loop limits.
type RunConfig struct {
	MaxTicks int    `yaml:"max_ticks" env:"RADIATE_MAX_TICKS"` // 0 = until depleted
	Seed     uint64 `yaml:"seed" env:"RADIATE_SEED"`           // 0 = time-based
}

// TelemetryConfig holds output cadence.
type TelemetryConfig struct {
	LevelsEvery int `yaml:"levels_every"`
	LogEvery    int `yaml:"log_every"`
}

// Default returns the embedded defaults. Panics if the embedded file is broken.
func Default() *Config {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		panic(fmt.Sprintf("config: parsing embedded defaults: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies RADIATE_* environment overrides.
// If path is empty, only embedded defaults (and the environment) are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the physical and sampler parameters.
func (c *Config) Validate() error {
	switch {
	case !positive(c.Emission.StefanBoltzmann):
		return fmt.Errorf("%w: emission.stefan_boltzmann must be > 0", ErrInvalidConfig)
	case !positive(c.Emission.ScaleDivisor):
		return fmt.Errorf("%w: emission.scale_divisor must be > 0", ErrInvalidConfig)
	case !positive(c.Source.InitialSupply):
		return fmt.Errorf("%w: source.initial_supply must be > 0", ErrInvalidConfig)
	case c.Environment.LevelCount < 0:
		return fmt.Errorf("%w: environment.level_count must be >= 0", ErrInvalidConfig)
	case !positive(c.Kappa.Shape):
		return fmt.Errorf("%w: kappa.shape must be > 0", ErrInvalidConfig)
	case c.Kappa.MaxRetries < 0:
		return fmt.Errorf("%w: kappa.max_retries must be >= 0", ErrInvalidConfig)
	case c.Clock.Tick <= 0:
		return fmt.Errorf("%w: clock.tick must be > 0", ErrInvalidConfig)
	case c.Run.MaxTicks < 0:
		return fmt.Errorf("%w: run.max_ticks must be >= 0", ErrInvalidConfig)
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
