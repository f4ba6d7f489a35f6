// YAML run configuration loader with CUE validation integration
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"vehicleops-load/internal/telemetry"
)

// Executor names.
const (
	ExecutorSharedIterations = "shared-iterations"
	ExecutorPerVUIterations  = "per-vu-iterations"
)

// Defaults mirror the reference load profile.
const (
	DefaultVirtualUsers = 10
	DefaultIterations   = 1000
	DefaultDuration     = 30 * time.Second
	DefaultSleep        = 100 * time.Millisecond
	DefaultTimeout      = 60 * time.Second
)

// LoadTestConfig is the root configuration for a load run.
type LoadTestConfig struct {
	TargetURL          string            `yaml:"target_url"`
	VirtualUsers       int               `yaml:"virtual_users"`
	Iterations         int               `yaml:"iterations"`
	Duration           time.Duration     `yaml:"duration"`
	Sleep              time.Duration     `yaml:"sleep"`
	Timeout            time.Duration     `yaml:"timeout"`
	Executor           string            `yaml:"executor"`
	MaxRPS             float64           `yaml:"max_rps"`
	Seed               int64             `yaml:"seed"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	Headers            map[string]string `yaml:"headers"`
}

// Default returns a configuration with every optional field populated.
func Default() *LoadTestConfig {
	cfg := &LoadTestConfig{}
	cfg.applyDefaults()
	return cfg
}

// Override adjusts a loaded config before final validation.
type Override func(*LoadTestConfig)

// Load loads YAML config, validates it against a CUE schema when one is given,
// then applies environment overrides and the given overrides. Keys missing
// from the file keep their defaults; an explicit zero such as "sleep: 0s" is kept.
func Load(configPath, cueSchemaPath string, overrides ...Override) (*LoadTestConfig, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	// decode over the defaults so keys set to zero in the file are kept
	cfg := *Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", configPath, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("loaded configuration", "config", fmt.Sprintf("%+v", cfg))
	return &cfg, nil
}

func (c *LoadTestConfig) applyDefaults() {
	if c.VirtualUsers == 0 {
		c.VirtualUsers = DefaultVirtualUsers
	}
	if c.Iterations == 0 {
		c.Iterations = DefaultIterations
	}
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.Sleep == 0 {
		c.Sleep = DefaultSleep
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Executor == "" {
		c.Executor = ExecutorSharedIterations
	}
}

// ApplyEnv overrides fields from TARGET_URL, VUS, ITERATIONS, DURATION and SLEEP.
func (c *LoadTestConfig) ApplyEnv() error {
	if v := os.Getenv("TARGET_URL"); v != "" {
		c.TargetURL = v
	}
	if v := os.Getenv("VUS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid VUS: %w", err)
		}
		c.VirtualUsers = n
	}
	if v := os.Getenv("ITERATIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ITERATIONS: %w", err)
		}
		c.Iterations = n
	}
	if v := os.Getenv("DURATION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DURATION: %w", err)
		}
		c.Duration = d
	}
	if v := os.Getenv("SLEEP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid SLEEP: %w", err)
		}
		c.Sleep = d
	}
	return nil
}

// Validate checks values the schema cannot see, including env overrides.
func (c *LoadTestConfig) Validate() error {
	if c.TargetURL == "" {
		return fmt.Errorf("target_url is required")
	}
	if c.VirtualUsers <= 0 {
		return fmt.Errorf("virtual_users must be positive, got %d", c.VirtualUsers)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if c.Iterations < c.VirtualUsers {
		return fmt.Errorf("iterations (%d) must be at least virtual_users (%d)", c.Iterations, c.VirtualUsers)
	}
	switch c.Executor {
	case ExecutorSharedIterations, ExecutorPerVUIterations:
	default:
		return fmt.Errorf("unknown executor %q", c.Executor)
	}
	if c.MaxRPS < 0 {
		return fmt.Errorf("max_rps must not be negative")
	}
	if c.Iterations%c.VirtualUsers != 0 {
		slog.Warn("iterations not divisible by virtual_users; global indexes will overlap or skip",
			"iterations", c.Iterations, "virtual_users", c.VirtualUsers)
	}
	return nil
}

// Shape returns the run-wide values the record generator needs.
func (c *LoadTestConfig) Shape() telemetry.RunConfig {
	return telemetry.RunConfig{VirtualUsers: c.VirtualUsers, Iterations: c.Iterations}
}
