// Package config provides configuration management for epinet.
//
// A config file describes both how the server runs (listener, pace,
// persistence) and what it runs (the scenario). The scenario can live inline
// or in a separate file referenced by scenario.file, which the server can
// watch and reload.
//
// Config file locations (priority order):
//  1. $EPINET_CONFIG
//  2. ./epinet.yaml
//  3. ~/.config/epinet/config.yaml
//  4. /etc/epinet/config.yaml
package config

import (
	"fmt"
	"os"
	"time"

	"epinet/internal/simulation"

	"gopkg.in/yaml.v3"
)

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		// No config found - return defaults
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	// Sections missing from the file keep their defaults; the scenario is
	// all-or-nothing so a partial city list never merges with the default one.
	cfg := DefaultConfig()
	cfg.Scenario = Scenario{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.Scenario.File = ResolveRelative(path, cfg.Scenario.File)

	return cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Pace:    PaceNormal,
		Server: ServerConfig{
			Addr:            ":3000",
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Database: DatabaseConfig{Path: "./epinet.db"},
		Features: DefaultFeatures(),
		Scenario: DefaultScenario(),
	}
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Version == 0 {
		c.Version = 1
	}
	if c.Pace == "" {
		c.Pace = PaceNormal
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}
	if c.Database.Path == "" {
		c.Database.Path = defaults.Database.Path
	}

	// An empty scenario section runs the built-in triangle
	if c.Scenario.File == "" && len(c.Scenario.Cities) == 0 {
		c.Scenario = defaults.Scenario
	}
	c.Scenario.ApplyDefaults()
}

// ApplyDefaults fills in the transit settings a scenario may omit
func (s *Scenario) ApplyDefaults() {
	if s.TravelSpeed == 0 {
		s.TravelSpeed = 1
	}
	if s.Allocation == "" {
		s.Allocation = string(simulation.AllocateFloor)
	}
}

// EffectiveRun returns the run profile with overrides applied
func (c *Config) EffectiveRun() RunProfile {
	base := c.Pace.GetProfile()

	if c.Run == nil {
		return base
	}

	// Apply overrides
	if c.Run.AutoRun != nil {
		base.AutoRun = *c.Run.AutoRun
	}
	if c.Run.TimeStep != nil {
		base.TimeStep = *c.Run.TimeStep
	}
	if c.Run.TickInterval != nil {
		base.TickInterval = c.Run.TickInterval.Duration()
	}
	if c.Run.StepsPerTick != nil {
		base.StepsPerTick = *c.Run.StepsPerTick
	}
	if c.Run.MaxSteps != nil {
		base.MaxSteps = *c.Run.MaxSteps
	}

	return base
}

// Validate checks the run profile and the inline scenario
func (c *Config) Validate() error {
	run := c.EffectiveRun()
	if !(run.TimeStep > 0) {
		return fmt.Errorf("run: time_step must be positive, got %v", run.TimeStep)
	}
	if run.TickInterval <= 0 {
		return fmt.Errorf("run: tick_interval must be positive, got %s", run.TickInterval)
	}
	if run.StepsPerTick < 1 {
		return fmt.Errorf("run: steps_per_tick must be at least 1, got %d", run.StepsPerTick)
	}
	if run.MaxSteps < 0 {
		return fmt.Errorf("run: max_steps must be non-negative, got %d", run.MaxSteps)
	}
	if c.Scenario.File != "" {
		// checked when the file is loaded
		return nil
	}
	if err := c.Scenario.Validate(); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}
	return nil
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	run := c.EffectiveRun()

	summary := fmt.Sprintf("Pace: %s, Auto-run: %v, Addr: %s\n", c.Pace, run.AutoRun, c.Server.Addr)
	summary += fmt.Sprintf("Step: %g every %s x%d, Max steps: %d\n",
		run.TimeStep, run.TickInterval, run.StepsPerTick, run.MaxSteps)
	if c.Scenario.File != "" {
		summary += fmt.Sprintf("Scenario file: %s\n", c.Scenario.File)
	} else {
		summary += fmt.Sprintf("Scenario: %s (%d cities, %d edges)\n",
			c.Scenario.Name, len(c.Scenario.Cities), len(c.Scenario.Edges))
	}

	var enabled []string
	for _, f := range c.Features.ListFeatures() {
		if f.Enabled {
			enabled = append(enabled, f.Name)
		}
	}
	summary += fmt.Sprintf("Enabled features (%d):", len(enabled))
	for _, name := range enabled {
		summary += fmt.Sprintf(" %s", name)
	}

	return summary
}
