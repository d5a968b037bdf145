package config

import (
	"time"

	"epinet/internal/domain"
)

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Pace     Pace           `yaml:"pace"`
	Run      *RunOverride   `yaml:"run,omitempty"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Features FeaturesConfig `yaml:"features"`
	Scenario Scenario       `yaml:"scenario"`
}

// RunOverride allows overriding pace defaults
type RunOverride struct {
	AutoRun      *bool     `yaml:"auto_run,omitempty"`
	TimeStep     *float64  `yaml:"time_step,omitempty"`
	TickInterval *Duration `yaml:"tick_interval,omitempty"`
	StepsPerTick *int      `yaml:"steps_per_tick,omitempty"`
	MaxSteps     *int      `yaml:"max_steps,omitempty"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Addr            string   `yaml:"addr"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Scenario describes the cities, links and disease of a run
type Scenario struct {
	Name string `yaml:"name,omitempty"`
	// File points at a standalone scenario document that replaces the
	// inline fields below when set.
	File             string                    `yaml:"file,omitempty"`
	Preset           string                    `yaml:"preset,omitempty"`
	Disease          *domain.DiseaseParameters `yaml:"disease,omitempty"` // wins over Preset
	TravelSpeed      float64                   `yaml:"travel_speed"`
	MovementInterval float64                   `yaml:"movement_interval"`
	Allocation       string                    `yaml:"allocation,omitempty"`
	Cities           []CityConfig              `yaml:"cities"`
	Edges            []EdgeConfig              `yaml:"edges"`
}

// CityConfig is the initial state of one city
type CityConfig struct {
	ID          string  `yaml:"id"`
	Susceptible float64 `yaml:"susceptible"`
	Infected    float64 `yaml:"infected"`
	Recovered   float64 `yaml:"recovered"`
}

// EdgeConfig links two cities. Undirected edges use Fraction from From to To
// and ReverseFraction (defaulting to Fraction) the other way.
type EdgeConfig struct {
	From            string   `yaml:"from"`
	To              string   `yaml:"to"`
	Distance        float64  `yaml:"distance"`
	Fraction        float64  `yaml:"fraction"`
	ReverseFraction *float64 `yaml:"reverse_fraction,omitempty"`
	Directed        bool     `yaml:"directed,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
