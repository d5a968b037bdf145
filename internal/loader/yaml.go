// Package loader turns scenario descriptions into runnable systems.
package loader

import (
	"fmt"
	"os"

	"epinet/internal/config"
	"epinet/internal/domain"
	"epinet/internal/simulation"

	"gopkg.in/yaml.v3"
)

// LoadYAML loads a standalone scenario document
func LoadYAML(path string) (*config.Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return ParseYAML(data)
}

// ParseYAML parses a scenario from YAML bytes
func ParseYAML(data []byte) (*config.Scenario, error) {
	var scenario config.Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if scenario.File != "" {
		return nil, fmt.Errorf("scenario files cannot reference another file")
	}
	scenario.ApplyDefaults()
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Resolve returns the inline scenario, or the one its File points at
func Resolve(s config.Scenario) (*config.Scenario, error) {
	if s.File == "" {
		return &s, nil
	}
	loaded, err := LoadYAML(s.File)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.File, err)
	}
	return loaded, nil
}

// BuildSystem creates a system with every city and edge of the scenario
func BuildSystem(s *config.Scenario) (*simulation.System, error) {
	params, err := s.Parameters()
	if err != nil {
		return nil, err
	}
	opts, err := s.Options()
	if err != nil {
		return nil, err
	}

	system, err := simulation.NewSystem(params, opts)
	if err != nil {
		return nil, err
	}

	for _, c := range s.Cities {
		initial := domain.Compartments{
			Susceptible: c.Susceptible,
			Infected:    c.Infected,
			Recovered:   c.Recovered,
		}
		if err := system.AddCity(domain.CityID(c.ID), initial); err != nil {
			return nil, fmt.Errorf("failed to add city: %w", err)
		}
	}

	for _, e := range s.Edges {
		from, to := domain.CityID(e.From), domain.CityID(e.To)
		if e.Directed {
			err = system.AddDirectedEdge(from, to, e.Distance, e.Fraction)
		} else {
			err = system.AddEdge(from, to, e.Distance, e.Fraction, e.ReverseShare())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to add edge %s -> %s: %w", e.From, e.To, err)
		}
	}

	return system, nil
}
