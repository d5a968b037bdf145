package config

import (
	"fmt"
	"math"

	"epinet/internal/domain"
	"epinet/internal/simulation"
)

// DefaultScenario returns three linked cities with an epidemic-grade disease.
// Each city sends its own share of people down every outgoing link.
func DefaultScenario() Scenario {
	return Scenario{
		Name:             "triangle",
		Preset:           domain.PresetEpidemic,
		TravelSpeed:      10,
		MovementInterval: 1,
		Allocation:       string(simulation.AllocateFloor),
		Cities: []CityConfig{
			{ID: "A", Susceptible: 900, Infected: 10},
			{ID: "B", Susceptible: 500, Infected: 15},
			{ID: "C", Susceptible: 800},
		},
		Edges: []EdgeConfig{
			{From: "A", To: "B", Distance: 40, Fraction: 0.01, ReverseFraction: ptr(0.05)},
			{From: "B", To: "C", Distance: 20, Fraction: 0.05, ReverseFraction: ptr(0.10)},
			{From: "A", To: "C", Distance: 20, Fraction: 0.01, ReverseFraction: ptr(0.10)},
		},
	}
}

// Parameters resolves the disease: explicit parameters first, then the preset
func (s Scenario) Parameters() (domain.DiseaseParameters, error) {
	if s.Disease != nil {
		return *s.Disease, nil
	}
	if s.Preset == "" {
		return domain.LookupPreset(domain.PresetEpidemic)
	}
	return domain.LookupPreset(s.Preset)
}

// Options returns the transit options of the scenario
func (s Scenario) Options() (simulation.Options, error) {
	allocation, err := simulation.ParseAllocation(s.Allocation)
	if err != nil {
		return simulation.Options{}, err
	}
	return simulation.Options{
		TravelSpeed:      s.TravelSpeed,
		MovementInterval: s.MovementInterval,
		Allocation:       allocation,
	}, nil
}

// ReverseShare returns the fraction used from To back to From
func (e EdgeConfig) ReverseShare() float64 {
	if e.ReverseFraction != nil {
		return *e.ReverseFraction
	}
	return e.Fraction
}

// Validate checks the scenario for values the engine would reject or
// silently misbehave on.
func (s Scenario) Validate() error {
	if _, err := s.Parameters(); err != nil {
		return fmt.Errorf("disease: %w", err)
	}
	if s.Disease != nil {
		if err := validateRates(*s.Disease); err != nil {
			return fmt.Errorf("disease: %w", err)
		}
	}
	if _, err := s.Options(); err != nil {
		return err
	}
	if !(s.TravelSpeed > 0) {
		return fmt.Errorf("travel_speed must be positive, got %v", s.TravelSpeed)
	}
	if !(s.MovementInterval >= 0) {
		return fmt.Errorf("movement_interval must be non-negative, got %v", s.MovementInterval)
	}

	seen := make(map[string]bool, len(s.Cities))
	for i, c := range s.Cities {
		if c.ID == "" {
			return fmt.Errorf("city %d: id is required", i)
		}
		if seen[c.ID] {
			return fmt.Errorf("city %q: declared twice", c.ID)
		}
		seen[c.ID] = true
		if c.Susceptible < 0 || c.Infected < 0 || c.Recovered < 0 {
			return fmt.Errorf("city %q: compartments must be non-negative", c.ID)
		}
	}

	for i, e := range s.Edges {
		if !seen[e.From] || !seen[e.To] {
			return fmt.Errorf("edge %d: %q -> %q references an unknown city", i, e.From, e.To)
		}
		if !(e.Distance >= 0) || math.IsInf(e.Distance, 0) {
			return fmt.Errorf("edge %d: distance must be non-negative, got %v", i, e.Distance)
		}
		if !validFraction(e.Fraction) || !validFraction(e.ReverseShare()) {
			return fmt.Errorf("edge %d: fractions must be within [0, 1]", i)
		}
	}
	return nil
}

func validateRates(p domain.DiseaseParameters) error {
	rates := map[string]float64{
		"infection_rate":     p.InfectionRate,
		"recovering_rate":    p.RecoveringRate,
		"immunity_loss_rate": p.ImmunityLossRate,
		"mortality_rate":     p.MortalityRate,
		"natality_rate":      p.NatalityRate,
	}
	for name, v := range rates {
		if !(v >= 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be non-negative, got %v", name, v)
		}
	}
	return nil
}

func validFraction(f float64) bool {
	return f >= 0 && f <= 1
}

func ptr[T any](v T) *T {
	return &v
}
