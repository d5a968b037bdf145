package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// DiseaseParameters are the SIRS rate constants of one simulation run.
// All rates are per unit of simulated time and expected to be >= 0.
type DiseaseParameters struct {
	InfectionRate    float64 `json:"infection_rate" yaml:"infection_rate"`
	RecoveringRate   float64 `json:"recovering_rate" yaml:"recovering_rate"`
	ImmunityLossRate float64 `json:"immunity_loss_rate" yaml:"immunity_loss_rate"`
	MortalityRate    float64 `json:"mortality_rate" yaml:"mortality_rate"`
	NatalityRate     float64 `json:"natality_rate" yaml:"natality_rate"`
}

// Update advances c by one explicit Euler step of length dt.
//
// The result is clamped at zero in every compartment. A population of zero
// exerts no infection pressure, so an empty city stays empty instead of
// turning into NaN. Choosing a dt small enough for the integration to stay
// stable is the caller's job.
func (p DiseaseParameters) Update(c Compartments, dt float64) Compartments {
	s, i, r := c.Susceptible, c.Infected, c.Recovered
	n := s + i + r

	var infections float64
	if n > 0 {
		infections = p.InfectionRate * (s * i / n)
	}

	dS := p.NatalityRate*n - infections + p.ImmunityLossRate*r - p.MortalityRate*s
	dI := infections - p.RecoveringRate*i - p.MortalityRate*i
	dR := p.RecoveringRate*i - p.ImmunityLossRate*r - p.MortalityRate*r

	return Compartments{
		Susceptible: s + dt*dS,
		Infected:    i + dt*dI,
		Recovered:   r + dt*dR,
	}.Clamp()
}

// BasicReproductionNumber returns R0 = infection / (recovering + mortality),
// or 0 when the denominator is 0.
func (p DiseaseParameters) BasicReproductionNumber() float64 {
	denominator := p.RecoveringRate + p.MortalityRate
	if denominator <= 0 {
		return 0
	}
	return p.InfectionRate / denominator
}

// EffectiveReproductionNumber scales R0 by the susceptible share of c
func (p DiseaseParameters) EffectiveReproductionNumber(c Compartments) float64 {
	n := c.Population()
	if n == 0 {
		return 0
	}
	return p.BasicReproductionNumber() * (c.Susceptible / n)
}

// OutbreakTrend classifies a disease by its basic reproduction number
type OutbreakTrend string

const (
	OutbreakGrowing   OutbreakTrend = "growing"   // R0 > 1
	OutbreakStable    OutbreakTrend = "stable"    // R0 == 1
	OutbreakDeclining OutbreakTrend = "declining" // R0 < 1
)

const r0Tolerance = 1e-9

// Classify reports whether an outbreak under p grows, holds or dies out
func (p DiseaseParameters) Classify() OutbreakTrend {
	r0 := p.BasicReproductionNumber()
	switch {
	case math.Abs(r0-1) <= r0Tolerance:
		return OutbreakStable
	case r0 > 1:
		return OutbreakGrowing
	default:
		return OutbreakDeclining
	}
}

// Named parameter presets
const (
	PresetEpidemic   = "epidemic"
	PresetStable     = "stable"
	PresetExtinction = "extinction"
)

var presets = map[string]DiseaseParameters{
	// R0 = 10/3
	PresetEpidemic: {InfectionRate: 10, RecoveringRate: 1, ImmunityLossRate: 0.5, MortalityRate: 2, NatalityRate: 2},
	// R0 = 1
	PresetStable: {InfectionRate: 3, RecoveringRate: 1, ImmunityLossRate: 0.5, MortalityRate: 2, NatalityRate: 2},
	// R0 = 2/3
	PresetExtinction: {InfectionRate: 2, RecoveringRate: 1, ImmunityLossRate: 0.5, MortalityRate: 2, NatalityRate: 2},
}

// LookupPreset returns the named parameter preset
func LookupPreset(name string) (DiseaseParameters, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return DiseaseParameters{}, fmt.Errorf("unknown disease preset %q (known: %s)", name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames lists the known preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
