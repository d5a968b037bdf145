package domain

import "math"

// Compartments holds the susceptible, infected and recovered counts of one
// population. Counts are real numbers during integration and whole numbers
// inside transit batches.
type Compartments struct {
	Susceptible float64 `json:"susceptible" yaml:"susceptible"`
	Infected    float64 `json:"infected" yaml:"infected"`
	Recovered   float64 `json:"recovered" yaml:"recovered"`
}

// Population returns S + I + R
func (c Compartments) Population() float64 {
	return c.Susceptible + c.Infected + c.Recovered
}

// Add returns the element-wise sum of c and o
func (c Compartments) Add(o Compartments) Compartments {
	return Compartments{
		Susceptible: c.Susceptible + o.Susceptible,
		Infected:    c.Infected + o.Infected,
		Recovered:   c.Recovered + o.Recovered,
	}
}

// Sub returns c - o with every compartment clamped at zero
func (c Compartments) Sub(o Compartments) Compartments {
	return Compartments{
		Susceptible: c.Susceptible - o.Susceptible,
		Infected:    c.Infected - o.Infected,
		Recovered:   c.Recovered - o.Recovered,
	}.Clamp()
}

// Clamp replaces negative (and NaN) compartments with zero
func (c Compartments) Clamp() Compartments {
	return Compartments{
		Susceptible: nonNegative(c.Susceptible),
		Infected:    nonNegative(c.Infected),
		Recovered:   nonNegative(c.Recovered),
	}
}

// IsZero reports whether every compartment is zero
func (c Compartments) IsZero() bool {
	return c.Susceptible == 0 && c.Infected == 0 && c.Recovered == 0
}

// Floor rounds every compartment down to a whole number of people
func (c Compartments) Floor() Compartments {
	return Compartments{
		Susceptible: math.Floor(c.Susceptible),
		Infected:    math.Floor(c.Infected),
		Recovered:   math.Floor(c.Recovered),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}
