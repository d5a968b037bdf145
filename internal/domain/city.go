package domain

// CityID identifies a city within one system
type CityID string

// City is a population center with a mutable compartment state
type City struct {
	ID           CityID       `json:"id"`
	Compartments Compartments `json:"compartments"`
}

// NewCity creates a city with the given initial state, clamped at zero
func NewCity(id CityID, initial Compartments) *City {
	return &City{
		ID:           id,
		Compartments: initial.Clamp(),
	}
}

// Population returns the number of people currently in the city
func (c *City) Population() float64 {
	return c.Compartments.Population()
}

// Clone returns an independent copy of the city
func (c *City) Clone() *City {
	clone := *c
	return &clone
}
