package simulation

import (
	"fmt"
	"math"
	"sort"

	"epinet/internal/domain"
)

// Allocation decides how a whole number of travellers is split across the
// susceptible, infected and recovered compartments of the origin city.
type Allocation string

const (
	// AllocateFloor floors each proportional share independently. The batch
	// can be a few people short of the requested total; those people simply
	// stay home.
	AllocateFloor Allocation = "floor"
	// AllocateLargestRemainder floors each share and then hands the leftover
	// people to the compartments with the largest fractional remainders, so
	// the batch matches the requested total whenever the origin can supply it.
	AllocateLargestRemainder Allocation = "largest_remainder"
)

// ParseAllocation converts a string to an Allocation, defaulting to
// AllocateFloor for the empty string.
func ParseAllocation(s string) (Allocation, error) {
	switch Allocation(s) {
	case "", AllocateFloor:
		return AllocateFloor, nil
	case AllocateLargestRemainder:
		return AllocateLargestRemainder, nil
	default:
		return "", fmt.Errorf("unknown allocation policy %q", s)
	}
}

// allocate splits total travellers in the proportions of base, the origin's
// state at the start of the movement cycle. Every share is a whole number and
// never exceeds the whole people still available in its compartment.
func (a Allocation) allocate(base, available domain.Compartments, total float64) domain.Compartments {
	population := base.Population()
	if total <= 0 || population <= 0 {
		return domain.Compartments{}
	}

	// multiply before dividing so whole-number inputs stay exact
	exact := [3]float64{
		base.Susceptible * total / population,
		base.Infected * total / population,
		base.Recovered * total / population,
	}
	limit := [3]float64{
		math.Floor(available.Susceptible),
		math.Floor(available.Infected),
		math.Floor(available.Recovered),
	}

	var shares [3]float64
	for i := range exact {
		shares[i] = math.Min(math.Floor(exact[i]), limit[i])
	}

	if a == AllocateLargestRemainder {
		leftover := total - (shares[0] + shares[1] + shares[2])

		order := []int{0, 1, 2}
		sort.SliceStable(order, func(x, y int) bool {
			return exact[order[x]]-math.Floor(exact[order[x]]) > exact[order[y]]-math.Floor(exact[order[y]])
		})
		for leftover >= 1 {
			given := false
			for _, i := range order {
				if leftover < 1 {
					break
				}
				if shares[i] < limit[i] {
					shares[i]++
					leftover--
					given = true
				}
			}
			if !given {
				break
			}
		}
	}

	return domain.Compartments{
		Susceptible: shares[0],
		Infected:    shares[1],
		Recovered:   shares[2],
	}
}
