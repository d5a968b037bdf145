package simulation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"epinet/internal/domain"
)

// ErrInvalidTimeStep is returned by Step for a non-positive or non-finite dt
var ErrInvalidTimeStep = errors.New("time step must be a positive finite number")

const countTolerance = 1e-9

// Options configures the transit side of a System
type Options struct {
	// TravelSpeed is the distance a batch covers per unit of simulated time
	TravelSpeed float64 `json:"travel_speed"`
	// MovementInterval is the simulated time between two movement cycles.
	// Zero triggers a cycle on every step.
	MovementInterval float64 `json:"movement_interval"`
	// Allocation splits each batch across compartments; empty means AllocateFloor
	Allocation Allocation `json:"allocation"`
}

// DefaultOptions returns unit travel speed and a movement cycle per time unit
func DefaultOptions() Options {
	return Options{
		TravelSpeed:      1,
		MovementInterval: 1,
		Allocation:       AllocateFloor,
	}
}

func (o Options) validate() error {
	if !(o.TravelSpeed > 0) || math.IsInf(o.TravelSpeed, 0) {
		return fmt.Errorf("travel speed must be positive, got %v", o.TravelSpeed)
	}
	if !(o.MovementInterval >= 0) || math.IsInf(o.MovementInterval, 0) {
		return fmt.Errorf("movement interval must be non-negative, got %v", o.MovementInterval)
	}
	if _, err := ParseAllocation(string(o.Allocation)); err != nil {
		return err
	}
	return nil
}

// System is a network of cities running one disease. It owns every city,
// the network and the in-flight batches, and is not safe for concurrent use.
type System struct {
	params  domain.DiseaseParameters
	opts    Options
	network *domain.Network
	cities  map[domain.CityID]*domain.City
	order   []domain.CityID

	timeSinceLastMovement float64
	elapsedTime           float64
}

// NewSystem creates an empty system
func NewSystem(params domain.DiseaseParameters, opts Options) (*System, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if opts.Allocation == "" {
		opts.Allocation = AllocateFloor
	}
	return &System{
		params:  params,
		opts:    opts,
		network: domain.NewNetwork(),
		cities:  make(map[domain.CityID]*domain.City),
		order:   make([]domain.CityID, 0),
	}, nil
}

// AddCity registers a city with its initial compartments
func (s *System) AddCity(id domain.CityID, initial domain.Compartments) error {
	if _, exists := s.cities[id]; exists {
		return &domain.DuplicateIDError{ID: id}
	}
	s.cities[id] = domain.NewCity(id, initial)
	s.order = append(s.order, id)
	s.network.AddVertex(id)
	return nil
}

// HasCity reports whether id is registered
func (s *System) HasCity(id domain.CityID) bool {
	_, ok := s.cities[id]
	return ok
}

// City returns the live city for id
func (s *System) City(id domain.CityID) (*domain.City, bool) {
	c, ok := s.cities[id]
	return c, ok
}

// Cities returns the live cities in registration order
func (s *System) Cities() []*domain.City {
	out := make([]*domain.City, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.cities[id])
	}
	return out
}

// CityIDs returns the registered ids in registration order
func (s *System) CityIDs() []domain.CityID {
	out := make([]domain.CityID, len(s.order))
	copy(out, s.order)
	return out
}

// AddEdge connects two registered cities in both directions
func (s *System) AddEdge(v1, v2 domain.CityID, distance, fraction12, fraction21 float64) error {
	return s.network.AddEdge(v1, v2, distance, fraction12, fraction21)
}

// AddDirectedEdge connects origin to destination only
func (s *System) AddDirectedEdge(origin, destination domain.CityID, distance, fraction float64) error {
	return s.network.AddDirectedEdge(origin, destination, distance, fraction)
}

// Neighbors returns the live outgoing edges of a registered city
func (s *System) Neighbors(id domain.CityID) ([]*domain.Edge, error) {
	if !s.HasCity(id) {
		return nil, &domain.NotFoundError{IDs: []domain.CityID{id}}
	}
	return s.network.Neighbors(id)
}

// Reachable lists the cities reachable from id in breadth-first order
func (s *System) Reachable(id domain.CityID) ([]domain.CityID, error) {
	return s.network.Reachable(id)
}

// SetMovementFraction changes the share of origin's population sent toward
// destination on each movement cycle. Unknown edges are ignored.
func (s *System) SetMovementFraction(origin, destination domain.CityID, fraction float64) {
	s.network.UpdateEdgeMovementFraction(origin, destination, fraction)
}

// AdjacencyView returns a deep copy of the network's edges and batches
func (s *System) AdjacencyView() domain.AdjacencyView {
	return s.network.AdjacencyView()
}

// Parameters returns the disease parameters of the run
func (s *System) Parameters() domain.DiseaseParameters {
	return s.params
}

// Options returns the transit configuration of the run
func (s *System) Options() Options {
	return s.opts
}

// ElapsedTime returns the simulated time advanced so far
func (s *System) ElapsedTime() float64 {
	return s.elapsedTime
}

// InTransit sums every batch currently travelling
func (s *System) InTransit() domain.Compartments {
	return s.network.InTransit()
}

// TotalPopulation counts everyone in a city or in transit
func (s *System) TotalPopulation() float64 {
	total := s.network.InTransit().Population()
	for _, id := range s.order {
		total += s.cities[id].Population()
	}
	return total
}

// Step advances the system by dt.
//
// Migration is resolved before disease dynamics: batches that complete their
// journey are delivered first, then a movement cycle runs if one is due, and
// only then is every city integrated with its post-migration state.
func (s *System) Step(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}

	s.elapsedTime += dt
	s.timeSinceLastMovement += dt

	s.network.AdvanceFlows(dt)
	s.deliver()

	if s.timeSinceLastMovement+domain.TimeTolerance >= s.opts.MovementInterval {
		s.depart()
		s.timeSinceLastMovement = 0
	}

	for _, id := range s.order {
		city := s.cities[id]
		city.Compartments = s.params.Update(city.Compartments, dt)
	}
	return nil
}

// deliver merges every completed batch into its destination city
func (s *System) deliver() {
	for _, flow := range s.network.CollectArrivals() {
		dest, ok := s.cities[flow.To]
		if !ok {
			// edges can only reference registered cities
			continue
		}
		dest.Compartments = dest.Compartments.Add(flow.Compartments)
	}
}

// depart runs one movement cycle over every city and outgoing edge
func (s *System) depart() {
	for _, id := range s.order {
		city := s.cities[id]
		edges, _ := s.network.Neighbors(id)
		if len(edges) == 0 {
			continue
		}

		base := city.Compartments
		population := base.Population()
		if population <= 0 {
			continue
		}

		for _, edge := range edges {
			if edge.MovementFraction <= 0 {
				continue
			}
			// 1000 * 0.29 evaluates to 289.99999999999994
			total := math.Floor(population*edge.MovementFraction + countTolerance)
			if total <= 0 {
				continue
			}

			batch := s.opts.Allocation.allocate(base, city.Compartments, total)
			if batch.IsZero() {
				continue
			}

			city.Compartments = city.Compartments.Sub(batch)
			edge.Dispatch(domain.NewTransitFlow(id, edge.Neighbor, batch, edge.Distance/s.opts.TravelSpeed, s.elapsedTime))
		}
	}
}

// Describe renders the cities and their connections as text
func (s *System) Describe() string {
	var b strings.Builder
	b.WriteString("=== Epidemic System State ===\n")
	for _, id := range s.order {
		c := s.cities[id].Compartments
		fmt.Fprintf(&b, "City %s: S=%.2f, I=%.2f, R=%.2f\n", id, c.Susceptible, c.Infected, c.Recovered)

		edges, _ := s.network.Neighbors(id)
		connections := make([]string, 0, len(edges))
		for _, e := range edges {
			connections = append(connections, fmt.Sprintf("%s(%g)", e.Neighbor, e.Distance))
		}
		if len(connections) == 0 {
			connections = append(connections, "none")
		}
		fmt.Fprintf(&b, "  Connections -> %s\n", strings.Join(connections, ", "))
	}
	b.WriteString("=============================\n")
	return b.String()
}
