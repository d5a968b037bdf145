package simulation

import (
	"context"
	"fmt"

	"epinet/internal/domain"
)

// Observer receives a snapshot after every step. Observers are called
// synchronously, in registration order, on the stepping goroutine. The
// snapshot is shared by every observer of that step and must be treated as
// read-only; changing it never reaches the system.
//
// Observers are compared with == for registration, so implementations should
// be pointer types.
type Observer interface {
	Receive(snapshot *Snapshot)
}

// Driver steps a System and publishes a snapshot after each step
type Driver struct {
	system      *System
	observers   []Observer
	tick        int
	elapsedTime float64
}

// NewDriver creates a driver around system
func NewDriver(system *System) *Driver {
	return &Driver{
		system:    system,
		observers: make([]Observer, 0),
	}
}

// System returns the driven system
func (d *Driver) System() *System {
	return d.system
}

// AddObserver registers o. Registering the same observer twice is a no-op.
func (d *Driver) AddObserver(o Observer) {
	for _, existing := range d.observers {
		if existing == o {
			return
		}
	}
	d.observers = append(d.observers, o)
}

// RemoveObserver unregisters o
func (d *Driver) RemoveObserver(o Observer) {
	for i, existing := range d.observers {
		if existing == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// ObserverCount returns the number of registered observers
func (d *Driver) ObserverCount() int {
	return len(d.observers)
}

// Tick returns the number of completed steps
func (d *Driver) Tick() int {
	return d.tick
}

// ElapsedTime returns the simulated time advanced through this driver
func (d *Driver) ElapsedTime() float64 {
	return d.elapsedTime
}

// Step advances the system by dt and notifies every observer
func (d *Driver) Step(dt float64) (*Snapshot, error) {
	if err := d.system.Step(dt); err != nil {
		return nil, err
	}
	d.tick++
	d.elapsedTime += dt

	snapshot := d.Snapshot()
	for _, o := range d.observers {
		o.Receive(snapshot)
	}
	return snapshot, nil
}

// Run performs steps consecutive steps of dt, stopping early if ctx is done.
// It returns the last snapshot produced.
func (d *Driver) Run(ctx context.Context, dt float64, steps int) (*Snapshot, error) {
	var last *Snapshot
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		snapshot, err := d.Step(dt)
		if err != nil {
			return last, fmt.Errorf("step %d: %w", d.tick+1, err)
		}
		last = snapshot
	}
	return last, nil
}

// Snapshot captures the current state without stepping
func (d *Driver) Snapshot() *Snapshot {
	cities := d.system.Cities()
	states := make([]CityState, len(cities))
	for i, c := range cities {
		states[i] = CityState{ID: c.ID, Compartments: c.Compartments}
	}

	params := d.system.Parameters()
	return &Snapshot{
		Tick:                    d.tick,
		ElapsedTime:             d.elapsedTime,
		Cities:                  states,
		Edges:                   d.system.AdjacencyView(),
		Parameters:              params,
		BasicReproductionNumber: params.BasicReproductionNumber(),
	}
}

// CityState is the copied state of one city inside a snapshot
type CityState struct {
	ID           domain.CityID       `json:"id" yaml:"id"`
	Compartments domain.Compartments `json:"compartments" yaml:"compartments"`
}

// Population returns the city's population at snapshot time
func (c CityState) Population() float64 {
	return c.Compartments.Population()
}

// Snapshot is an independent copy of the whole system after one step
type Snapshot struct {
	Tick                    int                      `json:"tick" yaml:"tick"`
	ElapsedTime             float64                  `json:"elapsed_time" yaml:"elapsed_time"`
	Cities                  []CityState              `json:"cities" yaml:"cities"`
	Edges                   domain.AdjacencyView     `json:"edges" yaml:"edges"`
	Parameters              domain.DiseaseParameters `json:"parameters" yaml:"parameters"`
	BasicReproductionNumber float64                  `json:"basic_reproduction_number" yaml:"basic_reproduction_number"`
}

// City returns the state of id
func (s *Snapshot) City(id domain.CityID) (CityState, bool) {
	for _, c := range s.Cities {
		if c.ID == id {
			return c, true
		}
	}
	return CityState{}, false
}

// InTransit sums every batch captured in the snapshot
func (s *Snapshot) InTransit() domain.Compartments {
	var total domain.Compartments
	for _, f := range s.Edges.Flows() {
		total = total.Add(f.Compartments)
	}
	return total
}

// TotalPopulation counts everyone in a city or in transit
func (s *Snapshot) TotalPopulation() float64 {
	total := s.InTransit().Population()
	for _, c := range s.Cities {
		total += c.Population()
	}
	return total
}

// EffectiveReproductionNumber returns R for the given city at snapshot time
func (s *Snapshot) EffectiveReproductionNumber(id domain.CityID) float64 {
	c, ok := s.City(id)
	if !ok {
		return 0
	}
	return s.Parameters.EffectiveReproductionNumber(c.Compartments)
}
