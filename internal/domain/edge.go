package domain

import "github.com/google/uuid"

// Edge is one directed connection from an origin city to Neighbor.
// An undirected link between two cities is stored as two Edges, each with its
// own MovementFraction.
type Edge struct {
	Neighbor CityID  `json:"neighbor" yaml:"neighbor"`
	Distance float64 `json:"distance" yaml:"distance"`
	// MovementFraction is the share of the origin's population sent toward
	// Neighbor on every movement cycle, in [0, 1].
	MovementFraction float64        `json:"movement_fraction" yaml:"movement_fraction"`
	Flows            []*TransitFlow `json:"flows" yaml:"flows"`
}

// Dispatch appends a batch to the edge's in-flight list
func (e *Edge) Dispatch(flow *TransitFlow) {
	e.Flows = append(e.Flows, flow)
}

// InTransit sums the compartments of every batch on the edge
func (e *Edge) InTransit() Compartments {
	var total Compartments
	for _, f := range e.Flows {
		total = total.Add(f.Compartments)
	}
	return total
}

// Clone deep-copies the edge and its flows
func (e *Edge) Clone() Edge {
	clone := *e
	clone.Flows = make([]*TransitFlow, len(e.Flows))
	for i, f := range e.Flows {
		fc := *f
		clone.Flows[i] = &fc
	}
	return clone
}

// TransitFlow is a batch of people travelling along one edge
type TransitFlow struct {
	ID            string       `json:"id" yaml:"id"`
	From          CityID       `json:"from" yaml:"from"`
	To            CityID       `json:"to" yaml:"to"`
	Compartments  Compartments `json:"compartments" yaml:"compartments"`
	TravelTime    float64      `json:"travel_time" yaml:"travel_time"`
	ElapsedTime   float64      `json:"elapsed_time" yaml:"elapsed_time"`
	DepartureTime float64      `json:"departure_time" yaml:"departure_time"`
}

// NewTransitFlow creates a batch that has just left from
func NewTransitFlow(from, to CityID, batch Compartments, travelTime, departure float64) *TransitFlow {
	return &TransitFlow{
		ID:            uuid.NewString(),
		From:          from,
		To:            to,
		Compartments:  batch,
		TravelTime:    travelTime,
		DepartureTime: departure,
	}
}

// TimeTolerance absorbs the rounding left by summing many small time steps,
// so ten steps of 0.1 count as one full time unit.
const TimeTolerance = 1e-9

// Arrived reports whether the batch has spent its full travel time in transit
func (f *TransitFlow) Arrived() bool {
	return f.ElapsedTime+TimeTolerance >= f.TravelTime
}

// Progress returns the travelled share of the journey in [0, 1]
func (f *TransitFlow) Progress() float64 {
	if f.TravelTime <= 0 {
		return 1
	}
	p := f.ElapsedTime / f.TravelTime
	if p > 1 {
		return 1
	}
	return p
}
