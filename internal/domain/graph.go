package domain

import "slices"

// Network is a weighted adjacency structure over city ids. Vertices are kept
// in declaration order so every traversal is deterministic.
type Network struct {
	order     []CityID
	adjacency map[CityID][]*Edge
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{
		order:     make([]CityID, 0),
		adjacency: make(map[CityID][]*Edge),
	}
}

// AddVertex declares a vertex. Declaring an existing vertex is a no-op.
func (n *Network) AddVertex(id CityID) {
	if _, ok := n.adjacency[id]; ok {
		return
	}
	n.adjacency[id] = make([]*Edge, 0)
	n.order = append(n.order, id)
}

// HasVertex reports whether id has been declared
func (n *Network) HasVertex(id CityID) bool {
	_, ok := n.adjacency[id]
	return ok
}

// Vertices returns the declared vertices in declaration order
func (n *Network) Vertices() []CityID {
	out := make([]CityID, len(n.order))
	copy(out, n.order)
	return out
}

// AddEdge connects v1 and v2 with two directed edges of the same distance.
// fraction12 applies to movement from v1 to v2, fraction21 to the reverse.
func (n *Network) AddEdge(v1, v2 CityID, distance, fraction12, fraction21 float64) error {
	if err := n.requireVertices(v1, v2); err != nil {
		return err
	}
	n.adjacency[v1] = append(n.adjacency[v1], &Edge{Neighbor: v2, Distance: distance, MovementFraction: fraction12})
	n.adjacency[v2] = append(n.adjacency[v2], &Edge{Neighbor: v1, Distance: distance, MovementFraction: fraction21})
	return nil
}

// AddDirectedEdge adds a single edge from origin to destination
func (n *Network) AddDirectedEdge(origin, destination CityID, distance, fraction float64) error {
	if err := n.requireVertices(origin, destination); err != nil {
		return err
	}
	n.adjacency[origin] = append(n.adjacency[origin], &Edge{Neighbor: destination, Distance: distance, MovementFraction: fraction})
	return nil
}

// Neighbors returns the live outgoing edges of id
func (n *Network) Neighbors(id CityID) ([]*Edge, error) {
	edges, ok := n.adjacency[id]
	if !ok {
		return nil, &NotFoundError{IDs: []CityID{id}}
	}
	return edges, nil
}

// UpdateEdgeMovementFraction replaces the fraction on the edge from origin to
// destination. Unknown origins or destinations are ignored.
func (n *Network) UpdateEdgeMovementFraction(origin, destination CityID, fraction float64) {
	for _, e := range n.adjacency[origin] {
		if e.Neighbor == destination {
			e.MovementFraction = fraction
			return
		}
	}
}

// Reachable lists every vertex reachable from start over directed edges, in
// breadth-first order, starting with start itself.
func (n *Network) Reachable(start CityID) ([]CityID, error) {
	if !n.HasVertex(start) {
		return nil, &NotFoundError{IDs: []CityID{start}}
	}

	visited := map[CityID]bool{start: true}
	queue := []CityID{start}
	out := make([]CityID, 0, len(n.order))

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		out = append(out, v)

		for _, e := range n.adjacency[v] {
			if !visited[e.Neighbor] {
				visited[e.Neighbor] = true
				queue = append(queue, e.Neighbor)
			}
		}
	}
	return out, nil
}

// AdjacencyView returns a deep copy of every edge and in-flight batch, keyed
// by origin. Changes to the view never reach the network.
func (n *Network) AdjacencyView() AdjacencyView {
	view := make(AdjacencyView, len(n.adjacency))
	for _, id := range n.order {
		edges := n.adjacency[id]
		copied := make([]Edge, len(edges))
		for i, e := range edges {
			copied[i] = e.Clone()
		}
		view[id] = copied
	}
	return view
}

// AdvanceFlows adds dt to the elapsed time of every in-flight batch
func (n *Network) AdvanceFlows(dt float64) {
	for _, id := range n.order {
		for _, e := range n.adjacency[id] {
			for _, f := range e.Flows {
				f.ElapsedTime += dt
			}
		}
	}
}

// CollectArrivals removes every batch that has completed its journey and
// returns them in vertex, edge, then departure order.
func (n *Network) CollectArrivals() []*TransitFlow {
	var arrived []*TransitFlow
	for _, id := range n.order {
		for _, e := range n.adjacency[id] {
			if len(e.Flows) == 0 {
				continue
			}
			pending := e.Flows[:0]
			for _, f := range e.Flows {
				if f.Arrived() {
					arrived = append(arrived, f)
				} else {
					pending = append(pending, f)
				}
			}
			// drop references held past the new length
			for i := len(pending); i < len(e.Flows); i++ {
				e.Flows[i] = nil
			}
			e.Flows = pending
		}
	}
	return arrived
}

// InTransit sums every batch currently on the network
func (n *Network) InTransit() Compartments {
	var total Compartments
	for _, id := range n.order {
		for _, e := range n.adjacency[id] {
			total = total.Add(e.InTransit())
		}
	}
	return total
}

// FlowCount returns the number of batches currently on the network
func (n *Network) FlowCount() int {
	count := 0
	for _, edges := range n.adjacency {
		for _, e := range edges {
			count += len(e.Flows)
		}
	}
	return count
}

func (n *Network) requireVertices(ids ...CityID) error {
	var missing []CityID
	for _, id := range ids {
		if !n.HasVertex(id) && !slices.Contains(missing, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &NotFoundError{IDs: missing}
	}
	return nil
}

// AdjacencyView is a read-only copy of a network's edges keyed by origin
type AdjacencyView map[CityID][]Edge

// Neighbors returns the copied edges leaving id
func (v AdjacencyView) Neighbors(id CityID) []Edge {
	return v[id]
}

// Flows returns every copied batch in the view, ordered by origin id
func (v AdjacencyView) Flows() []TransitFlow {
	ids := make([]CityID, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []TransitFlow
	for _, id := range ids {
		for _, e := range v[id] {
			for _, f := range e.Flows {
				out = append(out, *f)
			}
		}
	}
	return out
}
