package codec

import (
	"fmt"
	"io"

	"epinet/internal/domain"
	"epinet/internal/simulation"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export with one flat list per concern, which
// reads better by hand than the nested JSON form.
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of the exported document
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// yamlSnapshot represents the YAML structure for a snapshot
type yamlSnapshot struct {
	Tick        int                      `yaml:"tick"`
	ElapsedTime float64                  `yaml:"elapsed_time"`
	R0          float64                  `yaml:"r0"`
	Parameters  domain.DiseaseParameters `yaml:"parameters"`
	Cities      []yamlCity               `yaml:"cities"`
	Edges       []yamlEdge               `yaml:"edges"`
}

type yamlCity struct {
	ID          string  `yaml:"id"`
	Susceptible float64 `yaml:"susceptible"`
	Infected    float64 `yaml:"infected"`
	Recovered   float64 `yaml:"recovered"`
	EffectiveR  float64 `yaml:"effective_r"`
}

type yamlEdge struct {
	From             string     `yaml:"from"`
	To               string     `yaml:"to"`
	Distance         float64    `yaml:"distance"`
	MovementFraction float64    `yaml:"movement_fraction"`
	Flows            []yamlFlow `yaml:"flows,omitempty"`
}

type yamlFlow struct {
	ID            string  `yaml:"id"`
	Susceptible   float64 `yaml:"susceptible"`
	Infected      float64 `yaml:"infected"`
	Recovered     float64 `yaml:"recovered"`
	TravelTime    float64 `yaml:"travel_time"`
	ElapsedTime   float64 `yaml:"elapsed_time"`
	DepartureTime float64 `yaml:"departure_time"`
}

// Parse imports a snapshot from YAML
func (c *YAMLCodec) Parse(r io.Reader) (*simulation.Snapshot, error) {
	var ys yamlSnapshot
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&ys); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	snapshot := &simulation.Snapshot{
		Tick:                    ys.Tick,
		ElapsedTime:             ys.ElapsedTime,
		BasicReproductionNumber: ys.R0,
		Parameters:              ys.Parameters,
		Cities:                  make([]simulation.CityState, 0, len(ys.Cities)),
		Edges:                   make(domain.AdjacencyView, len(ys.Cities)),
	}

	// Convert cities
	for _, yc := range ys.Cities {
		id := domain.CityID(yc.ID)
		snapshot.Cities = append(snapshot.Cities, simulation.CityState{
			ID: id,
			Compartments: domain.Compartments{
				Susceptible: yc.Susceptible,
				Infected:    yc.Infected,
				Recovered:   yc.Recovered,
			},
		})
		snapshot.Edges[id] = make([]domain.Edge, 0)
	}

	// Convert edges
	for _, ye := range ys.Edges {
		from, to := domain.CityID(ye.From), domain.CityID(ye.To)
		edge := domain.Edge{
			Neighbor:         to,
			Distance:         ye.Distance,
			MovementFraction: ye.MovementFraction,
			Flows:            make([]*domain.TransitFlow, 0, len(ye.Flows)),
		}
		for _, yf := range ye.Flows {
			edge.Flows = append(edge.Flows, &domain.TransitFlow{
				ID:   yf.ID,
				From: from,
				To:   to,
				Compartments: domain.Compartments{
					Susceptible: yf.Susceptible,
					Infected:    yf.Infected,
					Recovered:   yf.Recovered,
				},
				TravelTime:    yf.TravelTime,
				ElapsedTime:   yf.ElapsedTime,
				DepartureTime: yf.DepartureTime,
			})
		}
		snapshot.Edges[from] = append(snapshot.Edges[from], edge)
	}

	return snapshot, nil
}

// Export exports a snapshot to YAML
func (c *YAMLCodec) Export(snapshot *simulation.Snapshot, w io.Writer) error {
	ys := yamlSnapshot{
		Tick:        snapshot.Tick,
		ElapsedTime: snapshot.ElapsedTime,
		R0:          snapshot.BasicReproductionNumber,
		Parameters:  snapshot.Parameters,
		Cities:      make([]yamlCity, 0, len(snapshot.Cities)),
		Edges:       make([]yamlEdge, 0),
	}

	// Convert cities, then their outgoing edges in the same order
	for _, city := range snapshot.Cities {
		ys.Cities = append(ys.Cities, yamlCity{
			ID:          string(city.ID),
			Susceptible: city.Compartments.Susceptible,
			Infected:    city.Compartments.Infected,
			Recovered:   city.Compartments.Recovered,
			EffectiveR:  snapshot.EffectiveReproductionNumber(city.ID),
		})
	}

	for _, city := range snapshot.Cities {
		for _, edge := range snapshot.Edges.Neighbors(city.ID) {
			ye := yamlEdge{
				From:             string(city.ID),
				To:               string(edge.Neighbor),
				Distance:         edge.Distance,
				MovementFraction: edge.MovementFraction,
			}
			for _, f := range edge.Flows {
				ye.Flows = append(ye.Flows, yamlFlow{
					ID:            f.ID,
					Susceptible:   f.Compartments.Susceptible,
					Infected:      f.Compartments.Infected,
					Recovered:     f.Compartments.Recovered,
					TravelTime:    f.TravelTime,
					ElapsedTime:   f.ElapsedTime,
					DepartureTime: f.DepartureTime,
				})
			}
			ys.Edges = append(ys.Edges, ye)
		}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&ys); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
