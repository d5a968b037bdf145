package simulation

import (
	"errors"
	"math"
	"strings"
	"testing"

	"epinet/internal/domain"
)

func newTestSystem(t *testing.T, params domain.DiseaseParameters, opts Options) *System {
	t.Helper()
	s, err := NewSystem(params, opts)
	if err != nil {
		t.Fatalf("failed to create system: %v", err)
	}
	return s
}

func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func assertClose(t *testing.T, name string, want, got float64) {
	t.Helper()
	if math.Abs(want-got) > 1e-6 {
		t.Errorf("%s: expected %v, got %v", name, want, got)
	}
}

// twoCityScenario builds A(900, 10, 0) -> B(500, 0, 0) with a tenth of A
// leaving every time unit and a travel time of one.
func twoCityScenario(t *testing.T, params domain.DiseaseParameters) *System {
	t.Helper()
	s := newTestSystem(t, params, Options{TravelSpeed: 10, MovementInterval: 1})
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 900, Infected: 10}))
	assertNoError(t, s.AddCity("B", domain.Compartments{Susceptible: 500}))
	assertNoError(t, s.AddEdge("A", "B", 10, 0.1, 0))
	return s
}

func TestNewSystem(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"defaults", DefaultOptions(), false},
		{"zero interval", Options{TravelSpeed: 1}, false},
		{"zero speed", Options{TravelSpeed: 0, MovementInterval: 1}, true},
		{"negative interval", Options{TravelSpeed: 1, MovementInterval: -1}, true},
		{"NaN speed", Options{TravelSpeed: math.NaN()}, true},
		{"unknown allocation", Options{TravelSpeed: 1, Allocation: "random"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSystem(domain.DiseaseParameters{}, tt.opts)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSystem() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	t.Run("empty allocation defaults to floor", func(t *testing.T) {
		s := newTestSystem(t, domain.DiseaseParameters{}, Options{TravelSpeed: 1})
		if s.Options().Allocation != AllocateFloor {
			t.Errorf("expected %s, got %s", AllocateFloor, s.Options().Allocation)
		}
	})
}

func TestSystemRegistry(t *testing.T) {
	s := newTestSystem(t, domain.DiseaseParameters{}, DefaultOptions())
	assertNoError(t, s.AddCity("B", domain.Compartments{Susceptible: 1}))
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 2}))

	t.Run("duplicate city is rejected", func(t *testing.T) {
		err := s.AddCity("A", domain.Compartments{})
		var dup *domain.DuplicateIDError
		if !errors.As(err, &dup) || dup.ID != "A" {
			t.Errorf("expected DuplicateIDError for A, got %v", err)
		}
		if c, _ := s.City("A"); c.Compartments.Susceptible != 2 {
			t.Error("expected the original city to be kept")
		}
	})

	t.Run("cities keep registration order", func(t *testing.T) {
		ids := s.CityIDs()
		if len(ids) != 2 || ids[0] != "B" || ids[1] != "A" {
			t.Errorf("unexpected order %v", ids)
		}
		cities := s.Cities()
		if cities[0].ID != "B" {
			t.Errorf("expected B first, got %s", cities[0].ID)
		}
	})

	t.Run("edge to unknown city is not found", func(t *testing.T) {
		err := s.AddEdge("A", "Z", 1, 0, 0)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("neighbors of unknown city is not found", func(t *testing.T) {
		_, err := s.Neighbors("Z")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("has city", func(t *testing.T) {
		if !s.HasCity("A") || s.HasCity("Z") {
			t.Error("unexpected HasCity result")
		}
	})
}

func TestSystemStepRejectsInvalidTimeStep(t *testing.T) {
	s := twoCityScenario(t, domain.DiseaseParameters{})

	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := s.Step(dt); !errors.Is(err, ErrInvalidTimeStep) {
			t.Errorf("Step(%v): expected ErrInvalidTimeStep, got %v", dt, err)
		}
	}
	if s.ElapsedTime() != 0 {
		t.Errorf("expected no time to pass, got %v", s.ElapsedTime())
	}
}

func TestTwoCityScenario(t *testing.T) {
	s := twoCityScenario(t, domain.DiseaseParameters{})

	assertNoError(t, s.Step(1))

	a, _ := s.City("A")
	if a.Compartments.Susceptible != 810 || a.Compartments.Infected != 9 {
		t.Errorf("expected A to keep S=810 I=9, got %+v", a.Compartments)
	}

	edges, _ := s.Neighbors("A")
	if len(edges[0].Flows) != 1 {
		t.Fatalf("expected one batch in flight, got %d", len(edges[0].Flows))
	}
	flow := edges[0].Flows[0]
	if flow.Compartments != (domain.Compartments{Susceptible: 90, Infected: 1}) {
		t.Errorf("expected batch S=90 I=1, got %+v", flow.Compartments)
	}
	if flow.TravelTime != 1 {
		t.Errorf("expected travel time 1, got %v", flow.TravelTime)
	}
	if flow.DepartureTime != 1 || flow.ElapsedTime != 0 {
		t.Errorf("expected departure at 1 with nothing elapsed, got %+v", flow)
	}
	if back, _ := s.Neighbors("B"); len(back[0].Flows) != 0 {
		t.Error("expected no batch from B with a zero fraction")
	}

	assertNoError(t, s.Step(1))

	b, _ := s.City("B")
	if b.Compartments.Susceptible != 590 || b.Compartments.Infected != 1 {
		t.Errorf("expected B to receive the batch, got %+v", b.Compartments)
	}
	// second cycle: floor(819 * 0.1) = 81 -> S 80, I 0 under floor allocation
	a, _ = s.City("A")
	if a.Compartments.Susceptible != 730 || a.Compartments.Infected != 9 {
		t.Errorf("expected A after second cycle S=730 I=9, got %+v", a.Compartments)
	}
	if len(edges[0].Flows) != 1 || edges[0].Flows[0].ID == flow.ID {
		t.Error("expected the first batch delivered and a new one in flight")
	}
}

func TestTwoCityScenarioWithDisease(t *testing.T) {
	params, err := domain.LookupPreset(domain.PresetEpidemic)
	assertNoError(t, err)
	s := twoCityScenario(t, params)

	assertNoError(t, s.Step(0.001))
	assertNoError(t, s.Step(0.999))

	edges, _ := s.Neighbors("A")
	if len(edges[0].Flows) != 1 {
		t.Fatalf("expected one batch, got %d", len(edges[0].Flows))
	}
	got := edges[0].Flows[0].Compartments
	if got.Population() < 80 || got.Population() > 91 {
		t.Errorf("expected about a tenth of A in transit, got %+v", got)
	}
	if got != got.Floor() {
		t.Errorf("expected whole people in transit, got %+v", got)
	}
}

func TestMovementCadence(t *testing.T) {
	t.Run("small steps accumulate to one cycle", func(t *testing.T) {
		s := twoCityScenario(t, domain.DiseaseParameters{})
		edges, _ := s.Neighbors("A")

		for i := 0; i < 9; i++ {
			assertNoError(t, s.Step(0.1))
		}
		if len(edges[0].Flows) != 0 {
			t.Fatalf("expected no batch before the interval, got %d", len(edges[0].Flows))
		}
		assertNoError(t, s.Step(0.1))
		if len(edges[0].Flows) != 1 {
			t.Fatalf("expected one batch after the interval, got %d", len(edges[0].Flows))
		}
	})

	t.Run("zero interval moves every step", func(t *testing.T) {
		s := newTestSystem(t, domain.DiseaseParameters{}, Options{TravelSpeed: 1})
		assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 1000}))
		assertNoError(t, s.AddCity("B", domain.Compartments{}))
		assertNoError(t, s.AddEdge("A", "B", 100, 0.01, 0))

		for i := 0; i < 3; i++ {
			assertNoError(t, s.Step(0.1))
		}
		edges, _ := s.Neighbors("A")
		if len(edges[0].Flows) != 3 {
			t.Errorf("expected 3 concurrent batches, got %d", len(edges[0].Flows))
		}
	})
}

func TestNoPrematureDelivery(t *testing.T) {
	arrival := func(t *testing.T, dt float64, steps int) float64 {
		t.Helper()
		s := twoCityScenario(t, domain.DiseaseParameters{})
		for i := 0; i < steps; i++ {
			assertNoError(t, s.Step(dt))
			if b, _ := s.City("B"); b.Population() > 500 {
				return s.ElapsedTime()
			}
		}
		t.Fatalf("batch never arrived with dt=%v", dt)
		return 0
	}

	coarse := arrival(t, 1, 10)
	fine := arrival(t, 0.1, 100)

	assertClose(t, "coarse arrival", 2, coarse)
	assertClose(t, "fine arrival", 2, fine)
}

func TestTransitConservation(t *testing.T) {
	s := newTestSystem(t, domain.DiseaseParameters{}, Options{TravelSpeed: 2, MovementInterval: 0.5})
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 1234, Infected: 56, Recovered: 78}))
	assertNoError(t, s.AddCity("B", domain.Compartments{Susceptible: 400, Infected: 3}))
	assertNoError(t, s.AddCity("C", domain.Compartments{Susceptible: 800}))
	assertNoError(t, s.AddEdge("A", "B", 4, 0.07, 0.05))
	assertNoError(t, s.AddEdge("B", "C", 1, 0.2, 0.1))
	assertNoError(t, s.AddEdge("A", "C", 3, 0.03, 0.15))

	initial := s.TotalPopulation()
	for i := 0; i < 200; i++ {
		before := s.TotalPopulation()
		assertNoError(t, s.Step(0.05))
		assertClose(t, "population during step", before, s.TotalPopulation())

		for _, c := range s.Cities() {
			if c.Compartments.Susceptible < 0 || c.Compartments.Infected < 0 || c.Compartments.Recovered < 0 {
				t.Fatalf("negative compartment in %s: %+v", c.ID, c.Compartments)
			}
		}
	}
	assertClose(t, "population overall", initial, s.TotalPopulation())
}

func TestExtractionMatchesBatch(t *testing.T) {
	s := newTestSystem(t, domain.DiseaseParameters{}, Options{TravelSpeed: 1, MovementInterval: 1})
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 333, Infected: 333, Recovered: 334}))
	assertNoError(t, s.AddCity("B", domain.Compartments{}))
	assertNoError(t, s.AddCity("C", domain.Compartments{}))
	assertNoError(t, s.AddEdge("A", "B", 5, 0.25, 0))
	assertNoError(t, s.AddEdge("A", "C", 5, 0.5, 0))

	before, _ := s.City("A")
	start := before.Compartments
	assertNoError(t, s.Step(1))

	after, _ := s.City("A")
	moved := s.InTransit()
	if got := after.Compartments.Add(moved); got != start {
		t.Errorf("expected origin + transit to equal the start state %+v, got %+v", start, got)
	}

	edges, _ := s.Neighbors("A")
	// both fractions apply to the same start-of-cycle population of 1000
	if p := edges[0].Flows[0].Compartments.Population(); p > 250 || p < 248 {
		t.Errorf("expected about 250 toward B, got %v", p)
	}
	if p := edges[1].Flows[0].Compartments.Population(); p > 500 || p < 498 {
		t.Errorf("expected about 500 toward C, got %v", p)
	}
}

func TestOverdrawnOriginNeverGoesNegative(t *testing.T) {
	s := newTestSystem(t, domain.DiseaseParameters{}, Options{TravelSpeed: 1, MovementInterval: 1})
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 10, Infected: 10}))
	assertNoError(t, s.AddCity("B", domain.Compartments{}))
	assertNoError(t, s.AddCity("C", domain.Compartments{}))
	assertNoError(t, s.AddEdge("A", "B", 1, 0.8, 0))
	assertNoError(t, s.AddEdge("A", "C", 1, 0.8, 0))

	assertNoError(t, s.Step(1))

	a, _ := s.City("A")
	if a.Compartments.Susceptible < 0 || a.Compartments.Infected < 0 {
		t.Errorf("expected non-negative origin, got %+v", a.Compartments)
	}
	assertClose(t, "population", 20, s.TotalPopulation())
}

func TestMassConservationWithoutVitalDynamics(t *testing.T) {
	params := domain.DiseaseParameters{InfectionRate: 0.6, RecoveringRate: 0.2, ImmunityLossRate: 0.1}
	s := newTestSystem(t, params, Options{TravelSpeed: 5, MovementInterval: 1})
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 900, Infected: 10}))
	assertNoError(t, s.AddCity("B", domain.Compartments{Susceptible: 500, Infected: 15}))
	assertNoError(t, s.AddCity("C", domain.Compartments{Susceptible: 800}))
	assertNoError(t, s.AddEdge("A", "B", 40, 0.01, 0.05))
	assertNoError(t, s.AddEdge("B", "C", 20, 0.05, 0.1))
	assertNoError(t, s.AddEdge("A", "C", 20, 0.01, 0.1))

	for i := 0; i < 1000; i++ {
		assertNoError(t, s.Step(0.01))
	}
	assertClose(t, "total population", 2225, s.TotalPopulation())
}

func TestZeroParametersIsIdentity(t *testing.T) {
	s := newTestSystem(t, domain.DiseaseParameters{}, DefaultOptions())
	assertNoError(t, s.AddCity("A", domain.Compartments{Susceptible: 12.5, Infected: 3.25, Recovered: 1}))

	for i := 0; i < 50; i++ {
		assertNoError(t, s.Step(0.3))
	}

	a, _ := s.City("A")
	want := domain.Compartments{Susceptible: 12.5, Infected: 3.25, Recovered: 1}
	if a.Compartments != want {
		t.Errorf("expected %+v, got %+v", want, a.Compartments)
	}
}

func TestSetMovementFraction(t *testing.T) {
	s := twoCityScenario(t, domain.DiseaseParameters{})
	s.SetMovementFraction("A", "B", 0)

	assertNoError(t, s.Step(1))
	if s.InTransit().Population() != 0 {
		t.Errorf("expected nobody to travel, got %+v", s.InTransit())
	}

	s.SetMovementFraction("B", "A", 0.5)
	assertNoError(t, s.Step(1))
	if got := s.InTransit().Population(); got != 250 {
		t.Errorf("expected 250 travelling from B, got %v", got)
	}
}

func TestDescribe(t *testing.T) {
	s := twoCityScenario(t, domain.DiseaseParameters{})
	out := s.Describe()

	for _, want := range []string{"City A: S=900.00, I=10.00, R=0.00", "Connections -> B(10)", "Connections -> A(10)"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected description to contain %q, got:\n%s", want, out)
		}
	}
}
