package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"epinet/internal/config"
	"epinet/internal/domain"
	"epinet/internal/repository/sqlite"
	"epinet/internal/simulation"
)

func testRunProfile() config.RunProfile {
	return config.RunProfile{
		TimeStep:     0.01,
		TickInterval: 5 * time.Millisecond,
		StepsPerTick: 2,
	}
}

func newTestService(t *testing.T, run config.RunProfile, withRepo bool) (*SimulationService, *EventBus) {
	t.Helper()

	bus := NewEventBus()
	var svc *SimulationService
	var err error
	if withRepo {
		repo, rerr := sqlite.New(":memory:")
		if rerr != nil {
			t.Fatalf("failed to create repository: %v", rerr)
		}
		t.Cleanup(func() { repo.Close() })
		svc, err = NewSimulationService(context.Background(), config.DefaultScenario(), run, repo, bus)
	} else {
		svc, err = NewSimulationService(context.Background(), config.DefaultScenario(), run, nil, bus)
	}
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc, bus
}

// drain collects every event currently buffered on ch
func drain(ch chan Event) []Event {
	var events []Event
	for {
		select {
		case e := <-ch:
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 4)
	slow := make(chan Event) // unbuffered and never read
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	bus.Publish(Event{Type: EventRunReset})

	if got := drain(fast); len(got) != 1 || got[0].Type != EventRunReset {
		t.Errorf("expected one reset event, got %v", got)
	}

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventRunReset})
	if got := drain(fast); len(got) != 0 {
		t.Errorf("expected no events after unsubscribe, got %v", got)
	}
}

func TestSimulationServiceStep(t *testing.T) {
	svc, bus := newTestService(t, testRunProfile(), true)
	events := make(chan Event, 16)
	bus.Subscribe(events)

	t.Run("rejects a non-positive count", func(t *testing.T) {
		_, err := svc.Step(context.Background(), 0)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	snapshot, err := svc.Step(context.Background(), 3)
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if snapshot.Tick != 3 {
		t.Errorf("expected tick 3, got %d", snapshot.Tick)
	}

	got := drain(events)
	if len(got) != 3 {
		t.Fatalf("expected 3 snapshot events, got %d", len(got))
	}
	for i, e := range got {
		s, ok := e.Payload.(*simulation.Snapshot)
		if e.Type != EventSnapshot || !ok || s.Tick != i+1 {
			t.Errorf("event %d: unexpected %+v", i, e)
		}
	}

	t.Run("history includes the initial state", func(t *testing.T) {
		history, err := svc.History(context.Background(), "A", 0)
		if err != nil {
			t.Fatalf("History() error: %v", err)
		}
		if len(history) != 4 || history[0].Tick != 0 || history[3].Tick != 3 {
			t.Errorf("unexpected history %+v", history)
		}
	})

	t.Run("history of unknown city", func(t *testing.T) {
		_, err := svc.History(context.Background(), "Z", 0)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSimulationServiceMaxSteps(t *testing.T) {
	run := testRunProfile()
	run.MaxSteps = 5
	svc, bus := newTestService(t, run, true)
	events := make(chan Event, 16)
	bus.Subscribe(events)

	snapshot, err := svc.Step(context.Background(), 10)
	if err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	if snapshot.Tick != 5 {
		t.Errorf("expected the run to stop at tick 5, got %d", snapshot.Tick)
	}

	got := drain(events)
	if last := got[len(got)-1]; last.Type != EventRunFinished {
		t.Errorf("expected a finished event last, got %s", last.Type)
	}

	if _, err := svc.Step(context.Background(), 1); !errors.Is(err, ErrRunComplete) {
		t.Errorf("expected ErrRunComplete, got %v", err)
	}
	if svc.Info().Running {
		t.Error("expected a finished run to report not running")
	}

	runs, err := svc.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != 1 || runs[0].FinishedAt == nil || runs[0].LastTick != 5 {
		t.Errorf("unexpected runs %+v", runs)
	}
}

func TestSimulationServiceReset(t *testing.T) {
	svc, bus := newTestService(t, testRunProfile(), true)
	events := make(chan Event, 16)
	bus.Subscribe(events)

	firstRun := svc.RunID()
	if _, err := svc.Step(context.Background(), 2); err != nil {
		t.Fatalf("Step() error: %v", err)
	}
	drain(events)

	t.Run("restart the current scenario", func(t *testing.T) {
		if err := svc.Reset(context.Background(), nil); err != nil {
			t.Fatalf("Reset() error: %v", err)
		}
		if svc.RunID() == firstRun {
			t.Error("expected a new run id")
		}
		if svc.Snapshot().Tick != 0 {
			t.Errorf("expected tick 0 after reset, got %d", svc.Snapshot().Tick)
		}
		got := drain(events)
		if len(got) != 1 || got[0].Type != EventRunReset {
			t.Errorf("expected one reset event, got %v", got)
		}
	})

	t.Run("switch scenario", func(t *testing.T) {
		scenario := &config.Scenario{
			Name:        "pair",
			Preset:      domain.PresetExtinction,
			TravelSpeed: 1,
			Cities: []config.CityConfig{
				{ID: "x", Susceptible: 100, Infected: 1},
				{ID: "y", Susceptible: 100},
			},
			Edges: []config.EdgeConfig{{From: "x", To: "y", Distance: 1, Fraction: 0.1}},
		}
		if err := svc.Reset(context.Background(), scenario); err != nil {
			t.Fatalf("Reset() error: %v", err)
		}
		if svc.Scenario().Name != "pair" || len(svc.Cities()) != 2 {
			t.Errorf("expected the pair scenario, got %+v", svc.Cities())
		}
	})

	t.Run("invalid scenario keeps the current run", func(t *testing.T) {
		current := svc.RunID()
		err := svc.Reset(context.Background(), &config.Scenario{TravelSpeed: 0})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if svc.RunID() != current {
			t.Error("expected the run to be kept")
		}
	})

	runs, err := svc.Runs(context.Background())
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != 3 {
		t.Errorf("expected 3 recorded runs, got %d", len(runs))
	}
}

func TestSimulationServiceReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	write := func(infected string) {
		data := "name: reloadable\ncities:\n  - id: solo\n    susceptible: 50\n    infected: " + infected + "\n"
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatalf("WriteFile() error: %v", err)
		}
	}
	write("1")

	bus := NewEventBus()
	svc, err := NewSimulationService(context.Background(), config.Scenario{File: path}, testRunProfile(), nil, bus)
	if err != nil {
		t.Fatalf("NewSimulationService() error: %v", err)
	}

	write("7")
	if err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	city, err := svc.City("solo")
	if err != nil {
		t.Fatalf("City() error: %v", err)
	}
	if city.Compartments.Infected != 7 {
		t.Errorf("expected reloaded state, got %+v", city.Compartments)
	}

	events := make(chan Event, 4)
	bus.Subscribe(events)
	if err := os.WriteFile(path, []byte("cities: ["), 0644); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reload(context.Background()); err == nil {
		t.Error("expected Reload() to fail on a broken file")
	}
	if got := drain(events); len(got) != 1 || got[0].Type != EventReloadFailed {
		t.Errorf("expected a reload_failed event, got %v", got)
	}
	if city, _ := svc.City("solo"); city.Compartments.Infected != 7 {
		t.Error("expected the current run to survive a failed reload")
	}
}

func TestSimulationServiceQueries(t *testing.T) {
	svc, _ := newTestService(t, testRunProfile(), false)

	if _, err := svc.City("Z"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("City(Z): expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Neighbors("Z"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Neighbors(Z): expected ErrNotFound, got %v", err)
	}

	edges, err := svc.Neighbors("A")
	if err != nil {
		t.Fatalf("Neighbors() error: %v", err)
	}
	if len(edges) != 2 || edges[0].Neighbor != "B" {
		t.Errorf("unexpected edges %+v", edges)
	}

	reachable, err := svc.Reachable("C")
	if err != nil || len(reachable) != 3 {
		t.Errorf("Reachable(C) = %v, %v", reachable, err)
	}

	if _, err := svc.History(context.Background(), "A", 0); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("expected ErrPersistenceDisabled, got %v", err)
	}
	if _, err := svc.Runs(context.Background()); !errors.Is(err, ErrPersistenceDisabled) {
		t.Errorf("expected ErrPersistenceDisabled, got %v", err)
	}
}

func TestSimulationServiceSetMovementFraction(t *testing.T) {
	svc, bus := newTestService(t, testRunProfile(), false)
	events := make(chan Event, 4)
	bus.Subscribe(events)

	tests := []struct {
		name     string
		from, to domain.CityID
		fraction float64
		wantErr  error
	}{
		{"valid", "A", "B", 0.5, nil},
		{"out of range", "A", "B", 1.5, ErrInvalidInput},
		{"unknown origin", "Z", "B", 0.1, domain.ErrNotFound},
		{"unknown edge", "A", "A", 0.1, domain.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.SetMovementFraction(tt.from, tt.to, tt.fraction)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	edges, _ := svc.Neighbors("A")
	if edges[0].MovementFraction != 0.5 {
		t.Errorf("expected fraction 0.5, got %v", edges[0].MovementFraction)
	}
	if got := drain(events); len(got) != 1 || got[0].Type != EventEdgeUpdated {
		t.Errorf("expected one edge_updated event, got %v", got)
	}
}

func TestSimulationServiceExport(t *testing.T) {
	svc, _ := newTestService(t, testRunProfile(), false)

	var buf bytes.Buffer
	if err := svc.Export("yaml", &buf); err != nil {
		t.Fatalf("Export() error: %v", err)
	}
	if !strings.Contains(buf.String(), "- id: A") {
		t.Errorf("expected YAML cities, got:\n%s", buf.String())
	}

	if err := svc.Export("xml", &buf); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

type countingObserver struct {
	count int
}

func (o *countingObserver) Receive(*simulation.Snapshot) { o.count++ }

func TestSimulationServiceObserversSurviveReset(t *testing.T) {
	svc, _ := newTestService(t, testRunProfile(), false)
	o := &countingObserver{}
	svc.AddObserver(o)
	svc.AddObserver(o)

	if _, err := svc.Step(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reset(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Step(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	if o.count != 2 {
		t.Errorf("expected 2 notifications, got %d", o.count)
	}
}

func TestSimulationServiceAutoRun(t *testing.T) {
	run := testRunProfile()
	run.AutoRun = true
	svc, _ := newTestService(t, run, false)

	svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for svc.Info().Tick < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("auto-run did not advance, tick=%d", svc.Info().Tick)
		}
		time.Sleep(5 * time.Millisecond)
	}

	svc.Pause()
	if svc.Info().Running {
		t.Error("expected paused service to report not running")
	}
	paused := svc.Info().Tick
	time.Sleep(30 * time.Millisecond)
	if got := svc.Info().Tick; got != paused {
		t.Errorf("expected no steps while paused, went from %d to %d", paused, got)
	}

	svc.Stop()
	svc.Resume()
	stopped := svc.Info().Tick
	time.Sleep(30 * time.Millisecond)
	if got := svc.Info().Tick; got != stopped {
		t.Errorf("expected no steps after Stop, went from %d to %d", stopped, got)
	}
}
