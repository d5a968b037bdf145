package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"epinet/internal/codec"
	"epinet/internal/config"
	"epinet/internal/domain"
	"epinet/internal/loader"
	"epinet/internal/repository"
	"epinet/internal/simulation"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput marks requests rejected before touching the simulation
	ErrInvalidInput = errors.New("invalid input")
	// ErrRunComplete is returned once a run has taken its maximum number of steps
	ErrRunComplete = errors.New("run complete")
	// ErrPersistenceDisabled is returned by history queries without a repository
	ErrPersistenceDisabled = errors.New("persistence disabled")
	// ErrUnknownFormat is returned by Export for formats without an exporter
	ErrUnknownFormat = errors.New("unknown export format")
)

// RunInfo identifies the current run
type RunInfo struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	StartedAt time.Time `json:"started_at"`
	Tick      int       `json:"tick"`
	MaxSteps  int       `json:"max_steps"`
	Running   bool      `json:"running"`
}

// EdgeUpdate is the payload of EventEdgeUpdated
type EdgeUpdate struct {
	From     domain.CityID `json:"from"`
	To       domain.CityID `json:"to"`
	Fraction float64       `json:"fraction"`
}

// SimulationService owns the running simulation. Every method is safe for
// concurrent use; the driver itself is only touched under mu.
type SimulationService struct {
	mu        sync.Mutex
	driver    *simulation.Driver
	source    config.Scenario
	scenario  *config.Scenario
	run       config.RunProfile
	runID     string
	startedAt time.Time
	finished  bool
	observers []simulation.Observer

	repo     repository.Repository // nil when persistence is disabled
	eventBus *EventBus

	paused bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSimulationService resolves source and starts the first run. repo may be nil.
func NewSimulationService(ctx context.Context, source config.Scenario, run config.RunProfile, repo repository.Repository, eventBus *EventBus) (*SimulationService, error) {
	s := &SimulationService{
		source:   source,
		run:      run,
		repo:     repo,
		eventBus: eventBus,
		paused:   !run.AutoRun,
	}

	scenario, err := loader.Resolve(source)
	if err != nil {
		return nil, err
	}
	if err := s.startRun(ctx, scenario); err != nil {
		return nil, err
	}
	return s, nil
}

// startRun replaces the driver with a fresh one built from scenario.
// Callers hold mu, except during construction.
func (s *SimulationService) startRun(ctx context.Context, scenario *config.Scenario) error {
	system, err := loader.BuildSystem(scenario)
	if err != nil {
		return fmt.Errorf("failed to build system: %w", err)
	}

	driver := simulation.NewDriver(system)
	for _, o := range s.observers {
		driver.AddObserver(o)
	}

	runID := uuid.NewString()
	startedAt := time.Now().UTC()

	if s.repo != nil {
		run := &repository.Run{
			ID:         runID,
			Scenario:   scenario.Name,
			Parameters: system.Parameters(),
			Options:    system.Options(),
			StartedAt:  startedAt,
		}
		if err := s.repo.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		if err := s.repo.SaveSnapshot(ctx, runID, driver.Snapshot()); err != nil {
			return fmt.Errorf("failed to record initial state: %w", err)
		}
	}

	s.driver = driver
	s.scenario = scenario
	s.runID = runID
	s.startedAt = startedAt
	s.finished = false

	log.Printf("Started run %s (scenario=%q, cities=%d, R0=%.2f)",
		runID, scenario.Name, len(system.CityIDs()), system.Parameters().BasicReproductionNumber())
	return nil
}

// Step advances the run by n steps of the configured time step, recording and
// publishing every snapshot. It returns the last snapshot.
func (s *SimulationService) Step(ctx context.Context, n int) (*simulation.Snapshot, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: step count must be at least 1, got %d", ErrInvalidInput, n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx, n)
}

func (s *SimulationService) stepLocked(ctx context.Context, n int) (*simulation.Snapshot, error) {
	if s.finished {
		return nil, ErrRunComplete
	}

	var last *simulation.Snapshot
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		snapshot, err := s.driver.Step(s.run.TimeStep)
		if err != nil {
			return last, err
		}
		last = snapshot

		if s.repo != nil {
			if err := s.repo.SaveSnapshot(ctx, s.runID, snapshot); err != nil {
				log.Printf("Failed to record tick %d of run %s: %v", snapshot.Tick, s.runID, err)
			}
		}
		s.eventBus.Publish(Event{Type: EventSnapshot, Payload: snapshot})

		if s.run.MaxSteps > 0 && snapshot.Tick >= s.run.MaxSteps {
			s.finishLocked(ctx)
			break
		}
	}
	return last, nil
}

func (s *SimulationService) finishLocked(ctx context.Context) {
	s.finished = true
	if s.repo != nil {
		if err := s.repo.FinishRun(ctx, s.runID, time.Now().UTC()); err != nil {
			log.Printf("Failed to finish run %s: %v", s.runID, err)
		}
	}
	log.Printf("Run %s finished after %d steps", s.runID, s.driver.Tick())
	s.eventBus.Publish(Event{Type: EventRunFinished, Payload: s.infoLocked()})
}

// Snapshot returns the current state without stepping
func (s *SimulationService) Snapshot() *simulation.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.Snapshot()
}

// Reset discards the current run and starts a new one from scenario. A nil
// scenario restarts the current one.
func (s *SimulationService) Reset(ctx context.Context, scenario *config.Scenario) error {
	if scenario != nil {
		if err := scenario.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if scenario == nil {
		scenario = s.scenario
	}
	return s.resetLocked(ctx, scenario)
}

// Reload resolves the configured scenario source again and resets onto it.
// A source that no longer loads leaves the current run untouched.
func (s *SimulationService) Reload(ctx context.Context) error {
	scenario, err := loader.Resolve(s.source)
	if err != nil {
		s.eventBus.Publish(Event{Type: EventReloadFailed, Payload: map[string]string{"error": err.Error()}})
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked(ctx, scenario)
}

func (s *SimulationService) resetLocked(ctx context.Context, scenario *config.Scenario) error {
	previous := s.runID
	wasFinished := s.finished

	if err := s.startRun(ctx, scenario); err != nil {
		return err
	}

	if s.repo != nil && !wasFinished {
		if err := s.repo.FinishRun(ctx, previous, time.Now().UTC()); err != nil {
			log.Printf("Failed to finish run %s: %v", previous, err)
		}
	}

	s.eventBus.Publish(Event{Type: EventRunReset, Payload: s.infoLocked()})
	return nil
}

// AddObserver attaches o to the current driver and to every later run
func (s *SimulationService) AddObserver(o simulation.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.observers {
		if existing == o {
			return
		}
	}
	s.observers = append(s.observers, o)
	s.driver.AddObserver(o)
}

// Info describes the current run
func (s *SimulationService) Info() RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

func (s *SimulationService) infoLocked() RunInfo {
	return RunInfo{
		ID:        s.runID,
		Scenario:  s.scenario.Name,
		StartedAt: s.startedAt,
		Tick:      s.driver.Tick(),
		MaxSteps:  s.run.MaxSteps,
		Running:   !s.paused && !s.finished,
	}
}

// RunID returns the id of the current run
func (s *SimulationService) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Scenario returns a copy of the scenario behind the current run
func (s *SimulationService) Scenario() config.Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.scenario
}

// ============================================================================
// Queries
// ============================================================================

// Cities returns the state of every city in registration order
func (s *SimulationService) Cities() []simulation.CityState {
	return s.Snapshot().Cities
}

// City returns the state of one city
func (s *SimulationService) City(id domain.CityID) (simulation.CityState, error) {
	city, ok := s.Snapshot().City(id)
	if !ok {
		return simulation.CityState{}, &domain.NotFoundError{IDs: []domain.CityID{id}}
	}
	return city, nil
}

// Neighbors returns copies of the outgoing edges of a city
func (s *SimulationService) Neighbors(id domain.CityID) ([]domain.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	edges, err := s.driver.System().Neighbors(id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Clone()
	}
	return out, nil
}

// Reachable lists the cities reachable from id in breadth-first order
func (s *SimulationService) Reachable(id domain.CityID) ([]domain.CityID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver.System().Reachable(id)
}

// SetMovementFraction changes the share of origin's people sent toward
// destination on each movement cycle
func (s *SimulationService) SetMovementFraction(origin, destination domain.CityID, fraction float64) error {
	if !(fraction >= 0 && fraction <= 1) {
		return fmt.Errorf("%w: fraction must be within [0, 1], got %v", ErrInvalidInput, fraction)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	system := s.driver.System()
	edges, err := system.Neighbors(origin)
	if err != nil {
		return err
	}
	found := false
	for _, e := range edges {
		if e.Neighbor == destination {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("edge %s -> %s: %w", origin, destination, domain.ErrNotFound)
	}

	system.SetMovementFraction(origin, destination, fraction)
	s.eventBus.Publish(Event{
		Type:    EventEdgeUpdated,
		Payload: EdgeUpdate{From: origin, To: destination, Fraction: fraction},
	})
	return nil
}

// History returns recorded states of a city in the current run
func (s *SimulationService) History(ctx context.Context, id domain.CityID, limit int) ([]repository.CityPoint, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}

	s.mu.Lock()
	runID := s.runID
	known := s.driver.System().HasCity(id)
	s.mu.Unlock()

	if !known {
		return nil, &domain.NotFoundError{IDs: []domain.CityID{id}}
	}
	return s.repo.CityHistory(ctx, runID, id, limit)
}

// Runs lists recorded runs, newest first
func (s *SimulationService) Runs(ctx context.Context) ([]repository.Run, error) {
	if s.repo == nil {
		return nil, ErrPersistenceDisabled
	}
	return s.repo.ListRuns(ctx)
}

// Export writes the current snapshot in format
func (s *SimulationService) Export(format string, w io.Writer) error {
	exporter, ok := codec.ExporterFor(format)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return exporter.Export(s.Snapshot(), w)
}
