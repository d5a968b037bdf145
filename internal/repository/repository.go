package repository

import (
	"context"
	"errors"
	"time"

	"epinet/internal/domain"
	"epinet/internal/simulation"
)

// ErrNotFound is returned when a run or snapshot does not exist
var ErrNotFound = errors.New("not found")

// Run describes one simulation run from reset to reset
type Run struct {
	ID         string                   `json:"id"`
	Scenario   string                   `json:"scenario"`
	Parameters domain.DiseaseParameters `json:"parameters"`
	Options    simulation.Options       `json:"options"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt *time.Time               `json:"finished_at,omitempty"`
	LastTick   int                      `json:"last_tick"`
}

// CityPoint is one city's compartments at one recorded tick
type CityPoint struct {
	Tick         int                 `json:"tick"`
	ElapsedTime  float64             `json:"elapsed_time"`
	Compartments domain.Compartments `json:"compartments"`
}

// Repository defines the interface for run history access
type Repository interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	FinishRun(ctx context.Context, id string, at time.Time) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Snapshots
	SaveSnapshot(ctx context.Context, runID string, snapshot *simulation.Snapshot) error
	LatestSnapshot(ctx context.Context, runID string) (*simulation.Snapshot, error)
	CityHistory(ctx context.Context, runID string, city domain.CityID, limit int) ([]CityPoint, error)

	// Close releases resources
	Close() error
}
