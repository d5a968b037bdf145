package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"epinet/internal/domain"
	"epinet/internal/repository"
	"epinet/internal/simulation"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases and per-connection
	// pragmas alive for the lifetime of the repository.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		parameters JSON NOT NULL,
		options JSON,
		started_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		elapsed_time REAL NOT NULL,
		data JSON NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, tick),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS city_states (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		city_id TEXT NOT NULL,
		elapsed_time REAL NOT NULL,
		susceptible REAL NOT NULL,
		infected REAL NOT NULL,
		recovered REAL NOT NULL,
		PRIMARY KEY (run_id, tick, city_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_city_states_city ON city_states(run_id, city_id, tick);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// ============================================================================
// Runs
// ============================================================================

// CreateRun inserts a new run
func (r *Repository) CreateRun(ctx context.Context, run *repository.Run) error {
	params, err := json.Marshal(run.Parameters)
	if err != nil {
		return fmt.Errorf("failed to marshal parameters: %w", err)
	}
	opts, err := marshalToNull(run.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO runs (id, scenario, parameters, options, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Scenario, string(params), opts, run.StartedAt.UnixNano(), timePtrToNull(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the end time of a run
func (r *Repository) FinishRun(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `UPDATE runs SET finished_at = ? WHERE id = ?`, at.UnixNano(), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return requireAffected(result, "run", id)
}

// GetRun retrieves a run by id
func (r *Repository) GetRun(ctx context.Context, id string) (*repository.Run, error) {
	var row runRow
	err := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id).Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	return row.toDomain()
}

// ListRuns returns every run, newest first
func (r *Repository) ListRuns(ctx context.Context) ([]repository.Run, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]repository.Run, 0)
	for rows.Next() {
		var row runRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and, by cascade, its snapshots
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return requireAffected(result, "run", id)
}

// ============================================================================
// Snapshots
// ============================================================================

// SaveSnapshot records the whole snapshot and its per-city rows atomically.
// Saving the same tick twice replaces the earlier record.
func (r *Repository) SaveSnapshot(ctx context.Context, runID string, snapshot *simulation.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots (run_id, tick, elapsed_time, data)
		VALUES (?, ?, ?, ?)
	`, runID, snapshot.Tick, snapshot.ElapsedTime, string(data))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO city_states (run_id, tick, city_id, elapsed_time, susceptible, infected, recovered)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare city insert: %w", err)
	}
	defer stmt.Close()

	for _, city := range snapshot.Cities {
		c := city.Compartments
		if _, err := stmt.ExecContext(ctx, runID, snapshot.Tick, string(city.ID), snapshot.ElapsedTime,
			c.Susceptible, c.Infected, c.Recovered); err != nil {
			return fmt.Errorf("failed to insert city %s: %w", city.ID, err)
		}
	}

	return tx.Commit()
}

// LatestSnapshot returns the snapshot with the highest tick of a run
func (r *Repository) LatestSnapshot(ctx context.Context, runID string) (*simulation.Snapshot, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT data FROM snapshots WHERE run_id = ? ORDER BY tick DESC LIMIT 1
	`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for run %s: %w", runID, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	var snapshot simulation.Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snapshot, nil
}

// CityHistory returns a city's recorded states in tick order. limit <= 0
// returns every point; otherwise only the most recent limit points.
func (r *Repository) CityHistory(ctx context.Context, runID string, city domain.CityID, limit int) ([]repository.CityPoint, error) {
	query := `
		SELECT tick, elapsed_time, susceptible, infected, recovered FROM (
			SELECT tick, elapsed_time, susceptible, infected, recovered
			FROM city_states
			WHERE run_id = ? AND city_id = ?
			ORDER BY tick DESC
			LIMIT ?
		) ORDER BY tick ASC
	`
	if limit <= 0 {
		limit = -1 // no limit
	}

	rows, err := r.db.QueryContext(ctx, query, runID, string(city), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query city history: %w", err)
	}
	defer rows.Close()

	points := make([]repository.CityPoint, 0)
	for rows.Next() {
		var p repository.CityPoint
		if err := rows.Scan(&p.Tick, &p.ElapsedTime,
			&p.Compartments.Susceptible, &p.Compartments.Infected, &p.Compartments.Recovered); err != nil {
			return nil, fmt.Errorf("failed to scan city state: %w", err)
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating city history: %w", err)
	}
	return points, nil
}

func requireAffected(result sql.Result, kind, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
	}
	return nil
}
