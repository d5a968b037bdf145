package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"epinet/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// Times are stored as Unix nanoseconds so they survive the round trip through
// the driver without depending on its date parsing.

// nullToTimePtr safely converts a nullable Unix nanosecond column to *time.Time
func nullToTimePtr(ni sql.NullInt64) *time.Time {
	if ni.Valid {
		t := time.Unix(0, ni.Int64).UTC()
		return &t
	}
	return nil
}

// timePtrToNull safely converts *time.Time to a nullable Unix nanosecond value
func timePtrToNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalToNull marshals interface to nullable JSON string
func marshalToNull(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Run Row Scanner
// ============================================================================
//
// CRITICAL: Column order must match between runColumns and scanArgs().

// runColumns is the column list for run queries
const runColumns = `id, scenario, parameters, options, started_at, finished_at,
	(SELECT COALESCE(MAX(tick), 0) FROM snapshots WHERE snapshots.run_id = runs.id)`

// runRow holds all columns from a run query for scanning
type runRow struct {
	ID             string
	Scenario       string
	ParametersJSON string
	OptionsJSON    sql.NullString
	StartedAt      int64
	FinishedAt     sql.NullInt64
	LastTick       int
}

// scanArgs returns pointers for rows.Scan in column order
func (r *runRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.Scenario,
		&r.ParametersJSON,
		&r.OptionsJSON,
		&r.StartedAt,
		&r.FinishedAt,
		&r.LastTick,
	}
}

// toDomain converts the scanned row into a repository.Run
func (r *runRow) toDomain() (*repository.Run, error) {
	run := &repository.Run{
		ID:         r.ID,
		Scenario:   r.Scenario,
		StartedAt:  time.Unix(0, r.StartedAt).UTC(),
		FinishedAt: nullToTimePtr(r.FinishedAt),
		LastTick:   r.LastTick,
	}

	if err := json.Unmarshal([]byte(r.ParametersJSON), &run.Parameters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parameters of run %s: %w", r.ID, err)
	}
	if err := unmarshalJSONField(r.OptionsJSON, &run.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options of run %s: %w", r.ID, err)
	}
	return run, nil
}
