package store

import (
	"fmt"
)

// RefreshRun is one recorded execution of a refresh stage.
type RefreshRun struct {
	ID         string
	Stage      string
	StartedAt  string
	DurationMs int64
	OK         bool
	Rows       int64
	Message    string
}

// InsertRefreshRun records a refresh stage execution.
func (s *Store) InsertRefreshRun(r *RefreshRun) error {
	_, err := s.writer.Exec(`
		INSERT INTO refresh_runs (id, stage, started_at, duration_ms, ok, rows, message)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Stage, r.StartedAt, r.DurationMs, boolToInt(r.OK), r.Rows, r.Message,
	)
	if err != nil {
		return fmt.Errorf("store: insert refresh run: %w", err)
	}
	return nil
}

// ListRefreshRuns returns the most recent refresh runs, newest first.
func (s *Store) ListRefreshRuns(limit int) ([]*RefreshRun, error) {
	rows, err := s.reader.Query(`
		SELECT id, stage, started_at, duration_ms, ok, rows, message
		FROM refresh_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list refresh runs: %w", err)
	}
	defer rows.Close()

	var runs []*RefreshRun
	for rows.Next() {
		r := &RefreshRun{}
		var ok int
		if err := rows.Scan(&r.ID, &r.Stage, &r.StartedAt, &r.DurationMs, &ok, &r.Rows, &r.Message); err != nil {
			return nil, fmt.Errorf("store: scan refresh run: %w", err)
		}
		r.OK = ok != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
