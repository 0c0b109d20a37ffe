package store

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one numbered schema step. Steps run in order, each in its
// own transaction, and are recorded in the migrations table.
type migration struct {
	version int
	apply   func(tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: execAll(allSchemas...)},
	{version: 2, apply: execAll(`CREATE INDEX IF NOT EXISTS idx_refresh_runs_stage ON refresh_runs(stage, started_at);`)},
}

func execAll(stmts ...string) func(*sql.Tx) error {
	return func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("exec schema: %w", err)
			}
		}
		return nil
	}
}

// Migrate brings the database up to the latest schema version.
func (s *Store) Migrate() error {
	if _, err := s.writer.Exec(schemaMigrations); err != nil {
		return fmt.Errorf("store: create migrations table: %w", err)
	}

	current, err := s.currentVersion()
	if err != nil {
		return fmt.Errorf("store: read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.runMigration(m); err != nil {
			return fmt.Errorf("store: migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// currentVersion returns the highest applied migration, 0 on a fresh database.
func (s *Store) currentVersion() (int, error) {
	var v int
	err := s.writer.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&v)
	return v, err
}

func (s *Store) runMigration(m migration) error {
	tx, err := s.writer.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return err
	}
	return tx.Commit()
}
