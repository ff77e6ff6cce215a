package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial sessions table",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Record capturing process and index by path",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS sessions (
    id              TEXT PRIMARY KEY,
    path            TEXT NOT NULL,
    source          TEXT NOT NULL DEFAULT '',
    started_ns      INTEGER NOT NULL,
    stopped_ns      INTEGER,
    keystrokes      INTEGER NOT NULL DEFAULT 0,
    dropped         INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_ns);
`

const migrationV1Down = `
DROP INDEX IF EXISTS idx_sessions_started;
DROP TABLE IF EXISTS sessions;
`

const migrationV2Up = `
ALTER TABLE sessions ADD COLUMN pid INTEGER NOT NULL DEFAULT 0;
CREATE INDEX IF NOT EXISTS idx_sessions_path ON sessions(path);
`

const migrationV2Down = `
DROP INDEX IF EXISTS idx_sessions_path;
ALTER TABLE sessions DROP COLUMN pid;
`

// migrateDB applies all pending migrations to the database.
func migrateDB(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  INTEGER NOT NULL,
			description TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	currentVersion, err := schemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func schemaVersion(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// rollbackMigration rolls back the last applied migration.
func rollbackMigration(db *sql.DB) error {
	currentVersion, err := schemaVersion(db)
	if err != nil {
		return err
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var migration *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			migration = &migrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.Exec(migration.Down); err != nil {
		tx.Rollback()
		return fmt.Errorf("rollback migration %d: %w", currentVersion, err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", currentVersion); err != nil {
		tx.Rollback()
		return fmt.Errorf("remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollback: %w", err)
	}
	return nil
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
}

// migrationStatus returns the current migration status.
func migrationStatus(db *sql.DB) (*MigrationStatus, error) {
	status := &MigrationStatus{
		LatestVersion: migrations[len(migrations)-1].Version,
	}

	v, err := schemaVersion(db)
	if err != nil {
		// Table might not exist yet.
		status.Pending = migrations
		return status, nil
	}
	status.CurrentVersion = v

	for _, m := range migrations {
		if m.Version > v {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// validateSchema checks that all expected tables exist.
func validateSchema(db *sql.DB) error {
	for _, table := range []string{"sessions", "schema_migrations"} {
		var count int
		err := db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("check table %s: %w", table, err)
		}
		if count == 0 {
			return fmt.Errorf("missing required table: %s", table)
		}
	}
	return nil
}
