package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file inside the base directory.
const FileName = "stravagpx.db"

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Init initializes the SQLite database at baseDir/stravagpx.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.stravagpx.
func Init(baseDir string) (*sql.DB, error) {
	// Base dir holds OAuth secrets, keep it private
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	// Open database with pragmas in connection string (applies to all connections)
	dbPath := filepath.Join(baseDir, FileName)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: credentials and run journal
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS credentials (
		  provider      TEXT PRIMARY KEY,
		  client_id     TEXT NOT NULL DEFAULT '',
		  client_secret TEXT NOT NULL DEFAULT '',
		  access_token  TEXT NOT NULL DEFAULT '',
		  refresh_token TEXT NOT NULL DEFAULT '',
		  token_type    TEXT NOT NULL DEFAULT '',
		  expiry        INTEGER NOT NULL DEFAULT 0,
		  updated_at    INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS export_runs (
		  id          TEXT PRIMARY KEY,
		  started_at  INTEGER NOT NULL,
		  finished_at INTEGER,
		  mode        TEXT NOT NULL,
		  export_dir  TEXT NOT NULL,
		  examined    INTEGER NOT NULL DEFAULT 0,
		  exported    INTEGER NOT NULL DEFAULT 0,
		  skipped     INTEGER NOT NULL DEFAULT 0,
		  empty       INTEGER NOT NULL DEFAULT 0,
		  manual      INTEGER NOT NULL DEFAULT 0,
		  failed      INTEGER NOT NULL DEFAULT 0,
		  stopped     INTEGER NOT NULL DEFAULT 0,
		  error       TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_export_runs_started
		ON export_runs(started_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
