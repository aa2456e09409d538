package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hpungsan/phototag/internal/config"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// FileName is the database file created inside the base directory.
const FileName = "phototag.db"

// pragmas apply to every pooled connection. Transactions take the write
// lock at BEGIN.
var pragmas = []string{
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_pragma=synchronous(FULL)",
	"_txlock=immediate",
}

// DSN returns the driver connection string for the database at path.
func DSN(path string) string {
	return path + "?" + strings.Join(pragmas, "&")
}

// Init initializes the SQLite database at baseDir/phototag.db.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.phototag.
func Init(baseDir string) (*sql.DB, error) {
	// Base and exports directories are private to the user
	for _, dir := range []string{baseDir, filepath.Join(baseDir, "exports")} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		// Best-effort: MkdirAll leaves existing modes alone
		_ = os.Chmod(dir, 0700)
	}

	dbPath := filepath.Join(baseDir, FileName)
	db, err := sql.Open("sqlite", DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sql.Open is lazy; the first query below creates the file
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return db, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
func ConfigurePool(db *sql.DB, cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.DBMaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema (v1)
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS records (
		  id          TEXT PRIMARY KEY,
		  photo_ref   TEXT NOT NULL,
		  comment     TEXT NOT NULL DEFAULT '',
		  created_at  INTEGER NOT NULL,
		  updated_at  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_records_created
		ON records(created_at DESC, id DESC);

		CREATE TABLE IF NOT EXISTS record_tags (
		  record_id   TEXT NOT NULL,
		  position    INTEGER NOT NULL,
		  tag         TEXT NOT NULL,
		  PRIMARY KEY (record_id, tag)
		);

		CREATE INDEX IF NOT EXISTS idx_record_tags_tag
		ON record_tags(tag, record_id);

		CREATE TABLE IF NOT EXISTS alarms (
		  id              TEXT PRIMARY KEY,
		  record_id       TEXT NOT NULL,
		  fire_at         INTEGER NOT NULL,
		  status          TEXT NOT NULL CHECK (status IN ('pending', 'fired', 'cancelled')),
		  schedule_error  TEXT,
		  created_at      INTEGER NOT NULL,
		  updated_at      INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alarms_record
		ON alarms(record_id, created_at DESC);

		CREATE UNIQUE INDEX IF NOT EXISTS idx_alarms_one_pending
		ON alarms(record_id)
		WHERE status = 'pending';

		CREATE INDEX IF NOT EXISTS idx_alarms_pending_fire_at
		ON alarms(fire_at)
		WHERE status = 'pending';
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

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
