// Package session persists playback session history to SQLite.
package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase opens (creating if needed) the session database at dbPath and
// applies pragmas and schema.
func NewDatabase(dbPath string) (*sql.DB, error) {
	// Ensure directory exists if not in-memory
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply pragmas first
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// ensureSchema creates the database schema if it doesn't exist
func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per playback session
CREATE TABLE IF NOT EXISTS playback_sessions (
    id           INTEGER PRIMARY KEY,
    started_at   INTEGER NOT NULL,
    stopped_at   INTEGER,
    device_name  TEXT    NOT NULL,
    sample_rate  INTEGER NOT NULL CHECK (sample_rate > 0),
    channels     INTEGER NOT NULL CHECK (channels > 0),
    track_count  INTEGER NOT NULL CHECK (track_count >= 0),
    capture_path TEXT
);

-- Files played in each session
CREATE TABLE IF NOT EXISTS session_tracks (
    id         INTEGER PRIMARY KEY,
    session_id INTEGER NOT NULL REFERENCES playback_sessions(id) ON DELETE CASCADE,
    file_path  TEXT    NOT NULL,
    UNIQUE(session_id, file_path)
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON playback_sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_tracks ON session_tracks(session_id);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// GetDatabasePath returns the cache path for the sessions database.
func GetDatabasePath() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		// Fallback to current directory if the cache dir is not available
		cacheDir = "."
	}

	dbDir := filepath.Join(cacheDir, "stems")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create database directory: %w", err)
	}

	return filepath.Join(dbDir, "sessions.db"), nil
}
