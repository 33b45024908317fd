// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB manages the local SQLite database that records build cycles and
// caches task input fingerprints between runs.
type DB struct {
	db *sql.DB
}

// Build represents one recorded build cycle
type Build struct {
	ID         string
	StartedAt  time.Time
	DurationMS int64
	Outcome    string // "success", "failed", "cancelled"
	Trigger    string // summary of what triggered it
}

// NewDB creates and initializes the history database under configDir
func NewDB(configDir string) (*DB, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	dbPath := filepath.Join(configDir, "build_history.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	h := &DB{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return h, nil
}

// Close closes the database connection
func (h *DB) Close() error {
	return h.db.Close()
}

// initSchema creates the necessary tables
func (h *DB) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		trigger_summary TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);

	CREATE TABLE IF NOT EXISTS task_fingerprints (
		task TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := h.db.Exec(schema)
	return err
}

// RecordBuild inserts one completed build cycle
func (h *DB) RecordBuild(build Build) error {
	_, err := h.db.Exec(
		"INSERT INTO builds (id, started_at, duration_ms, outcome, trigger_summary) VALUES (?, ?, ?, ?, ?)",
		build.ID, build.StartedAt, build.DurationMS, build.Outcome, build.Trigger,
	)
	if err != nil {
		return fmt.Errorf("failed to record build: %w", err)
	}
	return nil
}

// RecentBuilds returns the most recent builds, newest first
func (h *DB) RecentBuilds(limit int) ([]Build, error) {
	rows, err := h.db.Query(
		"SELECT id, started_at, duration_ms, outcome, trigger_summary FROM builds ORDER BY started_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	var builds []Build
	for rows.Next() {
		var b Build
		if err := rows.Scan(&b.ID, &b.StartedAt, &b.DurationMS, &b.Outcome, &b.Trigger); err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, b)
	}
	return builds, rows.Err()
}

// TaskHash returns the cached fingerprint hash for a task, or "" when
// the task has not been seen yet
func (h *DB) TaskHash(task string) (string, error) {
	var hash string
	err := h.db.QueryRow("SELECT hash FROM task_fingerprints WHERE task = ?", task).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query task fingerprint: %w", err)
	}
	return hash, nil
}

// UpsertTaskHash stores the latest fingerprint hash for a task
func (h *DB) UpsertTaskHash(task, hash string) error {
	const query = `
		INSERT INTO task_fingerprints (task, hash, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(task) DO UPDATE SET
			hash = excluded.hash,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := h.db.Exec(query, task, hash); err != nil {
		return fmt.Errorf("failed to upsert task fingerprint: %w", err)
	}
	return nil
}
