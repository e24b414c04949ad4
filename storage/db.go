// Package storage is the SQLite persistence layer: conversation checkpoints,
// book project artifacts and versioned specialist prompts.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("storage: not found")

type DB struct{ *sql.DB }

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" gives a private in-process database.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("storage: database path is required")
	}
	if !strings.HasPrefix(path, ":memory:") && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if strings.HasPrefix(path, ":memory:") || strings.Contains(path, "mode=memory") {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &DB{DB: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			conversation_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS book_projects (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			current_stage TEXT NOT NULL DEFAULT 'profiling',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS author_profiles (
			project_id TEXT PRIMARY KEY REFERENCES book_projects(id) ON DELETE CASCADE,
			profile_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS audience_personas (
			project_id TEXT PRIMARY KEY REFERENCES book_projects(id) ON DELETE CASCADE,
			persona TEXT NOT NULL,
			questions_asked INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chapters (
			project_id TEXT NOT NULL REFERENCES book_projects(id) ON DELETE CASCADE,
			chapter_number INTEGER NOT NULL,
			title TEXT NOT NULL,
			plan_json TEXT NOT NULL DEFAULT '{}',
			raw_transcript TEXT NOT NULL DEFAULT '',
			gap_report_json TEXT NOT NULL DEFAULT '',
			draft_markdown TEXT NOT NULL DEFAULT '',
			draft_html TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'planned',
			updated_at TEXT NOT NULL,
			PRIMARY KEY(project_id, chapter_number)
		);`,
		`CREATE TABLE IF NOT EXISTS agent_prompts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_name TEXT NOT NULL,
			description TEXT NOT NULL,
			prompt_version INTEGER NOT NULL,
			prompt_content TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			UNIQUE(agent_name, prompt_version)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_prompts_active ON agent_prompts(agent_name, is_active);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
