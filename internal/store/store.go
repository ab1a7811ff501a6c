package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is the user_version a fully migrated run store
// carries. Version 0 is schema.sql as first shipped: runs, their per-target
// reports, and review decisions keyed by (rule, target glob).
const currentSchemaVersion = 1

// migrations[i] upgrades a run store from user_version i to i+1.
var migrations = []struct {
	name string
	stmt string
}{
	// conform runs --standard lists one standard's runs newest first.
	{"index runs by standard", `CREATE INDEX IF NOT EXISTS idx_runs_standard ON runs(standard, seq)`},
}

// connPragmas are applied to every connection. WAL lets `conform runs`
// and `conform review --list` read while `conform watch --save` writes.
var connPragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the run store behind check --save, report, runs, diff and review.
// It holds compliance runs with their per-target reports, and the manual
// review decisions that resolve needs_review findings.
type Store struct {
	db *sql.DB
}

// Open opens the run store at path, creating the file and schema on first
// use and migrating older stores to currentSchemaVersion. Deleting a run
// deletes its reports through the foreign key.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to run store %s: %w", path, err)
	}

	// One writer; a run and its reports are written in a single transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the run store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range connPragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies every migration past the store's user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for v := version; v < len(migrations); v++ {
		m := migrations[v]
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", v+1, m.name, err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma reports an error unless pragma name reads back as expected.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
