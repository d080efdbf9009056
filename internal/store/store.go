package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Tables only
// 1 - Added partial UNIQUE index on open versions and the family index
const currentSchemaVersion = 1

// Store provides durable storage for the Silver version history, the run
// ledger and quarantined rows. Uses SQLite with WAL mode so inspection
// commands can read while a run commits.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// Opening an existing database is safe; schema and migrations are
// idempotent.
func Open(path string) (*Store, error) {
	// Creates the file on first use
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sql.Open is lazy; make sure the file is actually usable
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: a commit is a single write transaction and pragmas
	// are per connection, so a second pooled connection would miss them.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1) // keep the configured connection alive

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	// Tables, then the indexes older files are missing
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection. Safe on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query executes a read query. Used by the gold projection and the CLI
// for ad-hoc inspection. Callers are responsible for closing the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// applyPragmas sets required SQLite configuration. foreign_keys must be
// on for versions and quarantine rows to reference their run.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",   // readers do not block the commit
		"PRAGMA synchronous = NORMAL", // fsync at checkpoints only
		"PRAGMA busy_timeout = 5000",  // wait out a concurrent inspect
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Every statement in schema.sql is IF NOT EXISTS.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	// Indexes live in migrations so old and new files converge
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
// A fresh file reports version 0 and runs every step.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// Steps run in order; each is idempotent
	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	// PRAGMA does not take bind parameters
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the indexes that enforce one open version per entity
// and serve family lookups. The partial unique index is the storage-level
// backstop for DUPLICATE_CURRENT: a commit that would leave two open
// versions fails inside the transaction and rolls back.
func migrateToV1(db *sql.DB) error {
	stmts := []string{
		// is_current = 1 rows only; closed versions may repeat an entity
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_one_current
		 ON versions(entity_id) WHERE is_current = 1`,
		// gold bridge and family lookups
		`CREATE INDEX IF NOT EXISTS idx_versions_family
		 ON versions(family_id, entity_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value on the
// store's connection. Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
