package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/meshroom/internal/schema"
)

// storeSchemaVersion tracks this package's own bookkeeping tables
// (schema_history, peer_cursors), independent of the application
// schema.Registry's SchemaVersion.
//
// 0 - no bookkeeping tables
// 1 - schema_history, peer_cursors
const storeSchemaVersion = 1

// Store is the single SQLite database file backing one application
// instance (spec.md §6 "one encrypted database file at
// data_dir/<app_key_hash>.db"). It holds the registry it was last
// provisioned against so reads can resolve field kinds without a
// separate handle threaded through every call.
type Store struct {
	db  *sql.DB
	reg *schema.Registry
}

// Open opens (creating if absent) a SQLite database at path, applies the
// required pragmas, provisions this process's bookkeeping tables, and
// provisions one table per entity already declared in reg. Open is safe
// to call repeatedly against the same path and registry.
func Open(path string, reg *schema.Registry) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows only one writer; route every mutation and ingress
	// commit through this single connection rather than fight SQLite's
	// own busy-retry behavior under a pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := runBookkeepingMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run bookkeeping migrations: %w", err)
	}

	s := &Store{db: db, reg: reg}
	if reg != nil {
		if err := s.Provision(context.Background(), reg); err != nil {
			db.Close()
			return nil, fmt.Errorf("provision schema: %w", err)
		}
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB. Prefer Store methods; this exists
// for callers (the harness, ad-hoc diagnostics) that need a raw query.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Query is a convenience wrapper around db.QueryContext. Callers close
// the returned rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// runBookkeepingMigrations creates/upgrades this package's own tables
// (everything except per-entity tables, which Provision owns) using the
// same PRAGMA user_version versioning the teacher's store uses, scoped
// to a dedicated pragma name so it never collides with an application's
// own use of user_version.
func runBookkeepingMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA application_id").Scan(&version); err != nil {
		return fmt.Errorf("get application_id: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA application_id = %d", storeSchemaVersion)); err != nil {
		return fmt.Errorf("set application_id: %w", err)
	}
	return nil
}

// migrateToV1 creates the store's bookkeeping tables: schema_history
// records every schema.Registry.Apply call's source text and the
// resulting version for audit and recovery; peer_cursors is the durable
// per-(room, author) sync high-water mark (replay.go).
func migrateToV1(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_history (
			version INTEGER PRIMARY KEY,
			document TEXT NOT NULL,
			applied_at_mdate INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS peer_cursors (
			room_id TEXT NOT NULL,
			author BLOB NOT NULL,
			mdate INTEGER NOT NULL,
			id TEXT NOT NULL,
			PRIMARY KEY (room_id, author)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value. Used
// for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
