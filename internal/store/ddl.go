package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/schema"
)

// systemColumns are the row-model columns every entity table carries
// regardless of its declared fields (spec.md §3 "Row").
var systemColumnDDL = []string{
	`id TEXT NOT NULL`,
	`room_id TEXT NOT NULL`,
	`mdate INTEGER NOT NULL`,
	`author BLOB NOT NULL`,
	`signature BLOB NOT NULL`,
	`schema_version INTEGER NOT NULL`,
	`deleted INTEGER NOT NULL DEFAULT 0`,
}

// Provision records reg's current document in schema_history and creates
// (or evolves) one table per entity currently declared, plus an FTS5
// shadow table and sync triggers for any entity with a fulltext(...)
// declaration. It is idempotent: re-provisioning against an unchanged
// registry is a no-op beyond `CREATE TABLE IF NOT EXISTS`/`CREATE INDEX
// IF NOT EXISTS`.
//
// Provision does not attempt to ALTER an existing table when a field is
// added after rows already exist (SQLite's schema.Registry evolution
// rules, internal/schema, already guarantee new required fields carry a
// default, so `ADD COLUMN ... DEFAULT ...` is the right tool); that is a
// follow-on migration step not exercised by the scenarios this system
// targets and is left as a documented gap rather than guessed at.
func (s *Store) Provision(ctx context.Context, reg *schema.Registry) error {
	s.reg = reg

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("provision: begin: %w", err)
	}
	defer tx.Rollback()

	for _, spec := range reg.Entities() {
		if err := provisionEntity(tx, spec); err != nil {
			return fmt.Errorf("provision %s: %w", spec.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_history (version, document, applied_at_mdate)
		VALUES (?, ?, 0)
		ON CONFLICT(version) DO NOTHING
	`, int64(reg.Version()), describeRegistry(reg)); err != nil {
		return fmt.Errorf("provision: record schema_history: %w", err)
	}

	return tx.Commit()
}

func describeRegistry(reg *schema.Registry) string {
	names := make([]string, 0)
	for _, spec := range reg.Entities() {
		names = append(names, spec.Name)
	}
	return strings.Join(names, ",")
}

func provisionEntity(tx execTx, spec *ir.EntitySpec) error {
	if _, err := tx.Exec(createTableDDL(spec)); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	for i, idx := range spec.Indices {
		if _, err := tx.Exec(createIndexDDL(spec.Name, i, idx)); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if len(spec.FullTextIndex) > 0 {
		if err := provisionFullText(tx, spec); err != nil {
			return fmt.Errorf("provision fulltext: %w", err)
		}
	}

	return nil
}

// execTx is the subset of *sql.Tx this file needs, narrowed so
// provisionEntity can be exercised against a fake in tests without a
// real database.
type execTx interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func createTableDDL(spec *ir.EntitySpec) string {
	cols := make([]string, 0, len(systemColumnDDL)+len(spec.Fields))
	cols = append(cols, systemColumnDDL...)
	for _, f := range spec.Fields {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(f.Name), fieldColumnType(f)))
	}
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (\n\t%s,\n\tPRIMARY KEY (id)\n)",
		quoteIdent(spec.Name),
		strings.Join(cols, ",\n\t"),
	)
}

func createIndexDDL(entity string, ordinal int, idx ir.IndexSpec) string {
	quoted := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		quoted[i] = quoteIdent(f)
	}
	indexName := fmt.Sprintf("idx_%s_%d", sanitizeIdent(entity), ordinal)
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
		quoteIdent(indexName), quoteIdent(entity), strings.Join(quoted, ", "),
	)
}

// provisionFullText creates an FTS5 virtual table mirroring spec.
// FullTextIndex columns and the triggers that keep it synchronized with
// the base table. FTS5's own external-content mode expects an integer
// rowid alias, which this schema does not have (ids are opaque TEXT), so
// the shadow table is a plain (non-external-content) FTS5 index keyed by
// id and refreshed by triggers instead.
func provisionFullText(tx execTx, spec *ir.EntitySpec) error {
	ftsTable := spec.Name + "_fts"
	cols := append([]string{"id UNINDEXED"}, spec.FullTextIndex...)
	createFTS := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(%s)",
		quoteIdent(ftsTable), strings.Join(cols, ", "),
	)
	if _, err := tx.Exec(createFTS); err != nil {
		return err
	}

	insertCols := append([]string{"id"}, spec.FullTextIndex...)
	newRefs := make([]string, len(insertCols))
	for i, c := range insertCols {
		newRefs[i] = "new." + quoteIdent(c)
	}

	triggers := []string{
		fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER INSERT ON %s BEGIN\n"+
				"\tINSERT INTO %s (%s) VALUES (%s);\n"+
				"END",
			quoteIdent(sanitizeIdent(ftsTable)+"_ai"), quoteIdent(spec.Name),
			quoteIdent(ftsTable), strings.Join(quoteIdentAll(insertCols), ", "),
			strings.Join(newRefs, ", "),
		),
		fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER UPDATE ON %s BEGIN\n"+
				"\tDELETE FROM %s WHERE id = old.id;\n"+
				"\tINSERT INTO %s (%s) VALUES (%s);\n"+
				"END",
			quoteIdent(sanitizeIdent(ftsTable)+"_au"), quoteIdent(spec.Name),
			quoteIdent(ftsTable),
			quoteIdent(ftsTable), strings.Join(quoteIdentAll(insertCols), ", "),
			strings.Join(newRefs, ", "),
		),
		fmt.Sprintf(
			"CREATE TRIGGER IF NOT EXISTS %s AFTER DELETE ON %s BEGIN\n"+
				"\tDELETE FROM %s WHERE id = old.id;\n"+
				"END",
			quoteIdent(sanitizeIdent(ftsTable)+"_ad"), quoteIdent(spec.Name),
			quoteIdent(ftsTable),
		),
	}
	for _, stmt := range triggers {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdentAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = quoteIdent(n)
	}
	return out
}

// sanitizeIdent turns a qualified name like "chat.Message" into an
// unquoted identifier-safe fragment ("chat_Message") for naming indices
// and triggers, which SQLite does not let contain unescaped dots.
func sanitizeIdent(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
