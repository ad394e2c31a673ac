package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
)

// WriteRow writes a single signed row in its own transaction. Callers
// writing several rows atomically (the mutation executor's transactional
// apply, spec.md §4.6; a sync commit batch, §4.7 step 6) should use
// WriteRowTx inside a shared transaction instead, e.g. via ApplyRows.
func (s *Store) WriteRow(ctx context.Context, row *ir.Row) (applied bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("write row: begin: %w", err)
	}
	defer tx.Rollback()

	applied, err = s.WriteRowTx(ctx, tx, row)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("write row: commit: %w", err)
	}
	return applied, nil
}

// WriteRowTx writes row as part of the caller's transaction tx,
// resolving row.EntityName against the store's registry.
//
// The write is an upsert with last-writer-wins conflict resolution by
// (mdate, author pubkey bytewise) (spec.md §4.7 "Conflict policy") and
// tombstone dominance: once a row is tombstoned, no later non-tombstone
// write for the same id is ever accepted, regardless of its mdate
// ("a later update after a tombstone is rejected"). SQLite compares BLOB
// columns byte-for-byte by default, so `excluded.author > author` is
// already the "bytewise" comparison the spec calls for.
//
// applied reports whether this write's values actually took effect;
// false means an existing row won the conflict (including the
// idempotent-replay case, spec.md §8 "Idempotent ingress": replaying the
// same signed row produces identical excluded.* values, so the
// mdate/author comparison is never strictly greater and the row is
// reported not-applied without error).
func (s *Store) WriteRowTx(ctx context.Context, tx *sql.Tx, row *ir.Row) (applied bool, err error) {
	spec, ok := s.reg.Resolve(row.EntityName)
	if !ok {
		return false, fmt.Errorf("write row: unknown entity %q", row.EntityName)
	}

	cols := []string{"id", "room_id", "mdate", "author", "signature", "schema_version", "deleted"}
	vals := []any{row.ID, row.RoomID, row.MDate, row.Author, row.Signature, int64(row.SchemaVersion), boolToInt(row.Deleted)}

	for _, f := range spec.Fields {
		v, ok := row.Fields[f.Name]
		if !ok {
			v = f.Default
			if v == nil {
				v = ir.VNull{}
			}
		}
		col, err := valueToColumn(v)
		if err != nil {
			return false, fmt.Errorf("write row: field %q: %w", f.Name, err)
		}
		cols = append(cols, f.Name)
		vals = append(vals, col)
	}

	placeholders := make([]string, len(cols))
	quotedCols := make([]string, len(cols))
	updateAssignments := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		placeholders[i] = "?"
		quotedCols[i] = quoteIdent(c)
		if c != "id" {
			updateAssignments = append(updateAssignments, fmt.Sprintf("%s = excluded.%s", quoteIdent(c), quoteIdent(c)))
		}
	}

	table := quoteIdent(spec.Name)
	query := fmt.Sprintf(`
		INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT(id) DO UPDATE SET %s
		WHERE NOT (%s.deleted = 1 AND excluded.deleted = 0)
		  AND (excluded.mdate > %s.mdate
		       OR (excluded.mdate = %s.mdate AND excluded.author > %s.author))
	`, table, joinStrings(quotedCols), joinStrings(placeholders),
		joinStrings(updateAssignments), table, table, table, table)

	result, err := tx.ExecContext(ctx, query, vals...)
	if err != nil {
		return false, fmt.Errorf("write row: %w", err)
	}

	// A conflicting write that the WHERE guard rejects changes no row,
	// so RowsAffected is 0 and the write is reported not applied.
	// Otherwise the row's own mdate/author are read back and compared
	// with this write's as a final check that its values are stored.
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write row: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return false, nil
	}

	var storedMDate int64
	var storedAuthor []byte
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT mdate, author FROM %s WHERE id = ?`, table), row.ID).
		Scan(&storedMDate, &storedAuthor)
	if err != nil {
		return false, fmt.Errorf("write row: verify: %w", err)
	}
	return storedMDate == row.MDate && bytesEqual(storedAuthor, row.Author), nil
}

// ApplyRows writes rows in one transaction (the mutation executor's unit
// of atomicity, spec.md §4.6: "opens a single transaction on the
// store"). Rooms and application entities share this one path: spec.md
// §3 stores a Room "as signed rows in a reserved system namespace",
// replicated and written exactly like application data.
func (s *Store) ApplyRows(ctx context.Context, rows []*ir.Row) ([]bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("apply rows: begin: %w", err)
	}
	defer tx.Rollback()

	applied := make([]bool, len(rows))
	for i, row := range rows {
		ok, err := s.WriteRowTx(ctx, tx, row)
		if err != nil {
			return nil, fmt.Errorf("apply rows: row %d (%s): %w", i, row.ID, err)
		}
		applied[i] = ok
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("apply rows: commit: %w", err)
	}
	return applied, nil
}

// ReadRowByID fetches one row (including tombstones) by id and entity,
// resolving its declared fields against the store's registry.
func (s *Store) ReadRowByID(ctx context.Context, entity, id string) (*ir.Row, error) {
	entitySpec, ok := s.reg.Resolve(entity)
	if !ok {
		return nil, fmt.Errorf("read row: unknown entity %q", entity)
	}

	cols := []string{"id", "room_id", "mdate", "author", "signature", "schema_version", "deleted"}
	for _, f := range entitySpec.Fields {
		cols = append(cols, f.Name)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, joinStrings(quoted), quoteIdent(entity)), id)

	scanned := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range scanned {
		ptrs[i] = &scanned[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}

	out := &ir.Row{
		ID:            asString(scanned[0]),
		RoomID:        asString(scanned[1]),
		EntityName:    entity,
		MDate:         asInt64(scanned[2]),
		Author:        asBytes(scanned[3]),
		Signature:     asBytes(scanned[4]),
		SchemaVersion: ir.SchemaVersion(asInt64(scanned[5])),
		Deleted:       asInt64(scanned[6]) != 0,
		Fields:        ir.RowFields{},
	}

	const systemColCount = 7
	for i, f := range entitySpec.Fields {
		val, err := rawColumnToValue(scanned[systemColCount+i], f)
		if err != nil {
			return nil, fmt.Errorf("read row: field %q: %w", f.Name, err)
		}
		out.Fields[f.Name] = val
	}

	return out, nil
}

func rawColumnToValue(raw any, f ir.FieldSpec) (ir.Value, error) {
	if raw == nil {
		return ir.VNull{}, nil
	}
	switch f.Kind {
	case ir.KindRef:
		return ir.VRef(asString(raw)), nil
	case ir.KindRefArray:
		var ids []string
		if err := json.Unmarshal(asBytes(raw), &ids); err != nil {
			return nil, fmt.Errorf("decode ref array: %w", err)
		}
		return ir.VRefArray(ids), nil
	}
	switch f.Scalar {
	case ir.TInt:
		return ir.VInt(asInt64(raw)), nil
	case ir.TFloat:
		return ir.VFloat(asFloat64(raw)), nil
	case ir.TBool:
		return ir.VBool(asInt64(raw) != 0), nil
	case ir.TString:
		return ir.VString(asString(raw)), nil
	case ir.TBase64:
		return ir.VBase64(asBytes(raw)), nil
	case ir.TJSON:
		return ir.VJSON{Raw: asBytes(raw)}, nil
	default:
		return ir.VNull{}, nil
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func joinStrings(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
