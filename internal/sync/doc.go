// Package sync drives spec.md §4.7's per-Room reconciliation round over
// internal/sync/wire's frames: cursor exchange, epoch alignment,
// advertise/request/transfer, staged-row verification, and batched
// commit through internal/store and internal/auth. internal/sync/wire
// stays a leaf package with no knowledge of internal/ir or
// internal/schema; this package is where a wire.Row's opaque
// FieldsJSON is translated to and from internal/ir.RowFields using the
// entity's internal/schema.Registry declaration, the same way
// internal/store/marshal.go translates between internal/ir.Value and
// SQL columns.
package sync
