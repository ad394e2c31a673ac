// Package auth implements spec.md §4.5's Room & Authorization Engine:
// evaluating allowed(peer, room, entity, action, t) against a Room's
// ordered authorization epochs, and the bootstrap/advancement
// operations that author those epochs' rows.
//
// A Room is not a bespoke table (spec.md §3: "A Room is itself stored as
// signed rows in a reserved system namespace and is replicated by the
// same mechanism that carries application data"): this package declares
// two ordinary entities, system.Epoch and system.Membership, through the
// same internal/schema.Registry/internal/store.Provision path every
// application entity goes through, and authors/reads them with the same
// internal/store.WriteRow/ExecuteSelect calls application code would
// use. The only thing that makes them special is that every peer's
// Registry carries SystemSchema's declarations before any application
// document is applied.
//
// Grounded on internal/schema/registry.go's read-mostly/single-writer
// locking discipline (internal/store/store.go's own pattern, carried
// over once more here for the same reason: authorization checks happen
// on every row ingress and every query, so they must not block on each
// other) and on spec.md §4.5's epoch-selection and conflict rules
// directly, since the teacher (roach88-nysm/brutalist) has no
// authorization concept to ground this package on.
package auth
