// Package store is the SQLite-backed embedded database the rest of the
// system treats as a capability: {read-tx, write-tx, subscribe-changes}
// (spec.md §9 "Pluggable store and transport"). It owns:
//
//   - provisioning one table per declared entity from a schema.Registry,
//     plus an FTS5 shadow table for any entity with a fulltext(...)
//     declaration (ddl.go);
//   - writing signed rows with last-writer-wins conflict resolution and
//     tombstone dominance (write.go);
//   - compiling and executing queryir.Select trees, including per-parent-row
//     fan-out of nested relation projections (read.go);
//   - durable per-(room, author) sync cursors surviving process restart
//     (replay.go).
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes.
//   - synchronous=NORMAL: balance durability and throughput.
//   - busy_timeout=5000: wait for lock contention instead of failing fast.
//   - foreign_keys=ON.
//   - a single connection (SetMaxOpenConns(1)) shared by reads and
//     writes; all mutation and ingress commits serialize through this
//     one *sql.DB handle rather than relying on SQLite's own locking to
//     arbitrate.
//
// Rooms, memberships, and invitations are not bespoke tables: spec.md §3
// says a Room "is itself stored as signed rows in a reserved system
// namespace and is replicated by the same mechanism that carries
// application data", so they provision and write through the exact same
// path as any application entity. Only sync cursors and schema history
// are store-local bookkeeping that never leaves this process.
//
// Row-level encryption at rest is out of scope (spec.md §1); Open's
// signature leaves room for a future encrypted-SQLite build (e.g.
// SQLCipher) to inject a `PRAGMA key` before the schema is applied, but
// this package itself only ever talks to plain mattn/go-sqlite3.
package store
