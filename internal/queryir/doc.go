// Package queryir is the database's query intermediate representation:
// the lowering target for internal/lang's parsed query DSL and the
// compile source for internal/querysql.
//
// ARCHITECTURE
//
// A query document is parsed (internal/lang), planned against a schema
// (internal/schema) and a caller's effective Room set (internal/auth)
// into one queryir.Query per top-level selection, and compiled to
// parameterized SQL (internal/querysql) for execution against the
// embedded store (internal/store):
//
//	[query DSL text] -> [lang.QueryDocument] -> [queryir.Query] -> [SQL]
//
// Only one backend exists (SQLite), so unlike a true portability IR this
// package's job is narrower: give the planner and the SQL compiler a
// shared, closed vocabulary that's easy to validate and test independent
// of either. Validate still reports a ValidationResult the way the
// teacher's queryir.Validate does, repurposed here to flag constructs a
// future alternate backend (a read replica using a different engine, a
// SPARQL-style federated view) would need to special-case, rather than
// to gate execution.
//
// SEALED INTERFACES
//
// Query, Predicate, and Projection are sealed interfaces using the
// marker-method pattern: only types declared in this package implement
// them, which lets internal/querysql's compiler and this package's own
// CheckSemantics exhaustively type-switch without a default case masking
// an unhandled variant.
//
// ROOM SCOPING
//
// Every Select carries its own RoomFilter, populated by the planner from
// the caller's effective Room set rather than folded into an ordinary
// Filter predicate. Keeping it a distinct field means the authorization
// boundary is visible at every call site that builds or compiles a
// Select, and a compiler that forgets to render it fails loudly (an
// empty WHERE clause) instead of silently dropping a predicate buried in
// an And tree.
//
// HARD CONSTRAINTS vs PORTABILITY WARNINGS
//
// CheckSemantics enforces the rules a plan must satisfy to execute at
// all: first (a Limit) requires an explicit Order, search is
// incompatible with Order/Before/After, and an aggregate projection may
// not sit beside a plain one. Validate is advisory: it never blocks
// execution, only flags constructs noted above as backend-specific.
package queryir
