// Package ir provides the canonical intermediate representation for meshroom:
// scalar values, entity/field declarations, and the signed Row type that
// every other package (lang, schema, queryir, store, auth, sync) builds on.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// data model the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Value is a sealed interface; only the types in value.go implement it.
//   - Floats are first-class (VFloat) and encode bit-exact: row data is
//     application content, not a replay-sensitive event log, so float drift
//     across peers is not a correctness hazard the way it would be for a
//     hashed action trail.
//   - Canonical encoding (canonical.go) is a fixed-order binary layout, not
//     JSON: it feeds Ed25519 signing, where byte-stability matters more than
//     human readability.
package ir
