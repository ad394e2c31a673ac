// Package harness provides conformance testing for meshroom's data
// model, authorization engine, and peer sync protocol.
//
// The harness loads a data-model DSL, provisions one store per named
// peer, executes a test scenario against real mutation/deletion/query
// and sync machinery, and validates the outcome against assertions and
// the invariants of spec.md §8. Nothing here manufactures results: a
// scenario's flow steps call the same internal/mutation,
// internal/deletion, internal/queryir, and internal/sync code a real
// Host uses.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: simple_chat_round_trip
//	description: "A and B share a Room; A's write reaches B within two sync rounds"
//	model: |
//	  chat {
//	    Message { content: String, index(content) }
//	  }
//	peers:
//	  - name: a
//	  - name: b
//	flow:
//	  - peer: a
//	    action: shared_room
//	    as: room
//	  - peer: a
//	    action: invite
//	    room: room
//	    role: member
//	    as: token
//	  - peer: b
//	    action: accept
//	    admin: a
//	    token: token
//	  - peer: a
//	    action: mutate
//	    room: room
//	    dsl: "mutation m { msg: chat.Message { content: $c } }"
//	    params: { c: "hi" }
//	  - action: sync
//	    room: room
//	    between: [a, b]
//	  - peer: b
//	    action: query
//	    room: room
//	    dsl: "query q { chat.Message(order_by(mdate asc, id asc)) { content } }"
//	    as: result
//	assertions:
//	  - type: query_result_count
//	    step: result
//	    entity: chat.Message
//	    count: 1
//	  - type: query_field_equals
//	    step: result
//	    entity: chat.Message
//	    index: 0
//	    field: content
//	    equals: hi
//
// # Deterministic Peers
//
// Each peer's signing identity is derived deterministically from its
// name (internal/crypto.DeriveIdentity with a fixed salt), so scenario
// outcomes and golden snapshots are reproducible across runs without a
// real random source.
//
// # Golden Snapshots
//
// AssertGoldenRows compares a peer's converged row set for an entity, in
// internal/ir's canonical encoding, against a golden file under
// testdata/golden/ using github.com/sebdah/goldie/v2.
//
// # Scenarios Requiring Precise Timing
//
// A handful of spec.md §8 scenarios (revocation honoring history,
// tombstone dominance, schema monotonicity) need a row placed at an
// exact mdate relative to an epoch or tombstone boundary, which the
// mutate/delete flow actions cannot express since the real executors
// always stamp the current time. Those are written as Go test functions
// in harness_test.go instead, composing Peer's fields with
// internal/auth.Advance and a hand-signed internal/ir.Row.
package harness
