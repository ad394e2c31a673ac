// Package crypto derives a peer's long-lived key material from its
// pass-phrase and produces the collision-resistant row identifiers rows
// are created with (spec.md §3 "Identity", §4 "id ... collision-resistant
// generator").
//
// A peer holds two key pairs, both derived from the same (key_material,
// salt) input via a single memory-hard KDF call per key, domain-separated
// by label rather than derived from one another: an Ed25519 signing pair
// (the peer's stable identity, internal/ir.SignRow/VerifyRow) and an
// X25519 key-exchange pair (reserved for the transport handshake,
// internal/session). The database's own encryption key (spec.md §6
// "the key derives from key_material via a memory-hard KDF with a
// per-install salt") is a third, separately labeled derivation from the
// same input, kept in this package so every KDF call shares one set of
// argon2id cost parameters.
//
// Grounded on dmitrijs2005-gophkeeper's internal/cryptox.DeriveMasterKey
// (golang.org/x/crypto/argon2 IDKey usage) and bringyour-connect's use of
// github.com/oklog/ulid/v2 for identifiers.
package crypto
