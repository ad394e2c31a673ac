package ir

// SchemaVersion identifies one accepted state of the data-model registry.
// Versions are allocated monotonically by the schema registry; a row
// records the version under which it was signed so that ingress can
// detect an unknown (future, not-yet-synced) schema.
type SchemaVersion uint64

// EncodingVersion is the version of the canonical row encoding itself
// (distinct from SchemaVersion, which versions the data model). Bumping
// it would change byte layout and must never happen silently.
const EncodingVersion = 1

// WireVersion is negotiated in the sync protocol's Hello frame.
const WireVersion = 1
