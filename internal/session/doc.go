// Package session implements spec.md §4.8's peer session manager: it
// dials and accepts authenticated, encrypted transport connections
// pinned to the remote peer's Ed25519 signing key, exchanges the Room
// intersection with the handshake's Hello/RoomList frames, and runs one
// internal/sync.Reconciler per shared Room, bounded by a concurrency
// limit and deduplicated so at most one session is active per peer at a
// time.
package session
