// Package invite implements spec.md §4.10's invitation flow: an admin
// generates a signed, opaque token binding a Room, a role, and an
// expiry, and optionally to a specific invitee identity; the invitee verifies and
// redeems it by contacting an admin, who admits the invitee into the
// Room's next epoch so the membership row can replicate out through
// internal/sync in the ordinary way.
package invite
