package invite

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
)

// defaultUserRights is what a RoleUser invitation grants absent any
// finer-grained rights map: spec.md §6's invite(room, role) takes only
// a role, not a per-entity rights breakdown, so Admit picks a
// reasonable default for it the same way auth.AdminRights is the fixed
// default for RoleAdmin.
func defaultUserRights() auth.Rights {
	return auth.Rights{"*": {"read", "write"}}
}

func rightsForRole(role string) auth.Rights {
	if role == auth.RoleAdmin {
		return auth.AdminRights()
	}
	return defaultUserRights()
}

// Admit is the issuer-side half of accepting an invitation: it rolls
// the Room's current epoch's membership roster forward one sequence,
// adding newMember at claims' role, and writes the new epoch through
// internal/auth.Advance so it replicates to newMember (and everyone
// else) on the next sync round (spec.md §4.10: "until that row is
// replicated, other peers will reject the new member's writes").
// Calling Admit is itself an admin action; the caller is responsible
// for having verified claims via Parse first and for confirming admin
// holds ActionAdmin over room before calling this.
func Admit(ctx context.Context, st *store.Store, reg *schema.Registry, room string, admin ed25519.PrivateKey, newMember ed25519.PublicKey, claims *Claims, validFrom int64) error {
	current, ok, err := auth.CurrentEpoch(ctx, st, room)
	if err != nil {
		return fmt.Errorf("invite: admit: %w", err)
	}
	if !ok {
		return fmt.Errorf("invite: admit: room %q has no epoch to advance", room)
	}

	members, err := auth.MembersAt(ctx, st, room, current.ID)
	if err != nil {
		return fmt.Errorf("invite: admit: %w", err)
	}

	memberKey := auth.PeerKey(newMember)
	members[memberKey] = auth.Membership{Role: claims.Role, Rights: rightsForRole(claims.Role)}

	if err := auth.Advance(ctx, st, reg, room, admin, current.Sequence, validFrom, current.Private, members); err != nil {
		return fmt.Errorf("invite: admit: %w", err)
	}
	return nil
}
