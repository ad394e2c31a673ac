package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
)

// Rights is the rights map a Membership row carries: entity name (or
// "*" for every entity) to the list of actions ("read"/"write"/"admin")
// that role holds over it.
type Rights map[string][]string

// AdminRights is the wildcard admin grant a Room's creator receives in
// its bootstrap epoch.
func AdminRights() Rights {
	return Rights{wildcardEntity: {"read", "write", "admin"}}
}

// Bootstrap writes a Room's sequence-0 epoch and the creator's admin
// membership (spec.md §4.5: "the Room's creator is admin in its initial
// epoch"). private marks the Room as owner-only for spec.md's Private
// Room invariant (only the creator ever satisfies allowed, regardless of
// any membership rows that come to exist).
func Bootstrap(ctx context.Context, st *store.Store, reg *schema.Registry, room string, creator ed25519.PrivateKey, validFrom int64, private bool) error {
	creatorPub := creator.Public().(ed25519.PublicKey)
	creatorKey := PeerKey(creatorPub)

	epochID := crypto.NewRowID()
	epochRow := &ir.Row{
		ID:         epochID,
		RoomID:     room,
		EntityName: EntityEpoch,
		MDate:      validFrom,
		Author:     creatorPub,
		Fields: ir.RowFields{
			"sequence":   ir.VInt(0),
			"valid_from": ir.VInt(validFrom),
			"creator":    ir.VString(creatorKey),
			"private":    ir.VBool(private),
		},
	}

	membershipRow := &ir.Row{
		ID:         crypto.NewRowID(),
		RoomID:     room,
		EntityName: EntityMembership,
		MDate:      validFrom,
		Author:     creatorPub,
		Fields: ir.RowFields{
			"epoch":  ir.VRef(epochID),
			"peer":   ir.VString(creatorKey),
			"role":   ir.VString(RoleAdmin),
			"rights": rightsToVJSON(AdminRights()),
		},
	}

	rows := []*ir.Row{epochRow, membershipRow}
	if err := signRows(reg, creator, rows); err != nil {
		return err
	}

	applied, err := st.ApplyRows(ctx, rows)
	if err != nil {
		return fmt.Errorf("bootstrap room: %w", err)
	}
	for i, ok := range applied {
		if !ok {
			return fmt.Errorf("bootstrap room: row %d rejected", i)
		}
	}
	return nil
}

// Advance authors a new epoch (spec.md §4.5: "only an existing admin may
// author an epoch-advancing row"; authorization of the call itself is
// the caller's responsibility, via Engine.Allowed with ActionAdmin). The
// new epoch's sequence is the previous highest plus one; memberships is
// the complete membership roster for the new epoch, one row per peer.
func Advance(ctx context.Context, st *store.Store, reg *schema.Registry, room string, admin ed25519.PrivateKey, previousSequence int64, validFrom int64, private bool, memberships map[string]Membership) error {
	adminPub := admin.Public().(ed25519.PublicKey)
	creatorKey := PeerKey(adminPub)

	epochID := crypto.NewRowID()
	epochRow := &ir.Row{
		ID:         epochID,
		RoomID:     room,
		EntityName: EntityEpoch,
		MDate:      validFrom,
		Author:     adminPub,
		Fields: ir.RowFields{
			"sequence":   ir.VInt(previousSequence + 1),
			"valid_from": ir.VInt(validFrom),
			"creator":    ir.VString(creatorKey),
			"private":    ir.VBool(private),
		},
	}

	rows := []*ir.Row{epochRow}
	for peerKey, m := range memberships {
		rows = append(rows, &ir.Row{
			ID:         crypto.NewRowID(),
			RoomID:     room,
			EntityName: EntityMembership,
			MDate:      validFrom,
			Author:     adminPub,
			Fields: ir.RowFields{
				"epoch":  ir.VRef(epochID),
				"peer":   ir.VString(peerKey),
				"role":   ir.VString(m.Role),
				"rights": rightsToVJSON(m.Rights),
			},
		})
	}

	if err := signRows(reg, admin, rows); err != nil {
		return err
	}

	applied, err := st.ApplyRows(ctx, rows)
	if err != nil {
		return fmt.Errorf("advance epoch: %w", err)
	}
	for i, ok := range applied {
		if !ok {
			return fmt.Errorf("advance epoch: row %d rejected", i)
		}
	}
	return nil
}

// Membership is one peer's role and rights within an epoch being
// authored by Advance.
type Membership struct {
	Role   string
	Rights Rights
}

func signRows(reg *schema.Registry, signer ed25519.PrivateKey, rows []*ir.Row) error {
	version := reg.Version()
	for _, row := range rows {
		spec, ok := reg.Resolve(row.EntityName)
		if !ok {
			return fmt.Errorf("sign row: unknown entity %q", row.EntityName)
		}
		row.SchemaVersion = version
		fieldOrder := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			fieldOrder[i] = f.Name
		}
		if err := ir.SignRow(signer, row, fieldOrder); err != nil {
			return fmt.Errorf("sign row %s: %w", row.ID, err)
		}
	}
	return nil
}

func rightsToVJSON(r Rights) ir.VJSON {
	raw, err := json.Marshal(r)
	if err != nil {
		return ir.VJSON{Raw: json.RawMessage("{}")}
	}
	return ir.VJSON{Raw: json.RawMessage(raw)}
}
