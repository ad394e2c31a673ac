package auth

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/store"
)

// EpochInfo is the subset of a system.Epoch row a caller needs to
// advance past it.
type EpochInfo struct {
	ID        string
	Sequence  int64
	ValidFrom int64
	Private   bool
}

// CurrentEpoch returns the highest-sequence epoch committed for room, or
// ok=false if the Room has never been bootstrapped locally.
func CurrentEpoch(ctx context.Context, st *store.Store, room string) (EpochInfo, bool, error) {
	sel := &queryir.Select{
		From:       EntityEpoch,
		RoomFilter: []string{room},
		Order:      []queryir.SortKey{{Field: "sequence", Desc: true}},
		Limit:      intPtr(1),
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "sequence", Alias: "sequence"},
			queryir.FieldProjection{Source: "valid_from", Alias: "valid_from"},
			queryir.FieldProjection{Source: "private", Alias: "private"},
		},
	}
	rows, err := st.ExecuteSelect(ctx, sel)
	if err != nil {
		return EpochInfo{}, false, fmt.Errorf("select current epoch: %w", err)
	}
	if len(rows) == 0 {
		return EpochInfo{}, false, nil
	}

	id, _ := rows[0]["id"].(string)
	sequence, _ := rows[0]["sequence"].(int64)
	validFrom, _ := rows[0]["valid_from"].(int64)
	private, _ := rows[0]["private"].(bool)
	return EpochInfo{ID: id, Sequence: sequence, ValidFrom: validFrom, Private: private}, true, nil
}

// MembersAt returns every system.Membership row belonging to epochID,
// keyed by peer (the base64 signing key PeerKey returns). Callers
// advancing an epoch start from this roster and add or remove entries
// rather than reconstructing membership from scratch.
func MembersAt(ctx context.Context, st *store.Store, room, epochID string) (map[string]Membership, error) {
	sel := &queryir.Select{
		From:       EntityMembership,
		RoomFilter: []string{room},
		Filter:     queryir.Equals{Field: "epoch", Value: ir.VRef(epochID)},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "peer", Alias: "peer"},
			queryir.FieldProjection{Source: "role", Alias: "role"},
			queryir.FieldProjection{Source: "rights", Alias: "rights"},
		},
	}
	rows, err := st.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("select members at epoch: %w", err)
	}

	out := make(map[string]Membership, len(rows))
	for _, row := range rows {
		peer, _ := row["peer"].(string)
		role, _ := row["role"].(string)
		rights := decodeRights(row["rights"])
		out[peer] = Membership{Role: role, Rights: rights}
	}
	return out, nil
}

// RoomsForPeer returns every Room where peer holds a membership row in
// that Room's current epoch (a Room once joined, then removed in a
// later epoch, is correctly excluded). Used to rebuild a Host's
// in-memory joined-Room set on startup from what the store already
// durably records.
func RoomsForPeer(ctx context.Context, st *store.Store, peer ed25519.PublicKey) ([]string, error) {
	peerKey := PeerKey(peer)
	sel := &queryir.Select{
		From:   EntityMembership,
		Filter: queryir.Equals{Field: "peer", Value: ir.VString(peerKey)},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "room_id", Alias: "room"},
			queryir.FieldProjection{Source: "epoch", Alias: "epoch"},
		},
	}
	rows, err := st.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("select rooms for peer: %w", err)
	}

	byRoom := make(map[string][]string)
	for _, row := range rows {
		room, _ := row["room"].(string)
		epoch, _ := row["epoch"].(string)
		byRoom[room] = append(byRoom[room], epoch)
	}

	var out []string
	for room, epochs := range byRoom {
		current, ok, err := CurrentEpoch(ctx, st, room)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, e := range epochs {
			if e == current.ID {
				out = append(out, room)
				break
			}
		}
	}
	return out, nil
}
