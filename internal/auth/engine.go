package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/store"
)

// Action is one of the three rights a role can hold over an entity
// within a Room (spec.md §4.5).
type Action int

const (
	ActionRead Action = iota
	ActionWrite
	ActionAdmin
)

func (a Action) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	case ActionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Engine evaluates allowed(peer, room, entity, action, t) against the
// epochs and memberships currently committed to st.
type Engine struct {
	st *store.Store

	mu    sync.RWMutex
	cache map[rightsCacheKey]effectiveRights
}

type rightsCacheKey struct {
	peer  string
	room  string
	epoch string
}

type effectiveRights struct {
	role   string
	rights map[string][]string
}

// NewEngine returns an Engine reading Room authorization state from st.
func NewEngine(st *store.Store) *Engine {
	return &Engine{st: st, cache: make(map[rightsCacheKey]effectiveRights)}
}

// PeerKey is the stable string key this package and internal/store agree
// on for a peer's signing public key (base64, matching
// internal/store.systemColumnToResultValue's "author" column encoding).
func PeerKey(pub ed25519.PublicKey) string {
	return base64.StdEncoding.EncodeToString(pub)
}

// Allowed evaluates allowed(peer, room, entity, action, t) (spec.md
// §4.5): it selects the authorization epoch whose validity covers t,
// then checks peer's role and rights within that epoch.
func (e *Engine) Allowed(ctx context.Context, peer ed25519.PublicKey, room, entity string, action Action, t int64) (bool, error) {
	epoch, err := e.epochAt(ctx, room, t)
	if err != nil {
		return false, err
	}
	if epoch == nil {
		return false, nil
	}

	peerKey := PeerKey(peer)

	if b, _ := epoch["private"].(bool); b {
		creator, _ := epoch["creator"].(string)
		return peerKey == creator, nil
	}

	epochID, _ := epoch["id"].(string)
	rights, err := e.effectiveRightsFor(ctx, room, epochID, peerKey)
	if err != nil {
		return false, err
	}
	if rights == nil {
		return false, nil
	}

	if rights.role == RoleAdmin {
		return true, nil
	}
	if action == ActionAdmin {
		return false, nil
	}

	allowedActions, ok := rights.rights[entity]
	if !ok {
		allowedActions, ok = rights.rights[wildcardEntity]
		if !ok {
			return false, nil
		}
	}
	for _, a := range allowedActions {
		if a == action.String() {
			return true, nil
		}
	}
	return false, nil
}

// epochAt selects the epoch with the greatest sequence whose valid_from
// is <= t, reading system.Epoch rows scoped to room.
func (e *Engine) epochAt(ctx context.Context, room string, t int64) (map[string]any, error) {
	sel := &queryir.Select{
		From:       EntityEpoch,
		RoomFilter: []string{room},
		Filter:     queryir.Compare{Field: "valid_from", Op: queryir.OpLte, Value: ir.VInt(t)},
		Order:      []queryir.SortKey{{Field: "sequence", Desc: true}},
		Limit:      intPtr(1),
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "sequence", Alias: "sequence"},
			queryir.FieldProjection{Source: "valid_from", Alias: "valid_from"},
			queryir.FieldProjection{Source: "creator", Alias: "creator"},
			queryir.FieldProjection{Source: "private", Alias: "private"},
		},
	}
	rows, err := e.st.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("select epoch: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// effectiveRightsFor returns peerKey's role/rights within epochID,
// caching by (peer, room, epoch) since the same epoch is checked
// repeatedly (every row ingress, every query) until the Room's
// membership changes again.
func (e *Engine) effectiveRightsFor(ctx context.Context, room, epochID, peerKey string) (*effectiveRights, error) {
	key := rightsCacheKey{peer: peerKey, room: room, epoch: epochID}

	e.mu.RLock()
	if cached, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return &cached, nil
	}
	e.mu.RUnlock()

	sel := &queryir.Select{
		From:       EntityMembership,
		RoomFilter: []string{room},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "epoch", Value: ir.VRef(epochID)},
			queryir.Equals{Field: "peer", Value: ir.VString(peerKey)},
		}},
		Limit: intPtr(1),
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "role", Alias: "role"},
			queryir.FieldProjection{Source: "rights", Alias: "rights"},
		},
	}
	rows, err := e.st.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("select membership: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	role, _ := rows[0]["role"].(string)
	rights := decodeRights(rows[0]["rights"])
	result := effectiveRights{role: role, rights: rights}

	e.mu.Lock()
	e.cache[key] = result
	e.mu.Unlock()

	return &result, nil
}

// Invalidate drops every cached rights decision for room, called
// whenever a new epoch's Membership rows are committed
// (internal/eventbus's RoomChanged event).
func (e *Engine) Invalidate(room string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.cache {
		if key.room == room {
			delete(e.cache, key)
		}
	}
}

func intPtr(n int) *int { return &n }

func decodeRights(raw any) map[string][]string {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(m))
	for entity, v := range m {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		actions := make([]string, 0, len(list))
		for _, a := range list {
			if s, ok := a.(string); ok {
				actions = append(actions, s)
			}
		}
		out[entity] = actions
	}
	return out
}
