package mutation

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
)

// ChangeEvent is emitted once per row this executor commits (spec.md
// §4.6: "emit a change record per written row"). Origin is always
// OriginLocal; internal/sync reports OriginRemote for rows it commits.
type ChangeEvent struct {
	RoomID string
	Entity string
	RowID  string
	Origin string
}

// OriginLocal marks a change as authored by this peer, as opposed to a
// row committed by the sync protocol (spec.md §4.7 step 6).
const OriginLocal = "local"

// Publisher is the narrow surface internal/eventbus's Bus satisfies;
// declared here rather than imported so this package has no dependency
// on eventbus's wiring.
type Publisher interface {
	Publish(ChangeEvent)
}

// Executor applies parsed mutations to st, signed by identity and
// authorized against authz (spec.md §4.6).
type Executor struct {
	st       *store.Store
	reg      *schema.Registry
	authz    *auth.Engine
	identity *crypto.Identity
	pub      Publisher
}

// New returns an Executor. pub may be nil if no subscriber needs change
// notifications yet.
func New(st *store.Store, reg *schema.Registry, authz *auth.Engine, identity *crypto.Identity, pub Publisher) *Executor {
	return &Executor{st: st, reg: reg, authz: authz, identity: identity, pub: pub}
}

// Apply resolves doc against vars, writes every entity block as a signed
// row in room, and returns the row id assigned to each aliased top-level
// block. Nested and array-valued entity blocks are written first, in an
// order where every referent is written before its referrer.
//
// The whole set of rows is authorized and written as a single
// transaction (via internal/store.ApplyRows): if any row fails
// authorization, nothing is written and the first offending row's
// entity and reason are returned.
func (e *Executor) Apply(ctx context.Context, doc *lang.MutationDocument, vars map[string]ir.Value, room string) (map[string]string, error) {
	fl := newFlattener(e.reg, vars)

	roots := make([]string, 0, len(doc.Entities))
	for i := range doc.Entities {
		key, err := fl.flattenEntity(&doc.Entities[i], doc.Entities[i].Entity)
		if err != nil {
			return nil, err
		}
		roots = append(roots, key)
	}

	order, err := topoOrder(fl.graph, roots)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	peerPub := e.identity.SigningPublic

	rows := make([]*ir.Row, 0, len(order))
	for _, key := range order {
		node := fl.nodes[key]
		rows = append(rows, &ir.Row{
			ID:         node.id,
			RoomID:     room,
			EntityName: node.entity,
			MDate:      now,
			Author:     append([]byte{}, peerPub...),
			Fields:     node.fields,
		})
	}

	for _, row := range rows {
		allowed, err := e.authz.Allowed(ctx, peerPub, room, row.EntityName, auth.ActionWrite, now)
		if err != nil {
			return nil, fmt.Errorf("mutation: authorize %s %s: %w", row.EntityName, row.ID, err)
		}
		if !allowed {
			return nil, fmt.Errorf("mutation: peer not authorized to write %s (row %s) in room %s", row.EntityName, row.ID, room)
		}
	}

	if err := e.signRows(rows); err != nil {
		return nil, err
	}

	applied, err := e.st.ApplyRows(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("mutation: apply: %w", err)
	}
	for i, ok := range applied {
		if !ok {
			return nil, fmt.Errorf("mutation: row %s (%s) was rejected by the store", rows[i].ID, rows[i].EntityName)
		}
	}

	if e.pub != nil {
		for _, row := range rows {
			e.pub.Publish(ChangeEvent{RoomID: room, Entity: row.EntityName, RowID: row.ID, Origin: OriginLocal})
		}
	}

	result := make(map[string]string)
	for _, key := range roots {
		node := fl.nodes[key]
		if node.alias != "" {
			result[node.alias] = node.id
		}
	}
	return result, nil
}

func (e *Executor) signRows(rows []*ir.Row) error {
	version := e.reg.Version()
	for _, row := range rows {
		spec, ok := e.reg.Resolve(row.EntityName)
		if !ok {
			return fmt.Errorf("mutation: sign row: unknown entity %q", row.EntityName)
		}
		row.SchemaVersion = version
		fieldOrder := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			fieldOrder[i] = f.Name
		}
		if err := ir.SignRow(e.identity.SigningPrivate, row, fieldOrder); err != nil {
			return fmt.Errorf("mutation: sign row %s: %w", row.ID, err)
		}
	}
	return nil
}
