package deletion

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/crypto"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
)

// ChangeEvent is emitted once per row this executor commits, mirroring
// internal/mutation.ChangeEvent: a tombstone or a pruned-reference rewrite
// is, from the store's point of view, just another signed write.
type ChangeEvent struct {
	RoomID string
	Entity string
	RowID  string
	Origin string
}

// OriginLocal marks a change as authored by this peer.
const OriginLocal = "local"

// Publisher is the narrow surface internal/eventbus's Bus satisfies.
type Publisher interface {
	Publish(ChangeEvent)
}

// Executor applies parsed deletion documents to st, signed by identity and
// authorized against authz (spec.md §4.9's Tombstone semantics extended to
// cover array-reference pruning, spec.md §6's delete(dsl, params)).
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

// Apply resolves doc against vars and, for each entity block, either
// tombstones the row it names (a block with no reference lines) or
// rewrites it with the named array-reference fields pruned (a block with
// one or more `field[...]` lines). Every resulting row is authorized and
// written as a single transaction, the same all-or-nothing guarantee
// internal/mutation.Executor.Apply gives ordinary writes.
func (e *Executor) Apply(ctx context.Context, doc *lang.DeletionDocument, vars map[string]ir.Value, room string) error {
	now := time.Now().UnixMilli()

	rows := make([]*ir.Row, 0, len(doc.Entities))
	for i := range doc.Entities {
		row, err := e.resolveEntity(ctx, &doc.Entities[i], vars, room, now)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	peerPub := e.identity.SigningPublic
	for _, row := range rows {
		allowed, err := e.authz.Allowed(ctx, peerPub, room, row.EntityName, auth.ActionWrite, now)
		if err != nil {
			return fmt.Errorf("deletion: authorize %s %s: %w", row.EntityName, row.ID, err)
		}
		if !allowed {
			return fmt.Errorf("deletion: peer not authorized to write %s (row %s) in room %s", row.EntityName, row.ID, room)
		}
	}

	if err := e.signRows(rows); err != nil {
		return err
	}

	applied, err := e.st.ApplyRows(ctx, rows)
	if err != nil {
		return fmt.Errorf("deletion: apply: %w", err)
	}
	for i, ok := range applied {
		if !ok {
			return fmt.Errorf("deletion: row %s (%s) was rejected by the store", rows[i].ID, rows[i].EntityName)
		}
	}

	if e.pub != nil {
		for _, row := range rows {
			e.pub.Publish(ChangeEvent{RoomID: room, Entity: row.EntityName, RowID: row.ID, Origin: OriginLocal})
		}
	}
	return nil
}

// resolveEntity reads ent's current row and produces the signed-row-to-be:
// a tombstone when ent names no reference fields, or a field-pruned rewrite
// of the same row when it does.
func (e *Executor) resolveEntity(ctx context.Context, ent *lang.EntityDeletion, vars map[string]ir.Value, room string, now int64) (*ir.Row, error) {
	id, err := resolveIDVar(vars, ent.IDVar, ent.EntityName)
	if err != nil {
		return nil, err
	}

	existing, err := e.st.ReadRowByID(ctx, ent.EntityName, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deletion: %s row %q does not exist", ent.EntityName, id)
	}
	if err != nil {
		return nil, fmt.Errorf("deletion: read %s row %q: %w", ent.EntityName, id, err)
	}

	row := &ir.Row{
		ID:         id,
		RoomID:     room,
		EntityName: ent.EntityName,
		MDate:      now,
		Author:     append([]byte{}, e.identity.SigningPublic...),
	}

	if len(ent.References) == 0 {
		row.Deleted = true
		row.Fields = existing.Fields
		return row, nil
	}

	fields := make(ir.RowFields, len(existing.Fields))
	for k, v := range existing.Fields {
		fields[k] = v
	}
	for _, ref := range ent.References {
		cur, ok := fields[ref.Name]
		if !ok {
			return nil, fmt.Errorf("deletion: %s has no field %q", ent.EntityName, ref.Name)
		}
		arr, ok := cur.(ir.VRefArray)
		if !ok {
			return nil, fmt.Errorf("deletion: %s.%s is not an entity-reference array", ent.EntityName, ref.Name)
		}
		if ref.IDVar == "" {
			fields[ref.Name] = ir.VRefArray{}
			continue
		}
		target, err := resolveIDVar(vars, ref.IDVar, ent.EntityName)
		if err != nil {
			return nil, err
		}
		fields[ref.Name] = removeRef(arr, target)
	}
	row.Fields = fields
	return row, nil
}

func resolveIDVar(vars map[string]ir.Value, varName, entityName string) (string, error) {
	if varName == "" {
		return "", fmt.Errorf("deletion: %s block has no bound identifier", entityName)
	}
	v, ok := vars[varName]
	if !ok {
		return "", fmt.Errorf("deletion: unbound variable $%s", varName)
	}
	s, ok := v.(ir.VString)
	if !ok {
		return "", fmt.Errorf("deletion: $%s must resolve to a string, got %T", varName, v)
	}
	return string(s), nil
}

func removeRef(arr ir.VRefArray, target string) ir.VRefArray {
	out := make(ir.VRefArray, 0, len(arr))
	for _, id := range arr {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (e *Executor) signRows(rows []*ir.Row) error {
	version := e.reg.Version()
	for _, row := range rows {
		spec, ok := e.reg.Resolve(row.EntityName)
		if !ok {
			return fmt.Errorf("deletion: sign row: unknown entity %q", row.EntityName)
		}
		row.SchemaVersion = version
		fieldOrder := make([]string, len(spec.Fields))
		for i, f := range spec.Fields {
			fieldOrder[i] = f.Name
		}
		if err := ir.SignRow(e.identity.SigningPrivate, row, fieldOrder); err != nil {
			return fmt.Errorf("deletion: sign row %s: %w", row.ID, err)
		}
	}
	return nil
}
