package sync

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/base64"
	"fmt"
	"sort"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/eventbus"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/roach88/meshroom/internal/schema"
	"github.com/roach88/meshroom/internal/store"
	"github.com/roach88/meshroom/internal/sync/wire"
)

// Transport is the minimum a session needs to run a reconciliation
// round: a blocking send and a blocking receive of one framed message
// at a time, over the single logical stream spec.md §4.7 assumes.
// internal/session's websocket-backed implementation sends each frame as
// one binary WebSocket message (the kind byte and payload, without
// wire.WriteFrame's length prefix); tests in this package use an
// in-memory pipe.
type Transport interface {
	Send(kind wire.Kind, payload []byte) error
	Recv() (wire.Kind, []byte, error)
}

// Reconciler drives spec.md §4.7's reconciliation round for one Room
// against one peer, reading and writing through the same
// internal/store.Store and internal/auth.Engine a local mutation would
// use, so a committed remote row is indistinguishable from a committed
// local one except for its eventbus.Event.Origin.
type Reconciler struct {
	store        *store.Store
	reg          *schema.Registry
	authz        *auth.Engine
	bus          *eventbus.Bus
	self         ed25519.PublicKey
	batchBytes   int
	creditWindow int
}

// NewReconciler constructs a Reconciler. batchBytes and creditWindow
// come from spec.md §6's `sync_batch_bytes`/`sync_credit_window`
// configuration options.
func NewReconciler(st *store.Store, reg *schema.Registry, authz *auth.Engine, bus *eventbus.Bus, self ed25519.PublicKey, batchBytes, creditWindow int) *Reconciler {
	if batchBytes <= 0 {
		batchBytes = 1 << 20
	}
	if creditWindow <= 0 {
		creditWindow = 64
	}
	return &Reconciler{store: st, reg: reg, authz: authz, bus: bus, self: self, batchBytes: batchBytes, creditWindow: creditWindow}
}

// systemEntities are the reserved-namespace entities the Room itself is
// stored as rows of (internal/auth's SystemSchema); these are
// reconciled first, per spec.md §4.7 step 2 "If epoch digests differ,
// the Room's authorization rows are synced first ... before any entity
// rows."
var systemEntities = []string{auth.EntityEpoch, auth.EntityMembership}

// OriginRemote marks a change as committed by the sync protocol rather
// than authored locally (mirrors mutation.OriginLocal).
const OriginRemote = "remote"

// Run performs exactly one reconciliation round for room against peer
// over t and returns once both sides' advertised sets for the round are
// exhausted (spec.md §4.7 step 7 "idle"). goFirst breaks the symmetry
// of the single logical stream into two deterministic half-duplex
// turns per phase: both peers run this same code, and exactly one of
// them must be told to act first so neither blocks waiting to read what
// the other is waiting to write. internal/session assigns goFirst by
// the same lower-pubkey-wins rule spec.md §4.8 already uses to
// deduplicate sessions, so the assignment needs no extra negotiation
// frame.
func (r *Reconciler) Run(ctx context.Context, room string, t Transport, goFirst bool) error {
	localCursors, err := r.store.CursorsForRoom(ctx, room)
	if err != nil {
		return fmt.Errorf("sync: cursors for room: %w", err)
	}
	localDigest, err := r.epochDigest(ctx, room)
	if err != nil {
		return fmt.Errorf("sync: local epoch digest: %w", err)
	}

	peerCursors, peerDigest, err := r.exchangeCursors(room, t, goFirst, localCursors, localDigest)
	if err != nil {
		return fmt.Errorf("sync: cursor exchange: %w", err)
	}

	if !bytesEqual(localDigest, peerDigest) {
		if err := r.reconcileEntities(ctx, room, t, goFirst, systemEntities, peerCursors); err != nil {
			return fmt.Errorf("sync: epoch alignment: %w", err)
		}
		r.authz.Invalidate(room)
	}

	entities := r.applicationEntities()
	if err := r.reconcileEntities(ctx, room, t, goFirst, entities, peerCursors); err != nil {
		return fmt.Errorf("sync: entity reconciliation: %w", err)
	}
	return nil
}

func (r *Reconciler) applicationEntities() []string {
	var names []string
	for _, spec := range r.reg.Entities() {
		if spec.Name == auth.EntityEpoch || spec.Name == auth.EntityMembership {
			continue
		}
		names = append(names, spec.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Reconciler) epochDigest(ctx context.Context, room string) ([]byte, error) {
	sel := &queryir.Select{
		From:       auth.EntityEpoch,
		RoomFilter: []string{room},
		Order:      []queryir.SortKey{{Field: "sequence"}},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
		},
	}
	rows, err := r.store.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, err
	}
	encodings := make([][]byte, len(rows))
	for i, row := range rows {
		id, _ := row["id"].(string)
		epochRow, err := r.store.ReadRowByID(ctx, auth.EntityEpoch, id)
		if err != nil {
			return nil, err
		}
		spec, _ := r.reg.Resolve(auth.EntityEpoch)
		canonical, err := ir.CanonicalEncoding(epochRow, fieldOrderOf(spec))
		if err != nil {
			return nil, err
		}
		encodings[i] = canonical
	}
	return ir.EpochDigest(encodings), nil
}

func (r *Reconciler) exchangeCursors(room string, t Transport, goFirst bool, local store.RoomCursors, localDigest []byte) (store.RoomCursors, []byte, error) {
	localMsg := &wire.CursorSet{RoomID: room}
	for authorB64, cur := range local {
		author, err := base64.StdEncoding.DecodeString(authorB64)
		if err != nil {
			return nil, nil, fmt.Errorf("decode local author key: %w", err)
		}
		localMsg.Cursors = append(localMsg.Cursors, wire.AuthorCursor{Author: author, MDate: uint64(cur.MDate), ID: cur.ID})
	}

	send := func() error {
		if err := t.Send(wire.KindCursorSet, localMsg.Marshal()); err != nil {
			return err
		}
		return t.Send(wire.KindEpochDigest, (&wire.EpochDigest{RoomID: room, Digest: localDigest}).Marshal())
	}
	recv := func() (store.RoomCursors, []byte, error) {
		kind, payload, err := t.Recv()
		if err != nil {
			return nil, nil, err
		}
		if kind != wire.KindCursorSet {
			return nil, nil, fmt.Errorf("sync: expected CursorSet frame, got kind %d", kind)
		}
		cs, err := wire.UnmarshalCursorSet(payload)
		if err != nil {
			return nil, nil, err
		}
		kind, payload, err = t.Recv()
		if err != nil {
			return nil, nil, err
		}
		if kind != wire.KindEpochDigest {
			return nil, nil, fmt.Errorf("sync: expected EpochDigest frame, got kind %d", kind)
		}
		ed, err := wire.UnmarshalEpochDigest(payload)
		if err != nil {
			return nil, nil, err
		}
		peer := store.RoomCursors{}
		for _, c := range cs.Cursors {
			peer[base64.StdEncoding.EncodeToString(c.Author)] = store.Cursor{MDate: int64(c.MDate), ID: c.ID}
		}
		return peer, ed.Digest, nil
	}

	if goFirst {
		if err := send(); err != nil {
			return nil, nil, err
		}
		return recv()
	}
	peer, digest, err := recv()
	if err != nil {
		return nil, nil, err
	}
	if err := send(); err != nil {
		return nil, nil, err
	}
	return peer, digest, nil
}

// reconcileEntities runs one advertise/request/transfer/commit pass per
// entity in entities, in both directions. Each direction is a
// deterministic half-duplex turn (spec.md §4.7 steps 3-6); goFirst picks
// which side advertises first per entity so both peers agree on turn
// order without negotiation.
func (r *Reconciler) reconcileEntities(ctx context.Context, room string, t Transport, goFirst bool, entities []string, peerCursors store.RoomCursors) error {
	authors, err := r.knownAuthors(ctx, room)
	if err != nil {
		return err
	}

	for _, entity := range entities {
		if goFirst {
			if err := r.advertiseAndTransfer(ctx, room, entity, authors, peerCursors, t); err != nil {
				return fmt.Errorf("advertise %s: %w", entity, err)
			}
			if err := r.receiveAndCommit(ctx, room, entity, t); err != nil {
				return fmt.Errorf("receive %s: %w", entity, err)
			}
		} else {
			if err := r.receiveAndCommit(ctx, room, entity, t); err != nil {
				return fmt.Errorf("receive %s: %w", entity, err)
			}
			if err := r.advertiseAndTransfer(ctx, room, entity, authors, peerCursors, t); err != nil {
				return fmt.Errorf("advertise %s: %w", entity, err)
			}
		}
	}
	return nil
}

func (r *Reconciler) knownAuthors(ctx context.Context, room string) ([][]byte, error) {
	cursors, err := r.store.CursorsForRoom(ctx, room)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var authors [][]byte
	for authorB64 := range cursors {
		author, err := base64.StdEncoding.DecodeString(authorB64)
		if err != nil {
			return nil, err
		}
		seen[authorB64] = true
		authors = append(authors, author)
	}
	selfKey := base64.StdEncoding.EncodeToString(r.self)
	if !seen[selfKey] {
		authors = append(authors, []byte(r.self))
	}
	return authors, nil
}

// advertiseAndTransfer sends every row this peer holds for entity,
// grouped by author, whose mdate is past the peer's reported cursor for
// that author (spec.md §4.7 step 3), then serves whatever subset the
// peer requests (step 5).
func (r *Reconciler) advertiseAndTransfer(ctx context.Context, room, entity string, authors [][]byte, peerCursors store.RoomCursors, t Transport) error {
	for _, author := range authors {
		after := peerCursors[base64.StdEncoding.EncodeToString(author)]
		items, err := r.advertiseItems(ctx, room, entity, author, after)
		if err != nil {
			return err
		}
		adv := &wire.Advertise{RoomID: room, Author: author, Entity: entity, Items: items}
		if err := t.Send(wire.KindAdvertise, adv.Marshal()); err != nil {
			return err
		}
	}
	if err := t.Send(wire.KindBatchEnd, (&wire.BatchEnd{RoomID: room, Entity: entity, Count: uint64(len(authors))}).Marshal()); err != nil {
		return err
	}

	kind, payload, err := t.Recv()
	if err != nil {
		return err
	}
	if kind != wire.KindRequest {
		return fmt.Errorf("sync: expected Request frame, got kind %d", kind)
	}
	req, err := wire.UnmarshalRequest(payload)
	if err != nil {
		return err
	}

	for i := 0; i < len(req.IDs); i += r.creditWindow {
		end := i + r.creditWindow
		if end > len(req.IDs) {
			end = len(req.IDs)
		}
		for _, id := range req.IDs[i:end] {
			row, err := r.store.ReadRowByID(ctx, entity, id)
			if err != nil {
				return fmt.Errorf("read requested row %s/%s: %w", entity, id, err)
			}
			spec, _ := r.reg.Resolve(entity)
			fieldsJSON, err := encodeFields(spec, row.Fields)
			if err != nil {
				return err
			}
			wireRow := &wire.Row{
				ID: row.ID, RoomID: row.RoomID, EntityName: entity, MDate: uint64(row.MDate),
				Author: row.Author, Signature: row.Signature, SchemaVersion: uint64(row.SchemaVersion),
				Deleted: row.Deleted, FieldsJSON: fieldsJSON,
			}
			if err := t.Send(wire.KindRow, wireRow.Marshal()); err != nil {
				return err
			}
		}
	}
	return t.Send(wire.KindBatchEnd, (&wire.BatchEnd{RoomID: room, Entity: entity, Count: uint64(len(req.IDs))}).Marshal())
}

func (r *Reconciler) advertiseItems(ctx context.Context, room, entity string, author []byte, after store.Cursor) ([]wire.AdvertiseItem, error) {
	sel := &queryir.Select{
		From:       entity,
		RoomFilter: []string{room},
		Filter: queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "author", Value: ir.VBase64(author)},
			queryir.Compare{Field: "mdate", Op: queryir.OpGt, Value: ir.VInt(after.MDate)},
		}},
		Order: []queryir.SortKey{{Field: "mdate"}, {Field: "id"}},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "mdate", Alias: "mdate"},
			queryir.FieldProjection{Source: "signature", Alias: "signature"},
		},
	}
	rows, err := r.store.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, err
	}
	items := make([]wire.AdvertiseItem, 0, len(rows))
	for _, row := range rows {
		id, _ := row["id"].(string)
		mdate, _ := row["mdate"].(int64)
		sigB64, _ := row["signature"].(string)
		sig, err := base64.StdEncoding.DecodeString(sigB64)
		if err != nil {
			return nil, fmt.Errorf("decode signature column: %w", err)
		}
		items = append(items, wire.AdvertiseItem{ID: id, MDate: uint64(mdate), Digest: ir.RowDigest(&ir.Row{Signature: sig})})
	}
	return items, nil
}

// receiveAndCommit reads the peer's Advertise/BatchEnd frames for
// entity, requests whatever this peer is missing or holds under a
// divergent digest, verifies and stages each transferred Row, and
// commits staged rows in batches bounded by batchBytes (spec.md §4.7
// steps 4-6). A row that fails signature, authorization-at-mdate, or
// schema-conformance verification is skipped rather than aborting the
// round ("a failed verification skips the row ... without tearing down
// the stream").
func (r *Reconciler) receiveAndCommit(ctx context.Context, room, entity string, t Transport) error {
	var wanted []string
	for {
		kind, payload, err := t.Recv()
		if err != nil {
			return err
		}
		if kind == wire.KindBatchEnd {
			if _, err := wire.UnmarshalBatchEnd(payload); err != nil {
				return err
			}
			break
		}
		if kind != wire.KindAdvertise {
			return fmt.Errorf("sync: expected Advertise or BatchEnd frame, got kind %d", kind)
		}
		adv, err := wire.UnmarshalAdvertise(payload)
		if err != nil {
			return err
		}
		for _, item := range adv.Items {
			missing, err := r.isMissingOrDivergent(ctx, entity, item)
			if err != nil {
				return err
			}
			if missing {
				wanted = append(wanted, item.ID)
			}
		}
	}

	if err := t.Send(wire.KindRequest, (&wire.Request{RoomID: room, Entity: entity, IDs: wanted}).Marshal()); err != nil {
		return err
	}

	var staged []*ir.Row
	stagedBytes := 0
	received := 0
	for received < len(wanted) {
		kind, payload, err := t.Recv()
		if err != nil {
			return err
		}
		if kind != wire.KindRow {
			return fmt.Errorf("sync: expected Row frame, got kind %d", kind)
		}
		wireRow, err := wire.UnmarshalRow(payload)
		if err != nil {
			return err
		}
		received++

		row, skip, err := r.verifyAndBuildRow(ctx, room, entity, wireRow)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		staged = append(staged, row)
		stagedBytes += len(wireRow.FieldsJSON) + len(wireRow.Signature) + len(wireRow.Author)
		if stagedBytes >= r.batchBytes {
			if err := r.commit(ctx, room, staged); err != nil {
				return err
			}
			staged, stagedBytes = nil, 0
		}
	}
	if _, _, err := t.Recv(); err != nil { // final BatchEnd confirming transferred count
		return err
	}
	return r.commit(ctx, room, staged)
}

func (r *Reconciler) isMissingOrDivergent(ctx context.Context, entity string, item wire.AdvertiseItem) (bool, error) {
	existing, err := r.store.ReadRowByID(ctx, entity, item.ID)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return !bytesEqual(ir.RowDigest(existing), item.Digest), nil
}

func (r *Reconciler) verifyAndBuildRow(ctx context.Context, room, entity string, wireRow *wire.Row) (*ir.Row, bool, error) {
	spec, ok := r.reg.Resolve(entity)
	if !ok {
		return nil, true, nil
	}
	fields, err := decodeFields(spec, wireRow.FieldsJSON)
	if err != nil {
		return nil, true, nil
	}
	row := &ir.Row{
		ID: wireRow.ID, RoomID: wireRow.RoomID, EntityName: entity, MDate: int64(wireRow.MDate),
		Author: wireRow.Author, Signature: wireRow.Signature, SchemaVersion: ir.SchemaVersion(wireRow.SchemaVersion),
		Deleted: wireRow.Deleted, Fields: fields,
	}

	ok, err = ir.VerifyRow(wireRow.Author, row, fieldOrderOf(spec))
	if err != nil || !ok {
		return nil, true, nil
	}

	// Epoch and membership rows establish authority rather than depend on
	// it, so they replicate on signature alone. A peer joining a Room for
	// the first time has no epoch yet to authorize them against; what
	// authorization gates is application writes made under a membership
	// that hasn't replicated everywhere yet, not the membership row
	// itself.
	if entity == auth.EntityEpoch || entity == auth.EntityMembership {
		return row, false, nil
	}

	allowed, err := r.authz.Allowed(ctx, wireRow.Author, room, entity, auth.ActionWrite, row.MDate)
	if err != nil {
		return nil, false, err
	}
	if !allowed {
		return nil, true, nil
	}
	return row, false, nil
}

func (r *Reconciler) commit(ctx context.Context, room string, rows []*ir.Row) error {
	if len(rows) == 0 {
		return nil
	}
	applied, err := r.store.ApplyRows(ctx, rows)
	if err != nil {
		return fmt.Errorf("sync: commit batch: %w", err)
	}
	// A row's cursor advances once the receiver has evaluated it, whether
	// it won the store's LWW conflict or not: the cursor tracks "how far
	// into this author's writes have we looked", not "how many of this
	// author's writes are currently stored". A row that loses to an
	// already-stored winner (or to a tombstone) still needs its cursor
	// moved past it, or advertiseItems re-offers the same row every
	// subsequent round and the room never reaches Idle for that author.
	byAuthor := map[string]store.Cursor{}
	for i, row := range rows {
		if applied[i] && r.bus != nil {
			r.bus.Publish(eventbus.Event{Kind: eventbus.DataChanged, Room: room, Entity: row.EntityName, RowID: row.ID, Origin: OriginRemote})
		}
		key := base64.StdEncoding.EncodeToString(row.Author)
		if cur, ok := byAuthor[key]; !ok || row.MDate > cur.MDate || (row.MDate == cur.MDate && row.ID > cur.ID) {
			byAuthor[key] = store.Cursor{MDate: row.MDate, ID: row.ID}
		}
	}
	for authorB64, cur := range byAuthor {
		author, err := base64.StdEncoding.DecodeString(authorB64)
		if err != nil {
			return err
		}
		if err := r.store.AdvanceCursor(ctx, room, author, cur); err != nil {
			return err
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	return string(a) == string(b)
}
