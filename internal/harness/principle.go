package harness

import (
	"context"
	"fmt"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
)

// CheckSignatureClosure verifies every committed row of entity in room
// on peer still verifies under its own author and the canonical
// encoding rules (spec.md §8 "Signature closure").
func CheckSignatureClosure(peer *Peer, entity, room string) error {
	spec, ok := peer.Reg.Resolve(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	rows, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return err
	}
	order := fieldOrderOf(spec)
	for _, row := range rows {
		ok, err := ir.VerifyRow(row.Author, row, order)
		if err != nil {
			return fmt.Errorf("row %s: %w", row.ID, err)
		}
		if !ok {
			return fmt.Errorf("row %s: signature does not verify under its own author", row.ID)
		}
	}
	return nil
}

// CheckAuthorizationClosure verifies no committed row of entity in room
// on peer exists without its author having held write rights over
// entity in room at the row's mdate (spec.md §8 "Authorization
// closure"). A tombstone with no recoverable Fields still carries the
// author/mdate the check needs.
func CheckAuthorizationClosure(peer *Peer, entity, room string) error {
	rows, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, row := range rows {
		allowed, err := peer.Authz.Allowed(ctx, row.Author, room, entity, auth.ActionWrite, row.MDate)
		if err != nil {
			return fmt.Errorf("row %s: %w", row.ID, err)
		}
		if !allowed {
			return fmt.Errorf("row %s: author was not authorized to write %s at mdate %d", row.ID, entity, row.MDate)
		}
	}
	return nil
}

// CheckConflictDeterminism verifies that a and b, having received the
// same multiset of signed rows for entity in room (via sync or
// otherwise), resolved the same winning row per id (spec.md §8
// "Conflict determinism").
func CheckConflictDeterminism(a, b *Peer, entity, room string) error {
	rowsA, err := selectAllRaw(a, entity, room)
	if err != nil {
		return err
	}
	rowsB, err := selectAllRaw(b, entity, room)
	if err != nil {
		return err
	}
	byID := make(map[string]*ir.Row, len(rowsB))
	for _, r := range rowsB {
		byID[r.ID] = r
	}
	for _, ra := range rowsA {
		rb, ok := byID[ra.ID]
		if !ok {
			return fmt.Errorf("row %s present on %s but not on %s", ra.ID, a.Name, b.Name)
		}
		if ra.MDate != rb.MDate || string(ra.Author) != string(rb.Author) || ra.Deleted != rb.Deleted {
			return fmt.Errorf("row %s: %s resolved (mdate=%d author=%x deleted=%v), %s resolved (mdate=%d author=%x deleted=%v)",
				ra.ID, a.Name, ra.MDate, ra.Author, ra.Deleted, b.Name, rb.MDate, rb.Author, rb.Deleted)
		}
	}
	if len(rowsA) != len(rowsB) {
		return fmt.Errorf("%s has %d rows of %s, %s has %d", a.Name, len(rowsA), entity, b.Name, len(rowsB))
	}
	return nil
}

// CheckSyncConvergence runs maxRounds sync rounds between a and b for
// room, then verifies both sides hold identical row sets of entity modulo
// tombstone state (spec.md §8 "Sync convergence").
func CheckSyncConvergence(a, b *Peer, room, entity string, maxRounds int) error {
	ctx := context.Background()
	if err := runSyncRounds(ctx, a, b, room, maxRounds); err != nil {
		return err
	}
	return CheckConflictDeterminism(a, b, entity, room)
}

// CheckIdempotentIngress verifies that replaying a sync round against
// an already-converged pair produces no further change (spec.md §8
// "Idempotent ingress").
func CheckIdempotentIngress(a, b *Peer, room, entity string) error {
	before, err := selectAllRaw(a, entity, room)
	if err != nil {
		return err
	}
	if err := runSyncRounds(context.Background(), a, b, room, 1); err != nil {
		return err
	}
	after, err := selectAllRaw(a, entity, room)
	if err != nil {
		return err
	}
	if len(before) != len(after) {
		return fmt.Errorf("replaying a sync round changed %s's row count for %s from %d to %d", a.Name, entity, len(before), len(after))
	}
	return nil
}

// CheckPagingTotality verifies that repeatedly querying entity in room
// with an After cursor, advancing past the last row seen each page,
// visits every non-tombstone row exactly once in (mdate, id) order
// (spec.md §8 "Paging totality"). pageSize bounds each page.
func CheckPagingTotality(peer *Peer, entity, room string, pageSize int) error {
	all, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(all))
	for _, r := range all {
		if !r.Deleted {
			want[r.ID] = true
		}
	}

	seen := make(map[string]bool, len(want))
	var after *ir.Cursor
	for {
		ids, next, err := pageIDs(peer, entity, room, pageSize, after)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if seen[id] {
				return fmt.Errorf("row %s visited more than once while paging %s", id, entity)
			}
			seen[id] = true
		}
		after = next
	}

	if len(seen) != len(want) {
		return fmt.Errorf("paging visited %d rows of %s, store holds %d non-tombstone rows", len(seen), entity, len(want))
	}
	for id := range want {
		if !seen[id] {
			return fmt.Errorf("row %s of %s was never visited while paging", id, entity)
		}
	}
	return nil
}

// pageIDs runs one page of entity in room ordered by (mdate, id),
// starting strictly after the given cursor (nil for the first page),
// and returns the ids seen plus the cursor to resume from.
func pageIDs(peer *Peer, entity, room string, pageSize int, after *ir.Cursor) ([]string, *ir.Cursor, error) {
	var afterCur *queryir.Cursor
	if after != nil {
		afterCur = &queryir.Cursor{Values: []ir.Value{ir.VInt(after.MDate), ir.VString(after.ID)}}
	}
	sel := &queryir.Select{
		From:       entity,
		RoomFilter: []string{room},
		Filter:     queryir.Equals{Field: "deleted", Value: ir.VBool(false)},
		Order:      []queryir.SortKey{{Field: "mdate"}, {Field: "id"}},
		Limit:      &pageSize,
		After:      afterCur,
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "mdate", Alias: "mdate"},
		},
	}
	rows, err := peer.St.ExecuteSelect(context.Background(), sel)
	if err != nil {
		return nil, nil, fmt.Errorf("page %s: %w", entity, err)
	}
	ids := make([]string, len(rows))
	var next *ir.Cursor
	for i, r := range rows {
		id, _ := r["id"].(string)
		mdate, _ := r["mdate"].(int64)
		ids[i] = id
		next = &ir.Cursor{MDate: mdate, ID: id}
	}
	return ids, next, nil
}

// CheckSchemaMonotonicity applies widenedModel on top of peer's current
// registry and verifies every row written under the old schema for
// entity in room is still readable afterward (spec.md §8 "Schema
// monotonicity": "For any schema update accepted by the registry, all
// previously valid rows remain valid"). The registry's own
// internal/schema.Registry.Apply already rejects a non-widening update
// before this check ever runs; this verifies the accepted case actually
// holds at the row level too.
func CheckSchemaMonotonicity(peer *Peer, widenedModel, entity, room string) error {
	before, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return err
	}
	if err := peer.Reg.Apply(widenedModel); err != nil {
		return fmt.Errorf("apply widened schema: %w", err)
	}
	after, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return fmt.Errorf("read rows after schema widen: %w", err)
	}
	if len(before) != len(after) {
		return fmt.Errorf("schema widen changed row count for %s from %d to %d", entity, len(before), len(after))
	}
	return nil
}
