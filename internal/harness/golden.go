package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
)

// RowSnapshot is one row's canonical encoding, captured for golden
// comparison rather than its live Go struct (whose field ordering and
// internal representation are not meant to be stable across refactors).
type RowSnapshot struct {
	Entity    string `json:"entity"`
	ID        string `json:"id"`
	Canonical string `json:"canonical_hex"`
}

// SnapshotRows reads every row of entity in room from peer's store
// (including tombstones) and returns their canonical encodings
// (internal/ir.CanonicalEncoding), sorted by id for determinism.
func SnapshotRows(peer *Peer, entity, room string) ([]RowSnapshot, error) {
	spec, ok := peer.Reg.Resolve(entity)
	if !ok {
		return nil, fmt.Errorf("unknown entity %q", entity)
	}
	order := fieldOrderOf(spec)

	rows, err := selectAllRaw(peer, entity, room)
	if err != nil {
		return nil, err
	}

	out := make([]RowSnapshot, 0, len(rows))
	for _, row := range rows {
		enc, err := ir.CanonicalEncoding(row, order)
		if err != nil {
			return nil, fmt.Errorf("canonical encoding of %s/%s: %w", entity, row.ID, err)
		}
		out = append(out, RowSnapshot{Entity: entity, ID: row.ID, Canonical: fmt.Sprintf("%x", enc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// selectAllRaw lists every row of entity in room, tombstones included,
// by projecting just the id column (no deleted filter) and then
// re-reading each id through internal/store.ReadRowByID, the one store
// method that resolves a full *ir.Row including its tombstone state.
func selectAllRaw(peer *Peer, entity, room string) ([]*ir.Row, error) {
	ctx := context.Background()
	sel := &queryir.Select{
		From:       entity,
		RoomFilter: []string{room},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
		},
	}
	idRows, err := peer.St.ExecuteSelect(ctx, sel)
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", entity, err)
	}

	out := make([]*ir.Row, 0, len(idRows))
	for _, r := range idRows {
		id, _ := r["id"].(string)
		row, err := peer.St.ReadRowByID(ctx, entity, id)
		if err != nil {
			return nil, fmt.Errorf("read %s/%s: %w", entity, id, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// fieldOrderOf returns an entity's fields in declaration order, the
// same order internal/sync's own unexported fieldOrderOf uses to feed
// internal/ir.CanonicalEncoding.
func fieldOrderOf(spec *ir.EntitySpec) []string {
	order := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		order[i] = f.Name
	}
	return order
}

// AssertGoldenRows compares entity's converged row set on peer against
// a golden file named name under testdata/golden/.
func AssertGoldenRows(t *testing.T, name string, peer *Peer, entity, room string) {
	t.Helper()
	snaps, err := SnapshotRows(peer, entity, room)
	if err != nil {
		t.Fatalf("snapshot rows: %v", err)
	}
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}
