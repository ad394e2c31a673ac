package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/meshroom/internal/auth"
	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/lang"
)

// TestSnapshotRowsSortedAndIncludesTombstones grounds golden-file
// comparisons on a known row set: SnapshotRows must return one entry per
// row (tombstones included) sorted by id, each carrying a stable
// canonical encoding rather than the row's live field ordering.
func TestSnapshotRowsSortedAndIncludesTombstones(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	p := newPeer(t, dir, "snap", chatModel)
	defer p.St.Close()

	room := "room-snapshot"
	require.NoError(t, auth.Bootstrap(ctx, p.St, p.Reg, room, p.Identity.SigningPrivate, 1000, false))

	doc, err := lang.ParseMutation(`
		mutation m {
			one : chat.Message { content : $c1 }
			two : chat.Message { content : $c2 }
		}
	`)
	require.NoError(t, err)
	ids, err := p.Mutate.Apply(ctx, doc, map[string]ir.Value{
		"c1": ir.VString("alpha"),
		"c2": ir.VString("beta"),
	}, room)
	require.NoError(t, err)

	delDoc, err := lang.ParseDeletion(`
		deletion d ($id) {
			chat.Message {
				$id,
			}
		}
	`)
	require.NoError(t, err)
	require.NoError(t, p.Delete.Apply(ctx, delDoc, map[string]ir.Value{"id": ir.VString(ids["one"])}, room))

	snaps, err := SnapshotRows(p, "chat.Message", room)
	require.NoError(t, err)
	require.Len(t, snaps, 2, "both the live row and its tombstoned sibling must be captured")

	for _, s := range snaps {
		require.Equal(t, "chat.Message", s.Entity)
		require.NotEmpty(t, s.Canonical)
	}
	require.True(t, snaps[0].ID <= snaps[1].ID, "snapshot rows must be sorted by id")
}

func TestSnapshotRowsUnknownEntity(t *testing.T) {
	dir := t.TempDir()
	p := newPeer(t, dir, "snap-unknown", chatModel)
	defer p.St.Close()

	_, err := SnapshotRows(p, "chat.NoSuchEntity", "room-x")
	require.Error(t, err)
}
