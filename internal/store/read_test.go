package store

import (
	"context"
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/roach88/meshroom/internal/queryir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowsPtrSlice(rows ...*ir.Row) []*ir.Row { return rows }

func TestExecuteSelectReturnsPlainFields(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.ApplyRows(ctx, rowsPtrSlice(
		testPerson("p1", "room-1", 100, 0x01, "Ada"),
		testPerson("p2", "room-1", 100, 0x01, "Grace"),
	))
	require.NoError(t, err)

	sel := &queryir.Select{
		From:       "chat.Person",
		RoomFilter: []string{"room-1"},
		Order:      []queryir.SortKey{{Field: "name"}},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}

	rows, err := s.ExecuteSelect(ctx, sel)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[0]["name"])
	assert.Equal(t, "Grace", rows[1]["name"])
}

func TestExecuteSelectAppliesEqualsFilter(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.ApplyRows(ctx, rowsPtrSlice(
		testPerson("p1", "room-1", 100, 0x01, "Ada"),
		testPerson("p2", "room-1", 100, 0x01, "Grace"),
	))
	require.NoError(t, err)

	sel := &queryir.Select{
		From:       "chat.Person",
		RoomFilter: []string{"room-1"},
		Filter:     queryir.Equals{Field: "name", Value: ir.VString("Grace")},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}

	rows, err := s.ExecuteSelect(ctx, sel)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "p2", rows[0]["id"])
}

func TestExecuteSelectEmbedsSingularRef(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.ApplyRows(ctx, rowsPtrSlice(testPerson("author-1", "room-1", 100, 0x01, "Ada")))
	require.NoError(t, err)

	msg := &ir.Row{
		ID: "msg-1", RoomID: "room-1", EntityName: "chat.Message",
		MDate: 100, Author: []byte{0x01}, Signature: []byte{0xAA}, SchemaVersion: 1,
		Fields: ir.RowFields{"body": ir.VString("hello"), "sender": ir.VRef("author-1")},
	}
	_, err = s.ApplyRows(ctx, rowsPtrSlice(msg))
	require.NoError(t, err)

	childSel := &queryir.Select{
		From:   "chat.Person",
		Filter: queryir.InSet{Field: "id", BoundVar: "$parent.sender"},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}
	sel := &queryir.Select{
		From:       "chat.Message",
		RoomFilter: []string{"room-1"},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "body", Alias: "body"},
			queryir.NestedProjection{Alias: "sender", Source: "sender", Query: childSel},
		},
	}

	rows, err := s.ExecuteSelect(ctx, sel)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	author, ok := rows[0]["sender"].(map[string]any)
	require.True(t, ok, "sender should embed as an object")
	assert.Equal(t, "Ada", author["name"])
}

func TestExecuteSelectEmbedsRefArrayAsList(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.ApplyRows(ctx, rowsPtrSlice(
		testPerson("p1", "room-1", 100, 0x01, "Ada"),
		testPerson("p2", "room-1", 100, 0x01, "Grace"),
	))
	require.NoError(t, err)

	thread := &ir.Row{
		ID: "thread-1", RoomID: "room-1", EntityName: "chat.Thread",
		MDate: 100, Author: []byte{0x01}, Signature: []byte{0xAA}, SchemaVersion: 1,
		Fields: ir.RowFields{"title": ir.VString("General"), "participants": ir.VRefArray{"p1", "p2"}},
	}
	_, err = s.ApplyRows(ctx, rowsPtrSlice(thread))
	require.NoError(t, err)

	childSel := &queryir.Select{
		From:   "chat.Person",
		Filter: queryir.InSet{Field: "id", BoundVar: "$parent.participants"},
		Order:  []queryir.SortKey{{Field: "name"}},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}
	sel := &queryir.Select{
		From:       "chat.Thread",
		RoomFilter: []string{"room-1"},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.NestedProjection{Alias: "participants", Source: "participants", Query: childSel},
		},
	}

	rows, err := s.ExecuteSelect(ctx, sel)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	participants, ok := rows[0]["participants"].([]any)
	require.True(t, ok)
	assert.Len(t, participants, 2)
}

func TestExecuteSelectNestedFanOutIsOneQueryPerParentField(t *testing.T) {
	s := openTestStore(t, chatSchema)
	ctx := context.Background()

	_, err := s.ApplyRows(ctx, rowsPtrSlice(testPerson("author-1", "room-1", 100, 0x01, "Ada")))
	require.NoError(t, err)

	msgs := rowsPtrSlice(
		&ir.Row{ID: "msg-1", RoomID: "room-1", EntityName: "chat.Message", MDate: 100, Author: []byte{0x01}, Signature: []byte{0xAA}, SchemaVersion: 1,
			Fields: ir.RowFields{"body": ir.VString("hi"), "sender": ir.VRef("author-1")}},
		&ir.Row{ID: "msg-2", RoomID: "room-1", EntityName: "chat.Message", MDate: 100, Author: []byte{0x01}, Signature: []byte{0xAA}, SchemaVersion: 1,
			Fields: ir.RowFields{"body": ir.VString("hey"), "sender": ir.VRef("author-1")}},
	)
	_, err = s.ApplyRows(ctx, msgs)
	require.NoError(t, err)

	childSel := &queryir.Select{
		From:   "chat.Person",
		Filter: queryir.InSet{Field: "id", BoundVar: "$parent.sender"},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.FieldProjection{Source: "name", Alias: "name"},
		},
	}
	sel := &queryir.Select{
		From:       "chat.Message",
		RoomFilter: []string{"room-1"},
		Order:      []queryir.SortKey{{Field: "body"}},
		Projections: []queryir.Projection{
			queryir.FieldProjection{Source: "id", Alias: "id"},
			queryir.NestedProjection{Alias: "sender", Source: "sender", Query: childSel},
		},
	}

	rows, err := s.ExecuteSelect(ctx, sel)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		author, ok := row["sender"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Ada", author["name"])
	}
}
