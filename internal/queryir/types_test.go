package queryir

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
)

func TestSelectImplementsQuery(t *testing.T) {
	var q Query = Select{From: "Person"}
	assert.NotNil(t, q)

	switch q.(type) {
	case Select:
	case Join:
		t.Fatal("unexpected type")
	}
}

func TestJoinImplementsQuery(t *testing.T) {
	var q Query = Join{
		Left:  Select{From: "Person"},
		Right: Select{From: "Message"},
		On:    Equals{Field: "author", Value: ir.VString("p1")},
	}
	assert.NotNil(t, q)
}

func TestPredicateSealedSet(t *testing.T) {
	var predicates []Predicate = []Predicate{
		Equals{Field: "name", Value: ir.VString("a")},
		Compare{Field: "age", Op: OpGte, Value: ir.VInt(18)},
		BoundEquals{Field: "id", BoundVar: "$target"},
		InSet{Field: "id", BoundVar: "$parent.children"},
		And{Predicates: []Predicate{
			Equals{Field: "name", Value: ir.VString("a")},
			Compare{Field: "age", Op: OpLt, Value: ir.VInt(30)},
		}},
	}
	assert.Len(t, predicates, 5)
}

func TestProjectionSealedSet(t *testing.T) {
	idx := int64(2)
	avg := AggAvg
	var projections []Projection = []Projection{
		FieldProjection{Source: "name", Alias: "a_name"},
		JSONPathProjection{Source: "details", Alias: "d", Path: "$.a.b"},
		JSONPathProjection{Source: "tags", Alias: "t", Index: &idx},
		AggregateProjection{Func: avg, Source: "age", Alias: "avg_age"},
		NestedProjection{Alias: "parents", Query: Select{From: "Person"}},
	}
	assert.Len(t, projections, 5)
}

func TestSelectCarriesRoomFilterSeparateFromFilter(t *testing.T) {
	sel := Select{
		From:       "Message",
		RoomFilter: []string{"room-1", "room-2"},
		Filter:     Equals{Field: "deleted", Value: ir.VBool(false)},
	}
	assert.Len(t, sel.RoomFilter, 2)
	assert.NotNil(t, sel.Filter)
}

func TestCursorHoldsOneValuePerOrderKey(t *testing.T) {
	sel := Select{
		From:  "Message",
		Order: []SortKey{{Field: "mdate"}, {Field: "id"}},
		After: &Cursor{Values: []ir.Value{ir.VInt(1000), ir.VString("row-7")}},
	}
	assert.Len(t, sel.Order, 2)
	assert.Len(t, sel.After.Values, 2)
}
