package queryir

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePortableSelect(t *testing.T) {
	query := Select{
		From:   "Person",
		Filter: Equals{Field: "name", Value: ir.VString("a")},
		Projections: []Projection{
			FieldProjection{Source: "name", Alias: "name"},
		},
	}
	result := Validate(query)
	assert.True(t, result.IsPortable)
	assert.Empty(t, result.Warnings)
}

func TestValidateFlagsAggregateAndJSONPath(t *testing.T) {
	avg := AggAvg
	query := Select{
		From: "Message",
		Projections: []Projection{
			AggregateProjection{Func: avg, Source: "age", Alias: "avg_age"},
			JSONPathProjection{Source: "details", Alias: "d", Path: "$.a"},
		},
	}
	result := Validate(query)
	assert.False(t, result.IsPortable)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "details")
}

func TestValidateRecursesIntoNestedProjection(t *testing.T) {
	query := Select{
		From: "Person",
		Projections: []Projection{
			FieldProjection{Source: "name"},
			NestedProjection{
				Alias: "parents",
				Query: Select{
					From: "Person",
					Projections: []Projection{
						JSONPathProjection{Source: "details", Path: "$.x"},
					},
				},
			},
		},
	}
	result := Validate(query)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "details")
}

func TestCheckSemanticsRejectsPagingWithoutOrder(t *testing.T) {
	first := 10
	query := Select{From: "Person", Limit: &first}
	errs := CheckSemantics(query)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingOrderForPaging, errs[0].Code)
}

func TestCheckSemanticsAllowsPagingWithOrder(t *testing.T) {
	first := 10
	query := Select{From: "Person", Limit: &first, Order: []SortKey{{Field: "id"}}}
	errs := CheckSemantics(query)
	assert.Empty(t, errs)
}

func TestCheckSemanticsRejectsSearchWithOrder(t *testing.T) {
	query := Select{From: "Person", Search: "hello", Order: []SortKey{{Field: "id"}}}
	errs := CheckSemantics(query)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSearchWithOrder, errs[0].Code)
}

func TestCheckSemanticsRejectsCursorArityMismatch(t *testing.T) {
	query := Select{
		From:   "Person",
		Order:  []SortKey{{Field: "mdate"}, {Field: "id"}},
		Before: &Cursor{Values: []ir.Value{ir.VInt(1)}},
	}
	errs := CheckSemantics(query)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrCursorArityMismatch, errs[0].Code)
}

func TestCheckSemanticsRejectsMixedAggregateProjections(t *testing.T) {
	avg := AggAvg
	query := Select{
		From: "Person",
		Projections: []Projection{
			FieldProjection{Source: "name"},
			AggregateProjection{Func: avg, Source: "age", Alias: "avg_age"},
		},
	}
	errs := CheckSemantics(query)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrAggregateMixedWithPlain, errs[0].Code)
}

func TestCheckSemanticsRecursesIntoJoin(t *testing.T) {
	badChild := Select{From: "Person", Limit: intPtr(5)}
	query := Join{
		Left:  Select{From: "Person", Order: []SortKey{{Field: "id"}}},
		Right: badChild,
		On:    Equals{Field: "author", Value: ir.VString("p1")},
	}
	errs := CheckSemantics(query)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrMissingOrderForPaging, errs[0].Code)
}

func intPtr(n int) *int { return &n }
