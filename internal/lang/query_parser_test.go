package lang

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryFiltersAndPagination(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person(
				name = "someone",
				is_human = true,
				age >= 1,
				weight <= 200,
				order_by(surname asc),
				first 30,
				skip 2,
				before("didi"),
			) {
				a_name: name
				surname
				parents {
					age
				}
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, doc.Selections, 1)

	sel := doc.Selections[0]
	assert.Equal(t, "Person", sel.Entity)
	require.Len(t, sel.Filters, 4)
	assert.Equal(t, "name", sel.Filters[0].Field)
	assert.Equal(t, OpEq, sel.Filters[0].Op)
	assert.Equal(t, "age", sel.Filters[2].Field)
	assert.Equal(t, OpGte, sel.Filters[2].Op)

	require.Len(t, sel.OrderBy, 1)
	assert.Equal(t, "surname", sel.OrderBy[0].Field)
	assert.Equal(t, Ascending, sel.OrderBy[0].Direction)

	require.NotNil(t, sel.First)
	assert.Equal(t, int64(30), *sel.First)
	require.NotNil(t, sel.Skip)
	assert.Equal(t, int64(2), *sel.Skip)
	require.NotNil(t, sel.Before)
	assert.Equal(t, ir.VString("didi"), sel.Before.Literal)

	require.Len(t, sel.Fields, 3)
	assert.Equal(t, "a_name", sel.Fields[0].Alias)
	assert.Equal(t, "name", sel.Fields[0].Name)
	assert.Nil(t, sel.Fields[0].Nested)

	parentsField := sel.Fields[2]
	assert.Equal(t, "parents", parentsField.Name)
	require.NotNil(t, parentsField.Nested)
	assert.Len(t, parentsField.Nested.Fields, 1)
}

func TestParseQueryNestedAliasAndDepth(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person {
				name
				aliased : parents {
					name
					parents {
						name
					}
				}
				parents {
					name
				}
			}
		}
	`)
	require.NoError(t, err)
	sel := doc.Selections[0]
	require.Len(t, sel.Fields, 3)
	assert.Equal(t, "aliased", sel.Fields[1].Alias)
	assert.Equal(t, "parents", sel.Fields[1].Name)
	require.NotNil(t, sel.Fields[1].Nested)
	require.Len(t, sel.Fields[1].Nested.Fields, 2)
}

func TestParseQuerySearch(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person(
				search("hello")
			) {
				name
			}
		}
	`)
	require.NoError(t, err)
	sel := doc.Selections[0]
	assert.True(t, sel.HasSearch)
	assert.Equal(t, "hello", sel.Search)
}

func TestParseQueryAggregateProjection(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person {
				avg_age: avg(age)
				count(id)
			}
		}
	`)
	require.NoError(t, err)
	sel := doc.Selections[0]
	require.Len(t, sel.Fields, 2)

	avgField := sel.Fields[0]
	assert.Equal(t, "avg_age", avgField.Alias)
	require.NotNil(t, avgField.Aggregate)
	assert.Equal(t, AggAvg, *avgField.Aggregate)
	assert.Equal(t, "age", avgField.Name)

	countField := sel.Fields[1]
	require.NotNil(t, countField.Aggregate)
	assert.Equal(t, AggCount, *countField.Aggregate)
	assert.Equal(t, "id", countField.Name)
}

func TestParseQueryJSONPathProjection(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person {
				details->"$.a.b[2]"
				tags->3
			}
		}
	`)
	require.NoError(t, err)
	sel := doc.Selections[0]
	require.Len(t, sel.Fields, 2)

	pathField := sel.Fields[0]
	assert.Equal(t, "details", pathField.Name)
	assert.Equal(t, "$.a.b[2]", pathField.JSONPath)

	idxField := sel.Fields[1]
	assert.Equal(t, "tags", idxField.Name)
	require.NotNil(t, idxField.JSONIndex)
	assert.Equal(t, int64(3), *idxField.JSONIndex)
}

func TestParseQueryNullableClause(t *testing.T) {
	doc, err := ParseQuery(`
		query aquery {
			Person(
				nullable(surname, nickname)
			) {
				name
				surname
				nickname
			}
		}
	`)
	require.NoError(t, err)
	sel := doc.Selections[0]
	assert.Equal(t, []string{"surname", "nickname"}, sel.Nullable)
}

func TestParseQuerySyntaxError(t *testing.T) {
	_, err := ParseQuery(`query aquery { Person( name == "x" ) { name } }`)
	require.Error(t, err)
}
