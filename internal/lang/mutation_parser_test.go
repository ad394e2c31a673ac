package lang

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMutationNested(t *testing.T) {
	doc, err := ParseMutation(`
		mutation mutmut {
			Person {
				id : $id
				name : $name
				parents : [{id: $father_id}, {id: $mother_id}]
				pet : { id : $pet_id }
			}
			person_value : Person {
				name : "me"
				age : 4200
				weight : 71.1
				is_human : false
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, doc.Entities, 2)
	assert.Equal(t, "mutmut", doc.Name)

	person := doc.Entities[0]
	assert.Equal(t, "Person", person.Entity)
	assert.Empty(t, person.Alias)

	idField := findMutationField(t, person.Fields, "id")
	require.NotNil(t, idField.Value.Scalar)
	assert.True(t, idField.Value.Scalar.IsVariable)
	assert.Equal(t, "id", idField.Value.Scalar.VarName)

	parentsField := findMutationField(t, person.Fields, "parents")
	require.Len(t, parentsField.Value.Array, 2)
	assert.True(t, parentsField.Value.Array[0].Fields[0].Value.Scalar.IsVariable)

	petField := findMutationField(t, person.Fields, "pet")
	require.NotNil(t, petField.Value.Nested)
	assert.Equal(t, "pet_id", petField.Value.Nested.Fields[0].Value.Scalar.VarName)

	aliased := doc.Entities[1]
	assert.Equal(t, "person_value", aliased.Alias)
	assert.Equal(t, "Person", aliased.Entity)

	ageField := findMutationField(t, aliased.Fields, "age")
	assert.Equal(t, ir.VInt(4200), ageField.Value.Scalar.Literal)

	weightField := findMutationField(t, aliased.Fields, "weight")
	assert.Equal(t, ir.VFloat(71.1), weightField.Value.Scalar.Literal)

	humanField := findMutationField(t, aliased.Fields, "is_human")
	assert.Equal(t, ir.VBool(false), humanField.Value.Scalar.Literal)
}

func TestParseMutationSyntaxError(t *testing.T) {
	_, err := ParseMutation(`mutate { Person { id $id } }`)
	require.Error(t, err)
}

func findMutationField(t *testing.T, fields []MutationField, name string) MutationField {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not found", name)
	return MutationField{}
}
