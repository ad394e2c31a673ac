package lang

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataModelValid(t *testing.T) {
	doc, err := ParseDataModel(`
		Ns {
			@deprecated Person {
				name : String,
				surname : String nullable,
				child : [Ns.Person],
				mother : ns.Person,
				father : ns.Person,
				index(name, surname),
			}

			Pet {
				name : String default "John",
				surname : String nullable,
				owners : [ns.Person],
				@deprecated age : Float nullable,
				weight : Integer nullable,
				is_vaccinated: Boolean nullable,
				index(weight)
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, doc.Namespaces, 1)

	ns := doc.Namespaces[0]
	assert.Equal(t, "Ns", ns.Name)
	require.Len(t, ns.Entities, 2)

	person := ns.Entities[0]
	assert.Equal(t, "Person", person.Name)
	assert.True(t, person.Deprecated)
	require.Len(t, person.Indices, 1)
	assert.Equal(t, []string{"name", "surname"}, person.Indices[0].Fields)

	nameField := findField(t, person.Fields, "name")
	assert.Equal(t, ir.TString, nameField.Scalar)
	assert.False(t, nameField.Nullable)

	surnameField := findField(t, person.Fields, "surname")
	assert.True(t, surnameField.Nullable)

	childField := findField(t, person.Fields, "child")
	assert.Equal(t, ir.KindRefArray, childField.Kind)
	assert.Equal(t, "Ns.Person", childField.RefEntity)

	motherField := findField(t, person.Fields, "mother")
	assert.Equal(t, ir.KindRef, motherField.Kind)
	assert.Equal(t, "ns.Person", motherField.RefEntity)

	pet := ns.Entities[1]
	assert.Equal(t, "Pet", pet.Name)
	require.Len(t, pet.Indices, 1)
	assert.Equal(t, []string{"weight"}, pet.Indices[0].Fields)

	nameDefault := findField(t, pet.Fields, "name")
	require.NotNil(t, nameDefault.Default)
	assert.Equal(t, ir.VString("John"), nameDefault.Default)

	ageField := findField(t, pet.Fields, "age")
	assert.True(t, ageField.Deprecated)
	assert.Equal(t, ir.TFloat, ageField.Scalar)
}

func TestParseDataModelDuplicateFieldsAreKept(t *testing.T) {
	// Duplicate-field rejection is a schema-level concern, not a syntax
	// error; the parser must accept and report both occurrences.
	doc, err := ParseDataModel(`
		Ns {
			Thing {
				name : String,
				name : Integer,
			}
		}
	`)
	require.NoError(t, err)
	require.Len(t, doc.Namespaces[0].Entities[0].Fields, 2)
}

func TestParseDataModelSyntaxError(t *testing.T) {
	_, err := ParseDataModel(`Ns { Thing { name String } }`)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
}

func TestParseDataModelFullText(t *testing.T) {
	doc, err := ParseDataModel(`
		Ns {
			Article {
				title : String,
				body : String,
				fulltext(title, body)
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "body"}, doc.Namespaces[0].Entities[0].FullText)
}

func findField(t *testing.T, fields []FieldDecl, name string) FieldDecl {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not found", name)
	return FieldDecl{}
}
