package schema

import (
	"testing"

	"github.com/roach88/meshroom/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryApplyBasic(t *testing.T) {
	reg := New()
	err := reg.Apply(`
		chat {
			Person {
				name : String,
				age : Integer nullable,
			}
			Message {
				body : String,
				sender : chat.Person,
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.SchemaVersion(1), reg.Version())

	person, ok := reg.Resolve("chat.Person")
	require.True(t, ok)
	nameField, ok := person.FieldByName("name")
	require.True(t, ok)
	assert.Equal(t, ir.TString, nameField.Scalar)

	msg, ok := reg.Resolve("chat.Message")
	require.True(t, ok)
	senderField, ok := msg.FieldByName("sender")
	require.True(t, ok)
	assert.Equal(t, ir.KindRef, senderField.Kind)
	assert.Equal(t, "chat.Person", senderField.RefEntity)
}

func TestRegistryApplyForwardReference(t *testing.T) {
	reg := New()
	err := reg.Apply(`
		chat {
			Message {
				body : String,
				sender : chat.Person,
			}
			Person {
				name : String,
			}
		}
	`)
	require.NoError(t, err)
}

func TestRegistryApplyDanglingReference(t *testing.T) {
	reg := New()
	err := reg.Apply(`
		chat {
			Message {
				body : String,
				sender : chat.Ghost,
			}
		}
	`)
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrDanglingReference, se.Code)
}

func TestRegistryApplyEvolutionAddsNullableField(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Apply(`
		chat {
			Person {
				name : String,
			}
		}
	`))
	err := reg.Apply(`
		chat {
			Person {
				name : String,
				age : Integer nullable,
			}
		}
	`)
	require.NoError(t, err)
	assert.Equal(t, ir.SchemaVersion(2), reg.Version())

	person, _ := reg.Resolve("chat.Person")
	assert.Len(t, person.Fields, 2)
}

func TestRegistryApplyRejectsFieldTypeChange(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Apply(`
		chat {
			Person {
				age : Integer,
			}
		}
	`))
	err := reg.Apply(`
		chat {
			Person {
				age : Float,
			}
		}
	`)
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrFieldTypeChanged, se.Code)
}

func TestRegistryApplyRejectsMissingEntity(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Apply(`
		chat {
			Person {
				name : String,
			}
			Message {
				body : String,
			}
		}
	`))
	err := reg.Apply(`
		chat {
			Person {
				name : String,
			}
		}
	`)
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrMissingEntity, se.Code)
}

func TestRegistryApplyRejectsNewRequiredFieldWithoutDefault(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Apply(`
		chat {
			Person {
				name : String,
			}
		}
	`))
	err := reg.Apply(`
		chat {
			Person {
				name : String,
				rank : Integer,
			}
		}
	`)
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrMissingDefaultValue, se.Code)
}

func TestRegistryApplyAllowsRequiredToNullable(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Apply(`
		chat {
			Person {
				name : String,
			}
		}
	`))
	err := reg.Apply(`
		chat {
			Person {
				name : String nullable,
			}
		}
	`)
	require.NoError(t, err)
}

func TestRegistryApplyReservedFieldName(t *testing.T) {
	reg := New()
	err := reg.Apply(`
		chat {
			Person {
				id : String,
			}
		}
	`)
	require.Error(t, err)
	se, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, ErrReservedFieldName, se.Code)
}
