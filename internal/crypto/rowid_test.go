package crypto

import (
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRowIDIsValidULID(t *testing.T) {
	id := NewRowID()
	_, err := ulid.ParseStrict(id)
	require.NoError(t, err)
}

func TestNewRowIDIsLexicographicallyIncreasing(t *testing.T) {
	a := NewRowID()
	b := NewRowID()
	assert.True(t, a < b || a == b, "successive ids must not go backwards")
}

func TestNewRowIDIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewRowID()
		assert.False(t, seen[id], "duplicate row id %q", id)
		seen[id] = true
	}
}
