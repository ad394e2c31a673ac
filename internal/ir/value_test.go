package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToJSONScalars(t *testing.T) {
	cases := []struct {
		name string
		in   Value
		want any
	}{
		{"null", VNull{}, nil},
		{"int", VInt(5), int64(5)},
		{"float", VFloat(1.5), float64(1.5)},
		{"bool", VBool(true), true},
		{"string", VString("hi"), "hi"},
		{"ref", VRef("row-1"), "row-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToJSON(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestToJSONBase64EncodesOpaqueBytes(t *testing.T) {
	got, err := ToJSON(VBase64([]byte{0x01, 0x02, 0x03}))
	require.NoError(t, err)
	assert.Equal(t, "AQID", got)
}

func TestToJSONEmbedsJSONScalar(t *testing.T) {
	got, err := ToJSON(VJSON{Raw: []byte(`{"a":1}`)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, got)
}

func TestToJSONRefArray(t *testing.T) {
	got, err := ToJSON(VRefArray{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestScalarTypeOf(t *testing.T) {
	ty, ok := ScalarTypeOf(VString("x"))
	assert.True(t, ok)
	assert.Equal(t, TString, ty)

	_, ok = ScalarTypeOf(VRef("x"))
	assert.False(t, ok, "reference values have no scalar type")
}
