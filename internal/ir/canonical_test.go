package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRow() *Row {
	return &Row{
		ID:         "01HXYZ",
		RoomID:     "room-1",
		EntityName: "chat.Message",
		MDate:      1700000000000,
		Author:     []byte("author-pubkey-32-bytes-padded!!"),
		Fields: RowFields{
			"content": VString("hi"),
			"likes":   VInt(3),
			"ratio":   VFloat(0.5),
			"pinned":  VBool(false),
		},
	}
}

func TestCanonicalEncodingDeterministic(t *testing.T) {
	order := []string{"content", "likes", "ratio", "pinned"}
	r := sampleRow()

	enc1, err := CanonicalEncoding(r, order)
	require.NoError(t, err)
	enc2, err := CanonicalEncoding(r, order)
	require.NoError(t, err)

	assert.Equal(t, enc1, enc2, "canonical encoding must be deterministic across calls")
}

func TestCanonicalEncodingChangesWithFieldValue(t *testing.T) {
	order := []string{"content", "likes", "ratio", "pinned"}
	r1 := sampleRow()
	r2 := sampleRow()
	r2.Fields["content"] = VString("bye")

	enc1, err := CanonicalEncoding(r1, order)
	require.NoError(t, err)
	enc2, err := CanonicalEncoding(r2, order)
	require.NoError(t, err)

	assert.NotEqual(t, enc1, enc2)
}

func TestCanonicalEncodingMissingFieldEncodesNull(t *testing.T) {
	order := []string{"content", "likes", "ratio", "pinned", "missing_field"}
	r := sampleRow()

	enc, err := CanonicalEncoding(r, order)
	require.NoError(t, err)
	assert.Equal(t, byte(tagNull), enc[len(enc)-1], "trailing unset field must encode as the null tag")
}

func TestMinimalTwosComplementRoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 127, 128, -128, -129, 1700000000000, -1700000000000}
	for _, n := range cases {
		enc := minimalTwosComplement(n)
		got, err := decodeTwosComplement(enc)
		require.NoError(t, err)
		assert.Equal(t, n, got, "round trip for %d", n)
	}
}

func TestCanonicalEncodingJSONScalarIgnoresFormatting(t *testing.T) {
	order := []string{"meta"}
	r1 := &Row{ID: "a", RoomID: "r", EntityName: "x.Y", Fields: RowFields{
		"meta": VJSON{Raw: []byte(`{"b":2,"a":1}`)},
	}}
	r2 := &Row{ID: "a", RoomID: "r", EntityName: "x.Y", Fields: RowFields{
		"meta": VJSON{Raw: []byte(`{"a": 1, "b": 2}`)},
	}}

	enc1, err := CanonicalEncoding(r1, order)
	require.NoError(t, err)
	enc2, err := CanonicalEncoding(r2, order)
	require.NoError(t, err)

	assert.Equal(t, enc1, enc2, "differently-formatted but equal JSON must canonicalize identically")
}
