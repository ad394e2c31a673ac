package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloRoundTrip(t *testing.T) {
	want := &Hello{ProtocolVersion: 3, AppKeyHash: []byte{1, 2, 3, 4}, RoomsDigest: []byte{5, 6, 7, 8}}
	got, err := UnmarshalHello(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoomListRoundTrip(t *testing.T) {
	want := &RoomList{RoomIDs: []string{"room-a", "room-b", "room-c"}}
	got, err := UnmarshalRoomList(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRoomListRoundTripEmpty(t *testing.T) {
	want := &RoomList{}
	got, err := UnmarshalRoomList(want.Marshal())
	require.NoError(t, err)
	assert.Empty(t, got.RoomIDs)
}

func TestCursorSetRoundTrip(t *testing.T) {
	want := &CursorSet{
		RoomID: "room-1",
		Cursors: []AuthorCursor{
			{Author: []byte{0xAA, 0xBB}, MDate: 1000, ID: "row-1"},
			{Author: []byte{0xCC, 0xDD}, MDate: 2000, ID: "row-2"},
		},
	}
	got, err := UnmarshalCursorSet(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEpochDigestRoundTrip(t *testing.T) {
	want := &EpochDigest{RoomID: "room-1", Digest: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	got, err := UnmarshalEpochDigest(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAdvertiseRoundTrip(t *testing.T) {
	want := &Advertise{
		RoomID: "room-1",
		Author: []byte{0xAA, 0xBB, 0xCC},
		Entity: "chat.Message",
		Items: []AdvertiseItem{
			{ID: "row-1", Digest: []byte{1}, MDate: 10},
			{ID: "row-2", Digest: []byte{2}, MDate: 20},
		},
	}
	got, err := UnmarshalAdvertise(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRequestRoundTrip(t *testing.T) {
	want := &Request{RoomID: "room-1", Entity: "chat.Message", IDs: []string{"row-1", "row-2", "row-3"}}
	got, err := UnmarshalRequest(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRowRoundTrip(t *testing.T) {
	want := &Row{
		ID:            "row-1",
		RoomID:        "room-1",
		EntityName:    "chat.Message",
		MDate:         1234,
		Author:        []byte{1, 2, 3},
		Signature:     []byte{4, 5, 6, 7},
		SchemaVersion: 2,
		Deleted:       true,
		FieldsJSON:    []byte(`{"body":"hello"}`),
	}
	got, err := UnmarshalRow(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRowRoundTripNotDeleted(t *testing.T) {
	want := &Row{ID: "row-1", RoomID: "room-1", EntityName: "chat.Message", FieldsJSON: []byte(`{}`)}
	got, err := UnmarshalRow(want.Marshal())
	require.NoError(t, err)
	assert.False(t, got.Deleted)
}

func TestBatchEndRoundTrip(t *testing.T) {
	want := &BatchEnd{RoomID: "room-1", Entity: "chat.Message", Count: 42}
	got, err := UnmarshalBatchEnd(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPingRoundTrip(t *testing.T) {
	want := &Ping{TimestampMillis: 1700000000000}
	got, err := UnmarshalPing(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestByeRoundTrip(t *testing.T) {
	want := &Bye{Reason: "shutting down"}
	got, err := UnmarshalBye(want.Marshal())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := (&Ping{TimestampMillis: 99}).Marshal()
	require.NoError(t, WriteFrame(&buf, KindPing, payload))

	kind, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindPing, kind)

	ping, err := UnmarshalPing(got)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), ping.TimestampMillis)
}

func TestWriteFrameRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, KindRow, make([]byte, maxFrameLen+1))
	assert.Error(t, err)
}

func TestReadFrameRejectsEmptyFrame(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0, 0, 0, 0}
	buf.Write(header)
	_, _, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindHello, (&Hello{ProtocolVersion: 1}).Marshal()))
	require.NoError(t, WriteFrame(&buf, KindBye, (&Bye{Reason: "done"}).Marshal()))

	kind1, p1, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindHello, kind1)
	hello, err := UnmarshalHello(p1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), hello.ProtocolVersion)

	kind2, p2, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindBye, kind2)
	bye, err := UnmarshalBye(p2)
	require.NoError(t, err)
	assert.Equal(t, "done", bye.Reason)
}
