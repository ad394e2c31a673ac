package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind tags a frame's payload encoding, the first byte after the length
// prefix.
type Kind byte

const (
	KindHello Kind = iota + 1
	KindRoomList
	KindCursorSet
	KindEpochDigest
	KindAdvertise
	KindRequest
	KindRow
	KindBatchEnd
	KindPing
	KindBye
)

// maxFrameLen bounds a single frame's payload size (spec.md §4.7
// "bounded by byte size and count"); a peer advertising a frame larger
// than this is treated as a protocol violation rather than an
// unbounded read.
const maxFrameLen = 16 << 20

// WriteFrame writes kind and payload to w as one length-prefixed frame:
// a 4-byte big-endian length (1 + len(payload)) followed by the kind
// byte and payload, mirroring
// bringyour-connect/connect/net_extender_server.go's
// binary.BigEndian.Uint32 header-length framing.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	n := 1 + len(payload)
	if n > maxFrameLen {
		return fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, maxFrameLen)
	}
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(n))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	body := make([]byte, n)
	body[0] = byte(kind)
	copy(body[1:], payload)
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Kind, []byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(header)
	if n == 0 {
		return 0, nil, fmt.Errorf("wire: empty frame")
	}
	if n > maxFrameLen {
		return 0, nil, fmt.Errorf("wire: frame of %d bytes exceeds max %d", n, maxFrameLen)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("wire: read frame body: %w", err)
	}
	return Kind(body[0]), body[1:], nil
}
