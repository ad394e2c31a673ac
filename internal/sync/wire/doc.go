// Package wire implements the on-stream framing and message encodings
// for spec.md §4.7's synchronization protocol: Hello, RoomList, Cursor,
// EpochDigest, Advertise, Request, Row, BatchEnd, Ping, and Bye frames.
//
// Frames are length-prefixed the way
// bringyour-connect/connect/net_extender_server.go prefixes its protobuf
// header bytes (a 4-byte big-endian length followed by the payload).
// Each frame's payload is one kind byte followed by a hand-written
// protobuf wire-format encoding (google.golang.org/protobuf/encoding/
// protowire) of that frame's fields, in the same spirit as
// bringyour-connect/connect/frame.go's MessageType-tagged envelope —
// but written directly against protowire's low-level
// varint/length-delimited primitives rather than against
// protoc-generated message types, since this module has no .proto
// sources to generate from.
package wire
