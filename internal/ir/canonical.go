package ir

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Canonical encoding tags (spec.md §4.4). One byte precedes every
// scalar/ref value so decode-time layout mistakes fail loudly instead of
// silently misreading bytes.
const (
	tagNull byte = iota
	tagInt
	tagFloat
	tagBool
	tagString
	tagBase64
	tagJSON
	tagRef
	tagRefArray
)

// appendUint32 and appendLenPrefixed are small free-function helpers
// for the big-endian, length-prefixed parts of the layout.

func appendUint32(buf []byte, n uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], n)
	return append(buf, tmp[:]...)
}

func appendLenPrefixed(buf []byte, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// minimalTwosComplement returns the smallest big-endian two's-complement
// byte representation of n (spec.md §4.4: "integers big-endian two's
// complement minimum width"). -1 encodes as a single 0xFF byte, 0 as a
// single 0x00 byte, 256 as {0x01, 0x00}.
func minimalTwosComplement(n int64) []byte {
	if n == 0 {
		return []byte{0x00}
	}

	var full [8]byte
	binary.BigEndian.PutUint64(full[:], uint64(n))

	// Determine the sign-extension byte to strip: 0x00 for positive,
	// 0xFF for negative. Strip leading bytes that are pure sign
	// extension, but always keep at least one byte, and keep one more
	// byte than the minimum if stripping would flip the sign bit.
	signByte := byte(0x00)
	if n < 0 {
		signByte = 0xFF
	}

	i := 0
	for i < 7 && full[i] == signByte && (full[i+1]&0x80) == (signByte&0x80) {
		i++
	}
	return full[i:]
}

// decodeTwosComplement is the inverse of minimalTwosComplement.
func decodeTwosComplement(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 8 {
		return 0, fmt.Errorf("invalid int encoding length %d", len(b))
	}
	signByte := byte(0x00)
	if b[0]&0x80 != 0 {
		signByte = 0xFF
	}
	var full [8]byte
	for i := range full {
		full[i] = signByte
	}
	copy(full[8-len(b):], b)
	return int64(binary.BigEndian.Uint64(full[:])), nil
}

// EncodeValue appends the canonical encoding of v to buf and returns the
// extended slice.
func EncodeValue(buf []byte, v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, VNull:
		return append(buf, tagNull), nil
	case VInt:
		enc := minimalTwosComplement(int64(val))
		buf = append(buf, tagInt, byte(len(enc)))
		return append(buf, enc...), nil
	case VFloat:
		buf = append(buf, tagFloat)
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(float64(val)))
		return append(buf, tmp[:]...), nil
	case VBool:
		b := byte(0)
		if val {
			b = 1
		}
		return append(buf, tagBool, b), nil
	case VString:
		buf = append(buf, tagString)
		return appendLenPrefixed(buf, normalizeString(string(val))), nil
	case VBase64:
		buf = append(buf, tagBase64)
		return appendLenPrefixed(buf, val), nil
	case VJSON:
		canon, err := canonicalizeJSON(val.Raw)
		if err != nil {
			return nil, fmt.Errorf("canonicalize json scalar: %w", err)
		}
		buf = append(buf, tagJSON)
		return appendLenPrefixed(buf, canon), nil
	case VRef:
		buf = append(buf, tagRef)
		return appendLenPrefixed(buf, []byte(val)), nil
	case VRefArray:
		buf = append(buf, tagRefArray)
		buf = appendUint32(buf, uint32(len(val)))
		for _, id := range val {
			buf = appendLenPrefixed(buf, []byte(id))
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("canonical encode: unsupported value type %T", v)
	}
}

// RowFields is the ordered field-name -> Value map a Row carries. It is a
// plain map for ergonomic construction; CanonicalEncoding walks it in the
// entity's declared field order, never map iteration order, so encoding
// is deterministic regardless of Go's randomized map iteration.
type RowFields map[string]Value

// CanonicalEncoding produces the deterministic byte layout described in
// spec.md §4.4 for a row: entity header (entity name, id, room_id, mdate,
// author, deleted flag) followed by each declared field's value in fixed
// declared order.
// Unknown rows (entity not found) are not handled here; callers resolve the
// EntitySpec (schema-version-scoped) before calling this.
func CanonicalEncoding(r *Row, fieldOrder []string) ([]byte, error) {
	buf := make([]byte, 0, 256)
	buf = appendLenPrefixed(buf, []byte(r.EntityName))
	buf = appendLenPrefixed(buf, []byte(r.ID))
	buf = appendLenPrefixed(buf, []byte(r.RoomID))
	buf = append(buf, mustEncodeInt(int64(r.MDate))...)
	buf = appendLenPrefixed(buf, r.Author)

	deletedByte := byte(0)
	if r.Deleted {
		deletedByte = 1
	}
	buf = append(buf, deletedByte)

	for _, name := range fieldOrder {
		v, ok := r.Fields[name]
		if !ok {
			v = VNull{}
		}
		var err error
		buf, err = EncodeValue(buf, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
	}
	return buf, nil
}

func mustEncodeInt(n int64) []byte {
	enc := minimalTwosComplement(n)
	out := make([]byte, 0, len(enc)+2)
	out = append(out, tagInt, byte(len(enc)))
	return append(out, enc...)
}

// canonicalizeJSON re-marshals arbitrary JSON with sorted object keys and
// no insignificant whitespace, giving the Json scalar a single byte-stable
// form regardless of how the original text was formatted.
func canonicalizeJSON(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("null"), nil
	}
	var decoded any
	if err := unmarshalStrict(raw, &decoded); err != nil {
		return nil, err
	}
	return marshalSortedJSON(decoded)
}

// normalizeString puts a String scalar into Unicode NFC before it ever
// reaches the canonical byte layout, so two peers that typed the same
// text through different input methods (precomposed vs. combining-mark
// sequences) sign and compare the same bytes (spec.md §4.4 canonical
// encoding).
func normalizeString(s string) []byte {
	return norm.NFC.Bytes([]byte(s))
}

// sortedKeysOf returns the keys of m in byte-lexicographic order.
func sortedKeysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
