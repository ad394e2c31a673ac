package ir

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Value is a sealed interface: only the types below implement it. This
// mirrors the sealed-interface discipline the teacher repo uses for its
// IRValue hierarchy, but is retargeted to the spec's scalar set (spec.md
// §3) plus reference/array-of-reference field values.
type Value interface {
	valueNode()
}

// VNull represents SQL/DSL `null`.
type VNull struct{}

func (VNull) valueNode() {}

// VInt is the Integer scalar.
type VInt int64

func (VInt) valueNode() {}

// VFloat is the Float scalar, encoded bit-exact (see canonical.go).
type VFloat float64

func (VFloat) valueNode() {}

// VBool is the Boolean scalar.
type VBool bool

func (VBool) valueNode() {}

// VString is the String scalar (UTF-8).
type VString string

func (VString) valueNode() {}

// VBase64 is the Base64 scalar: an opaque byte string. Held decoded in
// memory; encoded to/from a base64 string only at the DSL/JSON boundary.
type VBase64 []byte

func (VBase64) valueNode() {}

// VJSON is the Json scalar: an opaque structured value, stored as the
// canonical-minimized text form and queried via the JSON-path grammar.
type VJSON struct {
	Raw json.RawMessage
}

func (VJSON) valueNode() {}

// VRef is a single entity-reference field value: the id of the referent.
type VRef string

func (VRef) valueNode() {}

// VRefArray is an array-of-reference field value: ids of the referents.
type VRefArray []string

func (VRefArray) valueNode() {}

// ToJSON converts a Value to the representation used in host API query
// results (spec.md §6): scalars map to their natural JSON type, Base64
// maps to a base64 string, Json embeds the decoded value, null becomes
// JSON null, refs become their id string (or array of id strings).
func ToJSON(v Value) (any, error) {
	switch val := v.(type) {
	case nil, VNull:
		return nil, nil
	case VInt:
		return int64(val), nil
	case VFloat:
		return float64(val), nil
	case VBool:
		return bool(val), nil
	case VString:
		return string(val), nil
	case VBase64:
		return base64.StdEncoding.EncodeToString(val), nil
	case VJSON:
		var embedded any
		if len(val.Raw) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(val.Raw, &embedded); err != nil {
			return nil, fmt.Errorf("decode json scalar: %w", err)
		}
		return embedded, nil
	case VRef:
		return string(val), nil
	case VRefArray:
		ids := make([]string, len(val))
		copy(ids, val)
		return ids, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// ScalarTypeOf reports the declared ScalarType a Value corresponds to,
// used by the type-checker to verify literal/variable values against a
// field's declared type. Returns (0, false) for reference-kind values.
func ScalarTypeOf(v Value) (ScalarType, bool) {
	switch v.(type) {
	case VInt:
		return TInt, true
	case VFloat:
		return TFloat, true
	case VBool:
		return TBool, true
	case VString:
		return TString, true
	case VBase64:
		return TBase64, true
	case VJSON:
		return TJSON, true
	default:
		return 0, false
	}
}
