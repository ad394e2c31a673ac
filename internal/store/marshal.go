package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
)

// fieldColumnType returns the SQLite column type for a declared field,
// generalizing the teacher's "canonical JSON TEXT for storage" approach
// (marshalArgs/marshalResult) from one opaque JSON blob per row to a
// typed column per scalar field: Json fields still store their minimized
// text form, but Integer/Float/Boolean/String/Base64/ref fields get
// native SQLite column affinities so plain (non-JSON-path) filters and
// orderings use SQLite's own comparison and index machinery.
func fieldColumnType(f ir.FieldSpec) string {
	switch f.Kind {
	case ir.KindRef:
		return "TEXT"
	case ir.KindRefArray:
		return "TEXT" // JSON array of ids
	}
	switch f.Scalar {
	case ir.TInt:
		return "INTEGER"
	case ir.TFloat:
		return "REAL"
	case ir.TBool:
		return "INTEGER"
	case ir.TBase64:
		return "BLOB"
	case ir.TJSON:
		return "TEXT"
	default:
		return "TEXT"
	}
}

// valueToColumn converts a field's Value into the driver value written
// to its SQLite column. The inverse of rawColumnToValue (write.go).
func valueToColumn(v ir.Value) (any, error) {
	switch val := v.(type) {
	case nil, ir.VNull:
		return nil, nil
	case ir.VInt:
		return int64(val), nil
	case ir.VFloat:
		return float64(val), nil
	case ir.VBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.VString:
		return string(val), nil
	case ir.VBase64:
		return []byte(val), nil
	case ir.VJSON:
		if len(val.Raw) == 0 {
			return "null", nil
		}
		return string(val.Raw), nil
	case ir.VRef:
		return string(val), nil
	case ir.VRefArray:
		ids := make([]string, len(val))
		copy(ids, val)
		encoded, err := json.Marshal(ids)
		if err != nil {
			return nil, fmt.Errorf("marshal ref array: %w", err)
		}
		return string(encoded), nil
	default:
		return nil, fmt.Errorf("value to column: unsupported type %T", v)
	}
}

// columnToResultValue converts a raw scanned SQLite column value into the
// JSON-native shape the host API returns from queries (spec.md §6:
// "scalar types map to JSON types, Base64 to base64 strings, Json to the
// embedded value"). field describes the declared field the column holds;
// nil is returned for a NULL column regardless of field type.
func columnToResultValue(raw any, field ir.FieldSpec) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch field.Kind {
	case ir.KindRef:
		return asString(raw), nil
	case ir.KindRefArray:
		var ids []string
		if err := json.Unmarshal(asBytes(raw), &ids); err != nil {
			return nil, fmt.Errorf("decode ref array column: %w", err)
		}
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out, nil
	}
	switch field.Scalar {
	case ir.TInt:
		return asInt64(raw), nil
	case ir.TFloat:
		return asFloat64(raw), nil
	case ir.TBool:
		return asInt64(raw) != 0, nil
	case ir.TString:
		return asString(raw), nil
	case ir.TBase64:
		return base64.StdEncoding.EncodeToString(asBytes(raw)), nil
	case ir.TJSON:
		var embedded any
		if err := json.Unmarshal(asBytes(raw), &embedded); err != nil {
			return nil, fmt.Errorf("decode json column: %w", err)
		}
		return embedded, nil
	default:
		return raw, nil
	}
}

// systemColumnToResultValue converts one of the row-model columns (not
// part of an entity's declared fields) into its JSON-native form.
func systemColumnToResultValue(name string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch name {
	case "id", "room_id":
		return asString(raw), nil
	case "mdate", "schema_version":
		return asInt64(raw), nil
	case "author", "signature":
		return base64.StdEncoding.EncodeToString(asBytes(raw)), nil
	case "deleted":
		return asInt64(raw) != 0, nil
	default:
		return raw, nil
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func asBytes(v any) []byte {
	switch x := v.(type) {
	case []byte:
		return x
	case string:
		return []byte(x)
	default:
		return nil
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}
