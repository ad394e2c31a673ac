package meshroom

import (
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
)

// paramsToVars converts a caller's bound-variable map (native Go values
// decoded from, e.g., a JSON request body) into the internal/ir.Value
// set internal/mutation, internal/deletion, and internal/queryir.Plan
// bind `$variable` references against. It is the host API boundary's
// inverse of internal/ir.ToJSON, the conversion spec.md §6 describes in
// the other direction for query results.
func paramsToVars(params map[string]any) (map[string]ir.Value, error) {
	out := make(map[string]ir.Value, len(params))
	for name, raw := range params {
		v, err := anyToValue(raw)
		if err != nil {
			return nil, fmt.Errorf("param $%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// anyToValue converts one native Go value into its ir.Value by its
// natural Go type: a []byte becomes a Base64 value, and a string always
// becomes a String value (no base64 decoding happens here). A []any of strings is treated as a ref-array id list, since
// that's the only array shape a DSL's `$variable` ever binds against
// (entity construction uses nested `{...}` blocks, not array literals,
// for anything but ref-array fields — see internal/mutation/flatten.go).
func anyToValue(raw any) (ir.Value, error) {
	switch v := raw.(type) {
	case nil:
		return ir.VNull{}, nil
	case ir.Value:
		return v, nil
	case string:
		return ir.VString(v), nil
	case bool:
		return ir.VBool(v), nil
	case int:
		return ir.VInt(int64(v)), nil
	case int64:
		return ir.VInt(v), nil
	case float64:
		return ir.VFloat(v), nil
	case float32:
		return ir.VFloat(float64(v)), nil
	case []byte:
		return ir.VBase64(v), nil
	case []string:
		ids := make(ir.VRefArray, len(v))
		copy(ids, v)
		return ids, nil
	case []any:
		ids := make(ir.VRefArray, len(v))
		for i, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("array param element %d is not a string id", i)
			}
			ids[i] = s
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("unsupported param type %T", raw)
	}
}
