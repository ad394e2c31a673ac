package sync

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/roach88/meshroom/internal/ir"
)

// encodeFields renders fields as a wire.Row's FieldsJSON: a bare JSON
// value for Int/Float/Bool/String/Json fields, a base64 string for
// Base64 fields, the id string for a ref field, and a JSON array of ids
// for a ref-array field, mirroring how internal/store's valueToColumn/
// rawColumnToValue pick a representation per ir.FieldKind/ir.ScalarType.
func encodeFields(spec *ir.EntitySpec, fields ir.RowFields) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(spec.Fields))
	for _, f := range spec.Fields {
		v, ok := fields[f.Name]
		if !ok {
			continue
		}
		raw, err := encodeFieldValue(f, v)
		if err != nil {
			return nil, fmt.Errorf("sync: encode field %q: %w", f.Name, err)
		}
		out[f.Name] = raw
	}
	return json.Marshal(out)
}

func encodeFieldValue(f ir.FieldSpec, v ir.Value) (json.RawMessage, error) {
	if _, isNull := v.(ir.VNull); isNull {
		return json.Marshal(nil)
	}
	switch f.Kind {
	case ir.KindRef:
		ref, ok := v.(ir.VRef)
		if !ok {
			return nil, fmt.Errorf("expected ref value, got %T", v)
		}
		return json.Marshal(string(ref))
	case ir.KindRefArray:
		refs, ok := v.(ir.VRefArray)
		if !ok {
			return nil, fmt.Errorf("expected ref array value, got %T", v)
		}
		return json.Marshal([]string(refs))
	}
	switch f.Scalar {
	case ir.TInt:
		vv, ok := v.(ir.VInt)
		if !ok {
			return nil, fmt.Errorf("expected int value, got %T", v)
		}
		return json.Marshal(int64(vv))
	case ir.TFloat:
		vv, ok := v.(ir.VFloat)
		if !ok {
			return nil, fmt.Errorf("expected float value, got %T", v)
		}
		return json.Marshal(float64(vv))
	case ir.TBool:
		vv, ok := v.(ir.VBool)
		if !ok {
			return nil, fmt.Errorf("expected bool value, got %T", v)
		}
		return json.Marshal(bool(vv))
	case ir.TString:
		vv, ok := v.(ir.VString)
		if !ok {
			return nil, fmt.Errorf("expected string value, got %T", v)
		}
		return json.Marshal(string(vv))
	case ir.TBase64:
		vv, ok := v.(ir.VBase64)
		if !ok {
			return nil, fmt.Errorf("expected base64 value, got %T", v)
		}
		return json.Marshal(base64.StdEncoding.EncodeToString(vv))
	case ir.TJSON:
		vv, ok := v.(ir.VJSON)
		if !ok {
			return nil, fmt.Errorf("expected json value, got %T", v)
		}
		if len(vv.Raw) == 0 {
			return json.Marshal(nil)
		}
		return json.RawMessage(vv.Raw), nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %v", f.Scalar)
	}
}

// decodeFields is encodeFields' inverse, reconstructing ir.RowFields
// from a wire.Row's FieldsJSON against the receiving peer's own
// resolved entity spec (which must agree with the sender's, since both
// sides provisioned the same application schema document).
func decodeFields(spec *ir.EntitySpec, fieldsJSON []byte) (ir.RowFields, error) {
	var raw map[string]json.RawMessage
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &raw); err != nil {
			return nil, fmt.Errorf("sync: decode fields: %w", err)
		}
	}

	out := make(ir.RowFields, len(spec.Fields))
	for _, f := range spec.Fields {
		r, ok := raw[f.Name]
		if !ok || string(r) == "null" {
			out[f.Name] = ir.VNull{}
			continue
		}
		v, err := decodeFieldValue(f, r)
		if err != nil {
			return nil, fmt.Errorf("sync: decode field %q: %w", f.Name, err)
		}
		out[f.Name] = v
	}
	return out, nil
}

func decodeFieldValue(f ir.FieldSpec, raw json.RawMessage) (ir.Value, error) {
	switch f.Kind {
	case ir.KindRef:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return ir.VRef(s), nil
	case ir.KindRefArray:
		var ids []string
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, err
		}
		return ir.VRefArray(ids), nil
	}
	switch f.Scalar {
	case ir.TInt:
		var n int64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return ir.VInt(n), nil
	case ir.TFloat:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, err
		}
		return ir.VFloat(n), nil
	case ir.TBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, err
		}
		return ir.VBool(b), nil
	case ir.TString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return ir.VString(s), nil
	case ir.TBase64:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("decode base64 field: %w", err)
		}
		return ir.VBase64(b), nil
	case ir.TJSON:
		return ir.VJSON{Raw: append(json.RawMessage{}, raw...)}, nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %v", f.Scalar)
	}
}

func fieldOrderOf(spec *ir.EntitySpec) []string {
	order := make([]string, len(spec.Fields))
	for i, f := range spec.Fields {
		order[i] = f.Name
	}
	return order
}
