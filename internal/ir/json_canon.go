package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// unmarshalStrict decodes JSON using json.Number so integers and decimals
// in a Json-scalar value survive round-tripping without float64 rounding.
func unmarshalStrict(raw []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// marshalSortedJSON re-serializes a decoded JSON value (produced by
// unmarshalStrict) with object keys sorted and HTML escaping disabled, so
// the same logical document always produces the same bytes.
func marshalSortedJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeSortedJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSortedJSON(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(val))
		return nil
	case string:
		return writeJSONString(buf, string(normalizeString(val)))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeSortedJSON(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		buf.WriteByte('{')
		keys := sortedKeysOf(val)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSONString(buf, string(normalizeString(k))); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeSortedJSON(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("unsupported json value type %T", v)
	}
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	// json.Encoder always appends a trailing newline and writes straight
	// into its target, so encode into a scratch buffer first and trim it.
	var scratch bytes.Buffer
	enc := json.NewEncoder(&scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	out := scratch.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	buf.Write(out)
	return nil
}
