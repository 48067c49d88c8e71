package ts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces a deterministic JSON rendering of a value,
// used for trace snapshots, golden-file comparison, and the tick store.
//
// Determinism rules:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping
//  3. Strings NFC normalized at the serialization boundary
//  4. Floats rendered with the shortest round-trippable form
//
// Dict and set values persist their keys as strings; a value that ticks
// through the store therefore comes back with string keys.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case Scalar:
		return marshalScalar(buf, val.V)
	case Tombstone:
		buf.WriteString(`{"__removed__":true}`)
		return nil
	case List:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalCanonical(buf, e); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case Bundle:
		return marshalObject(buf, bundleEntries(val))
	case Dict:
		entries := make(map[string]Value, len(val))
		for k, e := range val {
			entries[keyString(k)] = e
		}
		return marshalObject(buf, entries)
	case DictDelta:
		entries := make(map[string]Value, len(val.Entries))
		for k, e := range val.Entries {
			entries[keyString(k)] = e
		}
		return marshalObject(buf, entries)
	case Set:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, keyString(k))
		}
		slices.Sort(keys)
		buf.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalString(buf, k); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case SetDelta:
		entries := map[string]Value{
			"added":   keyList(val.AddedElems),
			"removed": keyList(val.RemovedElems),
		}
		return marshalObject(buf, entries)
	case Ref:
		buf.WriteString(`{"__ref__":`)
		if err := marshalScalar(buf, fmt.Sprintf("%v", val.Referent)); err != nil {
			return err
		}
		buf.WriteByte('}')
		return nil
	}
	return fmt.Errorf("unsupported time-series value type %T", v)
}

func keyList(keys []Key) List {
	out := make(List, len(keys))
	for i, k := range keys {
		out[i] = Scalar{V: keyString(k)}
	}
	return out
}

func bundleEntries(b Bundle) map[string]Value {
	entries := make(map[string]Value, len(b))
	for k, v := range b {
		entries[k] = v
	}
	return entries
}

func marshalObject(buf *bytes.Buffer, entries map[string]Value) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sortUTF16(keys)
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := marshalCanonical(buf, entries[k]); err != nil {
			return fmt.Errorf("%q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func marshalScalar(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return marshalString(buf, val)
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case float32:
		buf.WriteString(strconv.FormatFloat(float64(val), 'g', -1, 32))
	case EngineTime:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	default:
		return fmt.Errorf("unsupported scalar payload type %T", v)
	}
	return nil
}

// marshalString writes a JSON string with NFC normalization and without
// HTML escaping.
func marshalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	b := tmp.Bytes()
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	buf.Write(b)
	return nil
}

// sortUTF16 sorts keys by UTF-16 code units for stable object ordering.
func sortUTF16(keys []string) {
	slices.SortFunc(keys, func(a, b string) int {
		ua, ub := utf16.Encode([]rune(a)), utf16.Encode([]rune(b))
		for i := 0; i < len(ua) && i < len(ub); i++ {
			if ua[i] != ub[i] {
				if ua[i] < ub[i] {
					return -1
				}
				return 1
			}
		}
		switch {
		case len(ua) < len(ub):
			return -1
		case len(ua) > len(ub):
			return 1
		}
		return 0
	})
}

// keyString renders a dict/set key for persistence and tracing.
func keyString(k Key) string {
	switch v := k.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// UnmarshalCanonical decodes a canonical JSON document back into a value.
// JSON numbers decode to int64 when integral and float64 otherwise; JSON
// objects decode to dicts with string keys; arrays decode to lists. Shape
// information beyond that (bundle vs dict, set vs list) is carried by the
// consuming edge, not by the persisted form.
func UnmarshalCanonical(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode canonical value: %w", err)
	}
	return fromRaw(raw)
}

func fromRaw(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Scalar{V: nil}, nil
	case string:
		return Scalar{V: v}, nil
	case bool:
		return Scalar{V: v}, nil
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return Scalar{V: i}, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("decode number %q: %w", v.String(), err)
		}
		return Scalar{V: f}, nil
	case []any:
		out := make(List, len(v))
		for i, e := range v {
			ev, err := fromRaw(e)
			if err != nil {
				return nil, err
			}
			out[i] = ev
		}
		return out, nil
	case map[string]any:
		out := make(Dict, len(v))
		for k, e := range v {
			ev, err := fromRaw(e)
			if err != nil {
				return nil, err
			}
			out[k] = ev
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported canonical form %T", raw)
}
