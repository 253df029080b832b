package session

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumber
	KindBool
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a closed variant: string, number, bool or a nested Values map.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	m    Values
}

// Values is the open key/value context carried by a session.
type Values map[string]Value

func String(s string) Value  { return Value{kind: KindString, str: s} }
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Map(m Values) Value     { return Value{kind: KindMap, m: m.Clone()} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsZero() bool { return v.kind == KindInvalid }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func (v Value) AsMap() (Values, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m.Clone(), true
}

// Text renders the value for prompts and logs.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return fmt.Sprintf("%g", v.num)
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindMap:
		keys := v.m.Keys()
		out := "{"
		for i, k := range keys {
			if i > 0 {
				out += ", "
			}
			out += k + ": " + v.m[k].Text()
		}
		return out + "}"
	default:
		return ""
	}
}

// Interface converts the value to plain Go data (string, float64, bool, map[string]any).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		return v.m.Interface()
	default:
		return nil
	}
}

// FromAny converts decoded JSON/YAML data into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case Value:
		return t, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("invalid number %q: %w", t.String(), err)
		}
		return Number(n), nil
	case map[string]any:
		vals, err := ValuesFromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindMap, m: vals}, nil
	case Values:
		return Map(t), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// ValuesFromMap converts a decoded JSON object into Values.
func ValuesFromMap(raw map[string]any) (Values, error) {
	out := make(Values, len(raw))
	for k, item := range raw {
		v, err := FromAny(item)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*v = Value{}
		return nil
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Clone deep-copies the map.
func (vs Values) Clone() Values {
	if vs == nil {
		return nil
	}
	out := make(Values, len(vs))
	for k, v := range vs {
		if v.kind == KindMap {
			v.m = v.m.Clone()
		}
		out[k] = v
	}
	return out
}

// Merge shallow-merges updates into vs; later keys win.
func (vs Values) Merge(updates Values) {
	for k, v := range updates {
		if v.kind == KindMap {
			v.m = v.m.Clone()
		}
		vs[k] = v
	}
}

func (vs Values) Keys() []string {
	keys := make([]string, 0, len(vs))
	for k := range vs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (vs Values) Interface() map[string]any {
	out := make(map[string]any, len(vs))
	for k, v := range vs {
		out[k] = v.Interface()
	}
	return out
}

// StringValue returns the string stored under key, if any.
func (vs Values) StringValue(key string) (string, bool) {
	v, ok := vs[key]
	if !ok {
		return "", false
	}
	return v.AsString()
}
