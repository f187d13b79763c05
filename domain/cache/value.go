package cache

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ValueKind discriminates the variants of a Value.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindMap
	KindSequence
)

// Value is a small tagged union over the types an attribute bag may carry.
// Attribute mapping is schema-free: sources pass their natural fields
// through without the cache interpreting them, and values survive a
// round trip through JSON or DynamoDB marshaling.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	m    map[string]Value
	seq  []Value
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String wraps a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number wraps a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool wraps a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Map wraps a nested attribute mapping.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Sequence wraps an ordered list of values.
func Sequence(vs ...Value) Value { return Value{kind: KindSequence, seq: vs} }

// Strings wraps a list of strings as a sequence value.
func Strings(ss ...string) Value {
	seq := make([]Value, len(ss))
	for i, s := range ss {
		seq[i] = String(s)
	}
	return Value{kind: KindSequence, seq: seq}
}

// Kind returns the variant this value holds.
func (v Value) Kind() ValueKind { return v.kind }

// AsString returns the string variant, reporting whether the value holds one.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric variant, reporting whether the value holds one.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean variant, reporting whether the value holds one.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsMap returns the nested mapping variant, reporting whether the value holds one.
func (v Value) AsMap() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// AsSequence returns the sequence variant, reporting whether the value holds one.
func (v Value) AsSequence() ([]Value, bool) { return v.seq, v.kind == KindSequence }

// AsStrings flattens a sequence of string values. Non-string elements are
// skipped.
func (v Value) AsStrings() []string {
	if v.kind != KindSequence {
		return nil
	}
	out := make([]string, 0, len(v.seq))
	for _, el := range v.seq {
		if s, ok := el.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

// Interface unwraps the value into plain Go types (string, float64, bool,
// map[string]any, []any, nil) for marshaling.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, el := range v.m {
			out[k] = el.Interface()
		}
		return out
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, el := range v.seq {
			out[i] = el.Interface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface converts plain Go types into a Value. Integer types are
// widened to float64, matching JSON number semantics.
func FromInterface(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
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
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("non-numeric json.Number %q", t)
		}
		return Number(f), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, el := range t {
			v, err := FromInterface(el)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	case []any:
		seq := make([]Value, len(t))
		for i, el := range t {
			v, err := FromInterface(el)
			if err != nil {
				return Value{}, err
			}
			seq[i] = v
		}
		return Sequence(seq...), nil
	default:
		return Value{}, fmt.Errorf("unsupported attribute type %T", x)
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Clone returns a deep copy of the value.
func (v Value) Clone() Value {
	switch v.kind {
	case KindMap:
		m := make(map[string]Value, len(v.m))
		for k, el := range v.m {
			m[k] = el.Clone()
		}
		return Value{kind: KindMap, m: m}
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i, el := range v.seq {
			seq[i] = el.Clone()
		}
		return Value{kind: KindSequence, seq: seq}
	default:
		return v
	}
}

// Attributes is the schema-free attribute bag of a cache entity.
type Attributes map[string]Value

// AttributesFrom converts a plain map into an attribute bag.
func AttributesFrom(raw map[string]any) (Attributes, error) {
	attrs := make(Attributes, len(raw))
	for k, el := range raw {
		v, err := FromInterface(el)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// Interface unwraps the bag into plain Go types for marshaling.
func (a Attributes) Interface() map[string]any {
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = v.Interface()
	}
	return out
}

// Clone returns a deep copy of the bag.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
