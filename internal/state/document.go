package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Value is one node of the untyped JSON-like state tree.
// Values handed out by the store are never mutated in place; merges copy the path they touch.
type Value struct {
	kind Kind
	b    bool
	num  json.Number // numbers keep their JSON text so re-encoding is exact
	str  string
	seq  []Value
	m    map[string]Value
}

// constructors
func Null() Value { return Value{} }
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }
func Number(n json.Number) Value { return Value{kind: KindNumber, num: n} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Sequence(items ...Value) Value { return Value{kind: KindSequence, seq: items} }

// Int is a convenience constructor for integral numbers
func Int(i int64) Value { return Number(json.Number(strconv.FormatInt(i, 10))) }

// Mapping builds a mapping value; a nil map produces an empty mapping
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = make(map[string]Value)
	}
	return Value{kind: KindMapping, m: m}
}

// EmptyDocument returns the canonical empty state document
func EmptyDocument() Value { return Mapping(nil) }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) IsMapping() bool { return v.kind == KindMapping }
func (v Value) IsSequence() bool { return v.kind == KindSequence }
func (v Value) StringValue() string { return v.str }

// Len reports the number of entries of a mapping or sequence, zero otherwise
func (v Value) Len() int {
	switch v.kind {
	case KindMapping:
		return len(v.m)
	case KindSequence:
		return len(v.seq)
	default:
		return 0
	}
}

// Get looks up key in a mapping. Non-mappings never contain keys.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Keys returns the sorted keys of a mapping
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truthy mirrors the loose presence checks the liveness heuristic relies on:
// null, false, "", and zero are falsy; every mapping and sequence is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindString:
		return v.str != ""
	case KindNumber:
		f, err := v.num.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

// Clone returns a deep copy that shares no maps or slices with v
func (v Value) Clone() Value {
	switch v.kind {
	case KindMapping:
		m := make(map[string]Value, len(v.m))
		for k, child := range v.m {
			m[k] = child.Clone()
		}
		return Value{kind: KindMapping, m: m}
	case KindSequence:
		seq := make([]Value, len(v.seq))
		for i, child := range v.seq {
			seq[i] = child.Clone()
		}
		return Value{kind: KindSequence, seq: seq}
	default:
		return v
	}
}

// Equal reports deep structural equality
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.num == other.num
	case KindString:
		return v.str == other.str
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, child := range v.m {
			o, ok := other.m[k]
			if !ok || !child.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON encodes the value with mapping keys in sorted order
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if v.num == "" {
			buf.WriteString("0")
		} else {
			buf.WriteString(string(v.num))
		}
	case KindString:
		enc, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case KindSequence:
		buf.WriteByte('[')
		for i, child := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := child.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("state: cannot encode value of kind %d", v.kind)
	}
	return nil
}

// UnmarshalJSON decodes any JSON document into the tagged variant
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseJSON decodes raw JSON, keeping numbers as their literal text
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("state: parse json: %w", err)
	}
	if dec.More() {
		return Value{}, fmt.Errorf("state: parse json: trailing data after document")
	}
	return FromAny(raw)
}

// FromAny converts the output of encoding/json (with UseNumber) or plain Go values into a Value
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(json.Number(strconv.FormatFloat(t, 'f', -1, 64))), nil
	case int:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case []any:
		seq := make([]Value, len(t))
		for i, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			seq[i] = child
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			child, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = child
		}
		return Value{kind: KindMapping, m: m}, nil
	default:
		return Value{}, fmt.Errorf("state: unsupported value type %T", raw)
	}
}

// MustParseJSON is ParseJSON for literals known to be valid
func MustParseJSON(s string) Value {
	v, err := ParseJSON([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}
