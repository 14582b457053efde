package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
)

// MetaKind identifies which member of the MetaValue union is set.
type MetaKind uint8

const (
	MetaNull MetaKind = iota
	MetaString
	MetaNumber
	MetaBool
	MetaList
	MetaObject
)

// MetaValue is a JSON-like value: null, string, number, bool, list or object.
// The zero value is null.
type MetaValue struct {
	kind MetaKind
	str  string
	num  float64
	b    bool
	list []MetaValue
	obj  map[string]MetaValue
}

func StringValue(s string) MetaValue  { return MetaValue{kind: MetaString, str: s} }
func NumberValue(f float64) MetaValue { return MetaValue{kind: MetaNumber, num: f} }
func BoolValue(b bool) MetaValue      { return MetaValue{kind: MetaBool, b: b} }
func ListValue(items ...MetaValue) MetaValue {
	return MetaValue{kind: MetaList, list: items}
}
func ObjectValue(fields map[string]MetaValue) MetaValue {
	return MetaValue{kind: MetaObject, obj: fields}
}

// Kind returns the union member held by v.
func (v MetaValue) Kind() MetaKind { return v.kind }

// Str returns the string member and whether v holds a string.
func (v MetaValue) Str() (string, bool) { return v.str, v.kind == MetaString }

// Number returns the number member and whether v holds a number.
func (v MetaValue) Number() (float64, bool) { return v.num, v.kind == MetaNumber }

// Bool returns the bool member and whether v holds a bool.
func (v MetaValue) Bool() (bool, bool) { return v.b, v.kind == MetaBool }

// List returns the list member.
func (v MetaValue) List() []MetaValue { return v.list }

// Object returns the object member.
func (v MetaValue) Object() map[string]MetaValue { return v.obj }

// Native converts v to plain Go values (string, float64, bool, []any,
// map[string]any or nil).
func (v MetaValue) Native() any {
	switch v.kind {
	case MetaString:
		return v.str
	case MetaNumber:
		return v.num
	case MetaBool:
		return v.b
	case MetaList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Native()
		}
		return out
	case MetaObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler.
func (v MetaValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case MetaString:
		return json.Marshal(v.str)
	case MetaNumber:
		return json.Marshal(v.num)
	case MetaBool:
		return json.Marshal(v.b)
	case MetaList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case MetaObject:
		if v.obj == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.obj)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *MetaValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	parsed, err := metaFromNative(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func metaFromNative(raw any) (MetaValue, error) {
	switch x := raw.(type) {
	case nil:
		return MetaValue{}, nil
	case string:
		return StringValue(x), nil
	case bool:
		return BoolValue(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return MetaValue{}, fmt.Errorf("metadata number %q: %w", x, err)
		}
		return NumberValue(f), nil
	case float64:
		return NumberValue(x), nil
	case []any:
		items := make([]MetaValue, 0, len(x))
		for _, item := range x {
			mv, err := metaFromNative(item)
			if err != nil {
				return MetaValue{}, err
			}
			items = append(items, mv)
		}
		return ListValue(items...), nil
	case map[string]any:
		fields := make(map[string]MetaValue, len(x))
		for k, item := range x {
			mv, err := metaFromNative(item)
			if err != nil {
				return MetaValue{}, err
			}
			fields[k] = mv
		}
		return ObjectValue(fields), nil
	default:
		return MetaValue{}, fmt.Errorf("unsupported metadata value of type %T", raw)
	}
}

// Metadata is free-form key/value data attached to transactions and alerts.
type Metadata map[string]MetaValue

// Native converts the metadata to a map of plain Go values.
func (m Metadata) Native() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v.Native()
	}
	return out
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return Metadata{}
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the metadata keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Value implements driver.Valuer; metadata is stored as JSON text.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var data []byte
	switch x := src.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case string:
		data = []byte(x)
	case []byte:
		data = x
	default:
		return fmt.Errorf("cannot scan %T into Metadata", src)
	}
	if len(data) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	*m = out
	return nil
}
