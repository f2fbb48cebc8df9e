// Package document wraps decoded JSON bundles in a tree value whose accessors
// never fail: a missing key, an out of range index or a type mismatch all
// resolve to an absent Value.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Kind int

const (
	Absent Kind = iota
	Null
	Object
	Array
	String
	Number
	Bool
)

func (k Kind) String() string {
	switch k {
	case Absent:
		return "absent"
	case Null:
		return "null"
	case Object:
		return "object"
	case Array:
		return "array"
	case String:
		return "string"
	case Number:
		return "number"
	case Bool:
		return "bool"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable view of one node of a decoded JSON document.
type Value struct {
	v   interface{}
	set bool
}

// Parse decodes a single JSON document. Numbers are kept as json.Number so
// their text survives unchanged.
func Parse(raw []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return Value{}, err
	}
	if dec.More() {
		return Value{}, fmt.Errorf("trailing data after document")
	}
	return Value{v: v, set: true}, nil
}

// Of wraps an already decoded value (map[string]interface{}, []interface{},
// string, json.Number, float64, bool or nil).
func Of(v interface{}) Value {
	return Value{v: v, set: true}
}

func (v Value) Kind() Kind {
	if !v.set {
		return Absent
	}
	switch v.v.(type) {
	case nil:
		return Null
	case map[string]interface{}:
		return Object
	case []interface{}:
		return Array
	case string:
		return String
	case json.Number, float64, float32, int, int64:
		return Number
	case bool:
		return Bool
	default:
		return Absent
	}
}

// Present reports whether the value exists and is not null.
func (v Value) Present() bool {
	k := v.Kind()
	return k != Absent && k != Null
}

func (v Value) IsArray() bool  { return v.Kind() == Array }
func (v Value) IsObject() bool { return v.Kind() == Object }

// Get returns the named field of an object.
func (v Value) Get(key string) Value {
	m, ok := v.v.(map[string]interface{})
	if !ok || !v.set {
		return Value{}
	}
	f, ok := m[key]
	if !ok {
		return Value{}
	}
	return Value{v: f, set: true}
}

// At returns the i-th element of an array.
func (v Value) At(i int) Value {
	a, ok := v.v.([]interface{})
	if !ok || !v.set || i < 0 || i >= len(a) {
		return Value{}
	}
	return Value{v: a[i], set: true}
}

// Len is the number of elements of an array, zero otherwise.
func (v Value) Len() int {
	a, ok := v.v.([]interface{})
	if !ok {
		return 0
	}
	return len(a)
}

// Elems returns the elements of an array, nil otherwise.
func (v Value) Elems() []Value {
	a, ok := v.v.([]interface{})
	if !ok || !v.set {
		return nil
	}
	out := make([]Value, len(a))
	for i := range a {
		out[i] = Value{v: a[i], set: true}
	}
	return out
}

// Keys returns the field names of an object in unspecified order.
func (v Value) Keys() []string {
	m, ok := v.v.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Path follows a chain of object keys.
func (v Value) Path(keys ...string) Value {
	cur := v
	for _, k := range keys {
		cur = cur.Get(k)
	}
	return cur
}

// Text renders a present value as text. Strings are returned verbatim,
// numbers and booleans in their JSON form, objects and arrays as compact JSON.
func (v Value) Text() (string, bool) {
	switch x := v.v.(type) {
	case nil:
		return "", false
	case string:
		if !v.set {
			return "", false
		}
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		if x {
			return "true", true
		}
		return "false", true
	default:
		if !v.set {
			return "", false
		}
		var buf strings.Builder
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(x); err != nil {
			return "", false
		}
		return strings.TrimRight(buf.String(), "\n"), true
	}
}

// Raw returns the underlying decoded value.
func (v Value) Raw() interface{} {
	return v.v
}
