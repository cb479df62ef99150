package chatmodel

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/bububa/ljson"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolagent/pkg/llmutils"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

var kindNames = [...]string{"null", "bool", "number", "string", "array", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Object is an insertion ordered map of Values.
type Object = orderedmap.OrderedMap[string, Value]

// Value is a self-describing structured value used for tool arguments and
// structured tool output. The zero Value is null.
//
// Numbers keep their literal text, so large integers survive a round trip.
type Value struct {
	kind Kind
	b    bool
	num  string
	str  string
	arr  []Value
	obj  *Object
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns a numeric Value.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: strconv.FormatInt(n, 10)}
}

// Float returns a numeric Value.
func Float(f float64) Value {
	return Value{kind: KindNumber, num: strconv.FormatFloat(f, 'g', -1, 64)}
}

// Array returns an array Value.
func Array(items ...Value) Value {
	return Value{kind: KindArray, arr: append([]Value{}, items...)}
}

// NewObject returns an empty object Value together with its map for population.
func NewObject() (Value, *Object) {
	om := orderedmap.New[string, Value]()
	return Value{kind: KindObject, obj: om}, om
}

// ObjectFrom builds an object Value from alternating key, value pairs.
func ObjectFrom(kv ...any) Value {
	v, om := NewObject()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		om.Set(key, MustFromAny(kv[i+1]))
	}
	return v
}

// FromAny converts a Go value to a Value through its JSON encoding.
func FromAny(v any) (Value, error) {
	switch tv := v.(type) {
	case Value:
		return tv, nil
	case nil:
		return Null(), nil
	case string:
		return String(tv), nil
	case bool:
		return Bool(tv), nil
	case int:
		return Int(int64(tv)), nil
	case int64:
		return Int(tv), nil
	case float64:
		return Float(tv), nil
	case json.RawMessage:
		return ParseValue(tv)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return Null(), errors.Wrapf(err, "unable to encode %T", v)
	}
	return ParseValue(raw)
}

// MustFromAny is like FromAny but returns the string form of v on failure.
func MustFromAny(v any) Value {
	ret, err := FromAny(v)
	if err != nil {
		return String(err.Error())
	}
	return ret
}

// ParseValue decodes JSON into a Value.
func ParseValue(raw []byte) (Value, error) {
	var v Value
	if err := v.UnmarshalJSON(raw); err != nil {
		return Null(), err
	}
	return v, nil
}

// ParseArguments decodes a model supplied argument blob. It never fails:
// an empty blob is an empty object, and text that is not valid JSON is kept
// as a string Value so that the tool can report the problem.
func ParseArguments(raw string) Value {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		v, _ := NewObject()
		return v
	}
	v, err := ParseValue(trimmed)
	if err == nil {
		return v
	}
	// models sometimes fence the arguments or add a sentence around them
	if cleaned := llmutils.CleanJSON(llmutils.BytesTrimBackticks(trimmed)); !bytes.Equal(cleaned, trimmed) {
		if v, err = ParseValue(cleaned); err == nil && v.Kind() == KindObject {
			return v
		}
	}
	return String(raw)
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// AsBool returns the boolean and whether v is a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// AsString returns the string and whether v is a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsFloat returns the number and whether v is a number.
func (v Value) AsFloat() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.num, 64)
	return f, err == nil
}

// AsInt returns the number and whether v is an integral number.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	n, err := strconv.ParseInt(v.num, 10, 64)
	if err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(v.num, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// Len returns the number of array items or object keys.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.arr)
	case KindObject:
		return v.obj.Len()
	}
	return 0
}

// Index returns the i-th array item, or null.
func (v Value) Index(i int) Value {
	if v.kind != KindArray || i < 0 || i >= len(v.arr) {
		return Null()
	}
	return v.arr[i]
}

// Get returns an object member.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Null(), false
	}
	return v.obj.Get(key)
}

// Keys returns the object keys in insertion order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, v.obj.Len())
	for p := v.obj.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key)
	}
	return keys
}

// Interface returns v as plain Go values: nil, bool, float64, string,
// []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		f, _ := v.AsFloat()
		return f
	case KindString:
		return v.str
	case KindArray:
		ret := make([]any, len(v.arr))
		for i, item := range v.arr {
			ret[i] = item.Interface()
		}
		return ret
	case KindObject:
		ret := make(map[string]any, v.obj.Len())
		for p := v.obj.Oldest(); p != nil; p = p.Next() {
			ret[p.Key] = p.Value.Interface()
		}
		return ret
	}
	return nil
}

// Map returns an object Value as map[string]any, or nil for other kinds.
func (v Value) Map() map[string]any {
	m, _ := v.Interface().(map[string]any)
	return m
}

// Decode decodes v into out. Decoding is lenient about the scalar forms
// models tend to emit, such as numbers quoted as strings.
func (v Value) Decode(out any) error {
	raw, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	if err = ljson.Unmarshal(raw, out); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to unmarshal arguments"), ErrFailedUnmarshalInput)
	}
	return nil
}

// JSON returns the JSON encoding of v.
func (v Value) JSON() json.RawMessage {
	raw, _ := v.MarshalJSON()
	return raw
}

// String returns the compact JSON text of v.
func (v Value) String() string {
	return string(v.JSON())
}

// Equal reports structural equality, including object key order.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.JSON(), o.JSON())
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return []byte(v.num), nil
	case KindString:
		return json.Marshal(v.str)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		return v.obj.MarshalJSON()
	}
	return []byte("null"), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("empty JSON value")
	}
	switch data[0] {
	case 'n':
		if string(data) != "null" {
			return errors.Newf("invalid JSON value: %s", data)
		}
		*v = Null()
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return errors.WithStack(err)
		}
		*v = Bool(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.WithStack(err)
		}
		*v = String(s)
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return errors.WithStack(err)
		}
		*v = Value{kind: KindArray, arr: items}
	case '{':
		if !json.Valid(data) {
			return errors.Newf("invalid JSON object: %s", data)
		}
		om := orderedmap.New[string, Value]()
		if err := om.UnmarshalJSON(data); err != nil {
			return errors.WithStack(err)
		}
		*v = Value{kind: KindObject, obj: om}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.WithStack(err)
		}
		*v = Value{kind: KindNumber, num: n.String()}
	}
	return nil
}
