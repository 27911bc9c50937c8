package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/valyala/fastjson"
)

// Kind identifies which member of a Value is set.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindJSON // object or array, kept as raw JSON
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindJSON:
		return "json"
	default:
		return "null"
	}
}

// Value is a dynamic JSON field value. The zero Value is null, which is also
// what a lookup of an absent key returns.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Raw  json.RawMessage
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }
func RawValue(raw []byte) Value { return Value{Kind: KindJSON, Raw: append(json.RawMessage(nil), raw...)} }
func (v Value) IsNull() bool { return v.Kind == KindNull }

// String renders the value for display. Null renders as "".
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindJSON:
		return string(v.Raw)
	default:
		return ""
	}
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindJSON:
		if len(v.Raw) == 0 {
			return []byte("null"), nil
		}
		return v.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	var p fastjson.Parser
	fv, err := p.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	*v = valueOf(fv)
	return nil
}

// valueOf copies a parsed fastjson value out of the parser's arena.
func valueOf(fv *fastjson.Value) Value {
	switch fv.Type() {
	case fastjson.TypeString:
		return StringValue(string(fv.GetStringBytes()))
	case fastjson.TypeNumber:
		return NumberValue(fv.GetFloat64())
	case fastjson.TypeTrue:
		return BoolValue(true)
	case fastjson.TypeFalse:
		return BoolValue(false)
	case fastjson.TypeObject, fastjson.TypeArray:
		return Value{Kind: KindJSON, Raw: fv.MarshalTo(nil)}
	default:
		return Value{}
	}
}

// Fields is a typed replacement for an untyped key/value bag.
type Fields map[string]Value

// Get returns the value for key, or the null Value when absent.
func (f Fields) Get(key string) Value {
	if f == nil {
		return Value{}
	}
	return f[key]
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON decodes a JSON object into typed values.
func (f *Fields) UnmarshalJSON(b []byte) error {
	var p fastjson.Parser
	fv, err := p.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	if fv.Type() == fastjson.TypeNull {
		*f = nil
		return nil
	}
	obj, err := fv.Object()
	if err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	out := make(Fields, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		out[string(key)] = valueOf(v)
	})
	*f = out
	return nil
}

// SchemaItem is one schema definition (metric, label, log field, ...).
type SchemaItem = Fields
