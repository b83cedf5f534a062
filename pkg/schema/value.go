package schema

import (
	"reflect"
	"strconv"
)

// ValueKind discriminates the payload held by a Value.
type ValueKind string

const (
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindAny    ValueKind = "any"
)

// Value is a small discriminated blackboard value. Attribute-sourced
// parameters seed string values; nodes exchange richer payloads through
// the typed constructors.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	any  any
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// NumberValue wraps a float64.
func NumberValue(n float64) Value { return Value{kind: KindNumber, num: n} }

// BoolValue wraps a bool.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// AnyValue wraps an opaque payload.
func AnyValue(v any) Value { return Value{kind: KindAny, any: v} }

// ValueFromString parses s into the narrowest kind it fits:
// bool, then number, then string.
func ValueFromString(s string) Value {
	switch s {
	case "true":
		return BoolValue(true)
	case "false":
		return BoolValue(false)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return NumberValue(n)
	}
	return StringValue(s)
}

// Kind returns the discriminator.
func (v Value) Kind() ValueKind { return v.kind }

// String returns the string payload; ok is false for other kinds.
func (v Value) String() (string, bool) { return v.str, v.kind == KindString }

// Number returns the numeric payload; ok is false for other kinds.
func (v Value) Number() (float64, bool) { return v.num, v.kind == KindNumber }

// Bool returns the boolean payload; ok is false for other kinds.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBool }

// Interface returns the payload as an untyped value, whatever the kind.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	default:
		return v.any
	}
}

// IsZero reports whether v is the zero Value (no kind set).
func (v Value) IsZero() bool { return v.kind == "" }

// Equal reports whether two values hold the same kind and payload. Opaque
// payloads compare with ==, so Equal is false for incomparable types.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindAny:
		a, b := v.any, other.any
		if a == nil || b == nil {
			return a == b
		}
		if !comparableValue(a) || !comparableValue(b) {
			return false
		}
		return a == b
	default:
		return true
	}
}

func comparableValue(v any) bool {
	return reflect.TypeOf(v).Comparable()
}
