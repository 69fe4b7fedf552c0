package sandbox

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the runtime type of a Value.
type Kind int

const (
	// KindNull is the absent value.
	KindNull Kind = iota
	// KindBool is a boolean.
	KindBool
	// KindInt is a 64-bit signed integer.
	KindInt
	// KindFloat is a 64-bit float.
	KindFloat
	// KindString is an immutable UTF-8 string.
	KindString
	// KindList is an ordered sequence of values.
	KindList
	// KindMap is a string-keyed mapping.
	KindMap
)

// String returns the language-level type name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is the tagged runtime value of the sandbox language. Data holds the
// Go representation matching Kind (nil, bool, int64, float64, string,
// []Value or map[string]Value).
type Value struct {
	Kind Kind
	Data any
}

// Null is the singleton absent value.
var Null = Value{Kind: KindNull}

// Bool wraps a Go bool.
func Bool(b bool) Value { return Value{Kind: KindBool, Data: b} }

// Int wraps a Go int64.
func Int(n int64) Value { return Value{Kind: KindInt, Data: n} }

// Float wraps a Go float64.
func Float(f float64) Value { return Value{Kind: KindFloat, Data: f} }

// Str wraps a Go string.
func Str(s string) Value { return Value{Kind: KindString, Data: s} }

// List wraps a slice of values.
func List(xs []Value) Value { return Value{Kind: KindList, Data: xs} }

// MapOf wraps a string-keyed map of values.
func MapOf(m map[string]Value) Value { return Value{Kind: KindMap, Data: m} }

// AsBool returns the underlying bool; callers must have checked Kind.
func (v Value) AsBool() bool { return v.Data.(bool) }

// AsInt returns the underlying int64; callers must have checked Kind.
func (v Value) AsInt() int64 { return v.Data.(int64) }

// AsFloat returns the underlying float64; callers must have checked Kind.
func (v Value) AsFloat() float64 { return v.Data.(float64) }

// AsString returns the underlying string; callers must have checked Kind.
func (v Value) AsString() string { return v.Data.(string) }

// AsList returns the underlying slice; callers must have checked Kind.
func (v Value) AsList() []Value { return v.Data.([]Value) }

// AsMap returns the underlying map; callers must have checked Kind.
func (v Value) AsMap() map[string]Value { return v.Data.(map[string]Value) }

// Truthy reports the boolean interpretation used by if/for conditions:
// null and zero/empty values are false, everything else true.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.AsBool()
	case KindInt:
		return v.AsInt() != 0
	case KindFloat:
		return v.AsFloat() != 0
	case KindString:
		return v.AsString() != ""
	case KindList:
		return len(v.AsList()) > 0
	case KindMap:
		return len(v.AsMap()) > 0
	default:
		return false
	}
}

// Text renders the value for output capture: strings are raw, everything
// else uses Repr.
func (v Value) Text() string {
	if v.Kind == KindString {
		return v.AsString()
	}
	return v.Repr()
}

// Repr renders a source-like representation: strings quoted, containers
// rendered element-wise with map keys in sorted order for determinism.
func (v Value) Repr() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return strconv.FormatBool(v.AsBool())
	case KindInt:
		return strconv.FormatInt(v.AsInt(), 10)
	case KindFloat:
		return strconv.FormatFloat(v.AsFloat(), 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.AsString())
	case KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.AsList() {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.Repr())
		}
		sb.WriteByte(']')
		return sb.String()
	case KindMap:
		m := v.AsMap()
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %s", strconv.Quote(k), m[k].Repr())
		}
		sb.WriteByte('}')
		return sb.String()
	default:
		return "<unknown>"
	}
}

// Equal reports deep equality with int/float cross-comparison.
func Equal(a, b Value) bool {
	if a.Kind == KindInt && b.Kind == KindFloat {
		return float64(a.AsInt()) == b.AsFloat()
	}
	if a.Kind == KindFloat && b.Kind == KindInt {
		return a.AsFloat() == float64(b.AsInt())
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.AsBool() == b.AsBool()
	case KindInt:
		return a.AsInt() == b.AsInt()
	case KindFloat:
		return a.AsFloat() == b.AsFloat()
	case KindString:
		return a.AsString() == b.AsString()
	case KindList:
		la, lb := a.AsList(), b.AsList()
		if len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	case KindMap:
		ma, mb := a.AsMap(), b.AsMap()
		if len(ma) != len(mb) {
			return false
		}
		for k, va := range ma {
			vb, ok := mb[k]
			if !ok || !Equal(va, vb) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Size returns the length of a string, list or map and -1 for scalars. Used
// by the namespace summary shown to the model.
func (v Value) Size() int {
	switch v.Kind {
	case KindString:
		return len(v.AsString())
	case KindList:
		return len(v.AsList())
	case KindMap:
		return len(v.AsMap())
	default:
		return -1
	}
}
