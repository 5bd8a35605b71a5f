package tf

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies which primitive a Value holds.
type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindFloat
)

// String returns a human-readable name for the value kind.
func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	default:
		return "unknown"
	}
}

// Value is a scripting value. Values are immutable; reassignment replaces
// the whole Value in the variable store.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
}

// StringValue wraps a string.
func StringValue(s string) Value { return Value{kind: KindString, s: s} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// FloatValue wraps a float.
func FloatValue(f float64) Value { return Value{kind: KindFloat, f: f} }

// Kind reports the primitive held by v.
func (v Value) Kind() ValueKind { return v.kind }

// String renders v the way substitution inserts it into text.
func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		if v.f == math.Trunc(v.f) && math.Abs(v.f) < 1e15 {
			return strconv.FormatFloat(v.f, 'f', 1, 64)
		}
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	default:
		return v.s
	}
}

// Int converts v to an integer. Strings that don't parse as numbers are 0.
func (v Value) Int() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindFloat:
		return int64(v.f)
	default:
		s := strings.TrimSpace(v.s)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	}
}

// Float converts v to a float. Strings that don't parse as numbers are 0.
func (v Value) Float() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindFloat:
		return v.f
	default:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0
		}
		return f
	}
}

// Truthy reports whether v counts as true in a condition: non-zero numbers
// and non-empty strings other than "0".
func (v Value) Truthy() bool {
	switch v.kind {
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	default:
		return v.s != "" && v.s != "0"
	}
}

// numericKind reports how v behaves in arithmetic. Strings holding a number
// act as that number.
func (v Value) numericKind() (ValueKind, bool) {
	switch v.kind {
	case KindInt, KindFloat:
		return v.kind, true
	}
	s := strings.TrimSpace(v.s)
	if s == "" {
		return KindString, false
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return KindInt, true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return KindFloat, true
	}
	return KindString, false
}

// Equal compares two values by kind, then by rendered text.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	default:
		return v.s == o.s
	}
}

func boolValue(b bool) Value {
	if b {
		return IntValue(1)
	}
	return IntValue(0)
}
