package schema

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind identifies a scalar value type.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindTime
	KindNull
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	case KindNull:
		return "null"
	default:
		return "invalid"
	}
}

// kindNames maps schema type strings to kinds. Null is not a declarable
// field type.
var kindNames = map[string]Kind{
	"int":    KindInt,
	"float":  KindFloat,
	"string": KindString,
	"bool":   KindBool,
	"time":   KindTime,
}

// Value is a sealed scalar. Only Int, Float, String, Bool, Time and Null
// implement it; records and stores never carry raw interface{} data, so a
// value's kind is always known without reflection.
type Value interface {
	Kind() Kind
	value()
}

// Int is an integer value. Always int64 width.
type Int int64

func (Int) value()     {}
func (Int) Kind() Kind { return KindInt }

// Float is a floating point value. Always float64 width.
type Float float64

func (Float) value()     {}
func (Float) Kind() Kind { return KindFloat }

// String is a text value.
type String string

func (String) value()     {}
func (String) Kind() Kind { return KindString }

// Bool is a boolean value.
type Bool bool

func (Bool) value()     {}
func (Bool) Kind() Kind { return KindBool }

// Time is an instant value.
type Time time.Time

func (Time) value()     {}
func (Time) Kind() Kind { return KindTime }

// Time returns the underlying time.Time.
func (v Time) Time() time.Time { return time.Time(v) }

// Null is the absent value for nullable fields.
type Null struct{}

func (Null) value()     {}
func (Null) Kind() Kind { return KindNull }

// ValueOf converts a Go native into a Value. Integer widths widen to int64
// and float32 widens to float64; nothing else converts implicitly. In
// particular strings never become numbers and numbers never become strings.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(x), nil
	case int8:
		return Int(x), nil
	case int16:
		return Int(x), nil
	case int32:
		return Int(x), nil
	case int64:
		return Int(x), nil
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("schema: uint value %d overflows int64", x)
		}
		return Int(x), nil
	case uint8:
		return Int(x), nil
	case uint16:
		return Int(x), nil
	case uint32:
		return Int(x), nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("schema: uint64 value %d overflows int64", x)
		}
		return Int(x), nil
	case float32:
		return Float(x), nil
	case float64:
		return Float(x), nil
	case time.Time:
		return Time(x), nil
	default:
		return nil, fmt.Errorf("schema: unsupported value type %T", v)
	}
}

// MustValue converts like ValueOf and panics on unsupported input. For
// fixtures and tests.
func MustValue(v any) Value {
	val, err := ValueOf(v)
	if err != nil {
		panic(err)
	}
	return val
}

// Equal reports value equality. Values of different kinds are never equal;
// times compare with time.Time.Equal so location differences do not matter.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch av := a.(type) {
	case Time:
		return av.Time().Equal(b.(Time).Time())
	case Null:
		return true
	default:
		return a == b
	}
}

// Compare orders two values of the same kind. The second return is false
// when the pair has no defined order: mismatched kinds, nulls, or booleans.
func Compare(a, b Value) (int, bool) {
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return 0, false
	}
	switch av := a.(type) {
	case Int:
		bv := b.(Int)
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case Float:
		bv := b.(Float)
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case String:
		bv := b.(String)
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case Time:
		at, bt := av.Time(), b.(Time).Time()
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// Format renders a value for diagnostics and text output. Times render in
// RFC 3339 with nanoseconds so formatting round-trips.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case Int:
		return strconv.FormatInt(int64(x), 10)
	case Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	case String:
		return string(x)
	case Bool:
		return strconv.FormatBool(bool(x))
	case Time:
		return x.Time().Format(time.RFC3339Nano)
	case Null:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}
