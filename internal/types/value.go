package types

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"time"
)

// Value is an immutable, typed feature value. The zero Value is an untyped null.
// Constructors copy slices so callers cannot mutate a Value after the fact.
type Value struct {
	typ ValueType
	v   any
}

func NullValue(t ValueType) Value       { return Value{typ: t} }
func BytesValue(b []byte) Value         { return Value{typ: ValueTypeBytes, v: cloneBytes(b)} }
func StringValue(s string) Value        { return Value{typ: ValueTypeString, v: s} }
func Int32Value(i int32) Value          { return Value{typ: ValueTypeInt32, v: i} }
func Int64Value(i int64) Value          { return Value{typ: ValueTypeInt64, v: i} }
func DoubleValue(f float64) Value       { return Value{typ: ValueTypeDouble, v: f} }
func FloatValue(f float32) Value        { return Value{typ: ValueTypeFloat, v: f} }
func BoolValue(b bool) Value            { return Value{typ: ValueTypeBool, v: b} }
func StringListValue(s []string) Value  { return Value{typ: ValueTypeStringList, v: cloneSlice(s)} }
func Int32ListValue(i []int32) Value    { return Value{typ: ValueTypeInt32List, v: cloneSlice(i)} }
func Int64ListValue(i []int64) Value    { return Value{typ: ValueTypeInt64List, v: cloneSlice(i)} }
func DoubleListValue(f []float64) Value { return Value{typ: ValueTypeDoubleList, v: cloneSlice(f)} }
func FloatListValue(f []float32) Value  { return Value{typ: ValueTypeFloatList, v: cloneSlice(f)} }
func BoolListValue(b []bool) Value      { return Value{typ: ValueTypeBoolList, v: cloneSlice(b)} }

// UnixTimestampValue keeps microsecond precision in UTC, the precision columnar payloads carry.
func UnixTimestampValue(t time.Time) Value {
	return Value{typ: ValueTypeUnixTimestamp, v: normalizeTime(t)}
}

func BytesListValue(b [][]byte) Value {
	out := make([][]byte, len(b))
	for i := range b {
		out[i] = cloneBytes(b[i])
	}
	return Value{typ: ValueTypeBytesList, v: out}
}

func UnixTimestampListValue(ts []time.Time) Value {
	out := make([]time.Time, len(ts))
	for i := range ts {
		out[i] = normalizeTime(ts[i])
	}
	return Value{typ: ValueTypeUnixTimestampList, v: out}
}

// NewValue wraps a Go value of the representation matching t.
func NewValue(t ValueType, v any) (Value, error) {
	if v == nil {
		return NullValue(t), nil
	}
	switch t {
	case ValueTypeBytes:
		if b, ok := v.([]byte); ok {
			return BytesValue(b), nil
		}
	case ValueTypeString:
		if s, ok := v.(string); ok {
			return StringValue(s), nil
		}
	case ValueTypeInt32:
		if i, ok := v.(int32); ok {
			return Int32Value(i), nil
		}
	case ValueTypeInt64:
		if i, ok := v.(int64); ok {
			return Int64Value(i), nil
		}
	case ValueTypeDouble:
		if f, ok := v.(float64); ok {
			return DoubleValue(f), nil
		}
	case ValueTypeFloat:
		if f, ok := v.(float32); ok {
			return FloatValue(f), nil
		}
	case ValueTypeBool:
		if b, ok := v.(bool); ok {
			return BoolValue(b), nil
		}
	case ValueTypeUnixTimestamp:
		if ts, ok := v.(time.Time); ok {
			return UnixTimestampValue(ts), nil
		}
	case ValueTypeBytesList:
		if b, ok := v.([][]byte); ok {
			return BytesListValue(b), nil
		}
	case ValueTypeStringList:
		if s, ok := v.([]string); ok {
			return StringListValue(s), nil
		}
	case ValueTypeInt32List:
		if i, ok := v.([]int32); ok {
			return Int32ListValue(i), nil
		}
	case ValueTypeInt64List:
		if i, ok := v.([]int64); ok {
			return Int64ListValue(i), nil
		}
	case ValueTypeDoubleList:
		if f, ok := v.([]float64); ok {
			return DoubleListValue(f), nil
		}
	case ValueTypeFloatList:
		if f, ok := v.([]float32); ok {
			return FloatListValue(f), nil
		}
	case ValueTypeBoolList:
		if b, ok := v.([]bool); ok {
			return BoolListValue(b), nil
		}
	case ValueTypeUnixTimestampList:
		if ts, ok := v.([]time.Time); ok {
			return UnixTimestampListValue(ts), nil
		}
	}
	return Value{}, fmt.Errorf("cannot use %T as %s", v, t)
}

// Type is the declared type. A typed null keeps its type; the zero Value reports ValueTypeNull.
func (v Value) Type() ValueType {
	if v.typ == ValueTypeInvalid {
		return ValueTypeNull
	}
	return v.typ
}

func (v Value) IsNull() bool { return v.v == nil }

// Interface returns the underlying Go value, or nil for a null.
func (v Value) Interface() any { return v.v }

func (v Value) String() string {
	if v.IsNull() {
		return "null"
	}
	return fmt.Sprintf("%v", v.v)
}

func (v Value) Bytes() ([]byte, bool) {
	b, ok := v.v.([]byte)
	return b, ok
}

func (v Value) Str() (string, bool) {
	s, ok := v.v.(string)
	return s, ok
}

func (v Value) Int32() (int32, bool) {
	i, ok := v.v.(int32)
	return i, ok
}

func (v Value) Int64() (int64, bool) {
	i, ok := v.v.(int64)
	return i, ok
}

func (v Value) Double() (float64, bool) {
	f, ok := v.v.(float64)
	return f, ok
}

func (v Value) Float() (float32, bool) {
	f, ok := v.v.(float32)
	return f, ok
}

func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok
}

func (v Value) Time() (time.Time, bool) {
	t, ok := v.v.(time.Time)
	return t, ok
}

// AsFloat64 widens any scalar numeric value.
func (v Value) AsFloat64() (float64, bool) {
	switch n := v.v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// AsInt64 widens integer values and accepts integral floats.
func (v Value) AsInt64() (int64, bool) {
	switch n := v.v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float32:
		if float32(math.Trunc(float64(n))) == n && math.Abs(float64(n)) < maxExactFloat32 {
			return int64(n), true
		}
	case float64:
		if math.Trunc(n) == n && math.Abs(n) < maxExactFloat64 {
			return int64(n), true
		}
	}
	return 0, false
}

// Integers at or above these magnitudes may already have been rounded by the float.
const (
	maxExactFloat32 = 1 << 24
	maxExactFloat64 = 1 << 53
)

// Equal reports whether two values hold the same data. Any two nulls are equal.
func (v Value) Equal(o Value) bool {
	if v.IsNull() || o.IsNull() {
		return v.IsNull() && o.IsNull()
	}
	if v.Type() != o.Type() {
		return false
	}
	switch a := v.v.(type) {
	case []byte:
		return bytes.Equal(a, o.v.([]byte))
	case time.Time:
		return a.Equal(o.v.(time.Time))
	case []time.Time:
		b := o.v.([]time.Time)
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(v.v, o.v)
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func cloneSlice[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}

// Elements splits a list value into scalar values. It returns nil for scalars and nulls.
func (v Value) Elements() []Value {
	switch l := v.v.(type) {
	case [][]byte:
		return wrapEach(l, BytesValue)
	case []string:
		return wrapEach(l, StringValue)
	case []int32:
		return wrapEach(l, Int32Value)
	case []int64:
		return wrapEach(l, Int64Value)
	case []float64:
		return wrapEach(l, DoubleValue)
	case []float32:
		return wrapEach(l, FloatValue)
	case []bool:
		return wrapEach(l, BoolValue)
	case []time.Time:
		return wrapEach(l, UnixTimestampValue)
	}
	return nil
}

func wrapEach[T any](s []T, wrap func(T) Value) []Value {
	out := make([]Value, len(s))
	for i := range s {
		out[i] = wrap(s[i])
	}
	return out
}
