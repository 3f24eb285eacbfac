package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// MarshalJSON renders bytes as base64 and timestamps as RFC3339.
func (v Value) MarshalJSON() ([]byte, error) {
	switch x := v.v.(type) {
	case nil:
		return []byte("null"), nil
	case time.Time:
		return json.Marshal(x.Format(time.RFC3339Nano))
	case []time.Time:
		out := make([]string, len(x))
		for i := range x {
			out[i] = x[i].Format(time.RFC3339Nano)
		}
		return json.Marshal(out)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return []byte("null"), nil
		}
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return []byte("null"), nil
		}
	}
	return json.Marshal(v.v)
}

// FromJSON converts a decoded JSON value into a Value. With hint ValueTypeInvalid the
// type is inferred: integral numbers become INT64, other numbers DOUBLE.
func FromJSON(raw any, hint ValueType) (Value, error) {
	if raw == nil {
		return NullValue(hint), nil
	}
	if hint == ValueTypeInvalid || hint == ValueTypeNull {
		return inferJSON(raw)
	}
	if hint.IsList() {
		items, ok := raw.([]any)
		if !ok {
			return Value{}, fmt.Errorf("expected a list for %s, got %T", hint, raw)
		}
		elems := make([]Value, len(items))
		for i, item := range items {
			e, err := scalarFromJSON(item, hint.Elem())
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = e
		}
		return ListFromValues(hint, elems)
	}
	return scalarFromJSON(raw, hint)
}

// ListFromValues packs scalar values of t's element type into a list value. Null elements are not allowed.
func ListFromValues(t ValueType, elems []Value) (Value, error) {
	switch t {
	case ValueTypeBytesList:
		return collect(t, elems, BytesListValue)
	case ValueTypeStringList:
		return collect(t, elems, StringListValue)
	case ValueTypeInt32List:
		return collect(t, elems, Int32ListValue)
	case ValueTypeInt64List:
		return collect(t, elems, Int64ListValue)
	case ValueTypeDoubleList:
		return collect(t, elems, DoubleListValue)
	case ValueTypeFloatList:
		return collect(t, elems, FloatListValue)
	case ValueTypeBoolList:
		return collect(t, elems, BoolListValue)
	case ValueTypeUnixTimestampList:
		return collect(t, elems, UnixTimestampListValue)
	}
	return Value{}, fmt.Errorf("%s is not a list type", t)
}

func collect[T any](t ValueType, elems []Value, build func([]T) Value) (Value, error) {
	out := make([]T, len(elems))
	for i, e := range elems {
		x, ok := e.v.(T)
		if !ok {
			return Value{}, fmt.Errorf("element %d of %s is %s", i, t, e.Type())
		}
		out[i] = x
	}
	return build(out), nil
}

func inferJSON(raw any) (Value, error) {
	switch x := raw.(type) {
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return Int64Value(i), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(f), nil
	case float64:
		if math.Trunc(x) == x && math.Abs(x) < 1<<53 {
			return Int64Value(int64(x)), nil
		}
		return DoubleValue(x), nil
	case []any:
		if len(x) == 0 {
			return Value{}, fmt.Errorf("cannot infer the type of an empty list")
		}
		first, err := inferJSON(x[0])
		if err != nil {
			return Value{}, err
		}
		elemType := first.Type()
		if elemType.IsList() || first.IsNull() {
			return Value{}, fmt.Errorf("unsupported list element %v", x[0])
		}
		// a list mixing integers and fractions is a DOUBLE list
		if elemType == ValueTypeInt64 {
			for _, item := range x[1:] {
				if e, err := inferJSON(item); err == nil && e.Type() == ValueTypeDouble {
					elemType = ValueTypeDouble
					break
				}
			}
		}
		return FromJSON(x, ListOf(elemType))
	}
	return Value{}, fmt.Errorf("unsupported json value %T", raw)
}

func scalarFromJSON(raw any, t ValueType) (Value, error) {
	if raw == nil {
		return Value{}, fmt.Errorf("null is not allowed here")
	}
	switch t {
	case ValueTypeString:
		if s, ok := raw.(string); ok {
			return StringValue(s), nil
		}
	case ValueTypeBytes:
		if s, ok := raw.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return Value{}, fmt.Errorf("bytes must be base64: %w", err)
			}
			return BytesValue(b), nil
		}
	case ValueTypeBool:
		if b, ok := raw.(bool); ok {
			return BoolValue(b), nil
		}
	case ValueTypeInt32:
		i, err := jsonInt(raw)
		if err != nil {
			return Value{}, err
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return Value{}, fmt.Errorf("%d overflows INT32", i)
		}
		return Int32Value(int32(i)), nil
	case ValueTypeInt64:
		i, err := jsonInt(raw)
		if err != nil {
			return Value{}, err
		}
		return Int64Value(i), nil
	case ValueTypeDouble:
		f, err := jsonFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return DoubleValue(f), nil
	case ValueTypeFloat:
		f, err := jsonFloat(raw)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(float32(f)), nil
	case ValueTypeUnixTimestamp:
		if s, ok := raw.(string); ok {
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return Value{}, err
			}
			return UnixTimestampValue(ts), nil
		}
		secs, err := jsonInt(raw)
		if err != nil {
			return Value{}, err
		}
		return UnixTimestampValue(time.Unix(secs, 0)), nil
	default:
		return Value{}, fmt.Errorf("unsupported scalar type %s", t)
	}
	return Value{}, fmt.Errorf("cannot use %T as %s", raw, t)
}

func jsonInt(raw any) (int64, error) {
	switch x := raw.(type) {
	case json.Number:
		return strconv.ParseInt(string(x), 10, 64)
	case float64:
		if math.Trunc(x) != x {
			return 0, fmt.Errorf("%v is not an integer", x)
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}

func jsonFloat(raw any) (float64, error) {
	switch x := raw.(type) {
	case json.Number:
		return x.Float64()
	case float64:
		return x, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}
