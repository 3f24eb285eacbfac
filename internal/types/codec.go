package types

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// EncodeValue serializes a value for the online stores. Nulls encode to an empty payload.
func EncodeValue(v Value) ([]byte, error) {
	if v.IsNull() {
		return nil, nil
	}
	b, err := msgpack.Marshal(v.v)
	if err != nil {
		return nil, fmt.Errorf("encode %s value: %w", v.Type(), err)
	}
	return b, nil
}

// DecodeValue is the inverse of EncodeValue for a value declared as t.
func DecodeValue(t ValueType, b []byte) (Value, error) {
	if len(b) == 0 {
		return NullValue(t), nil
	}
	var (
		out any
		err error
	)
	switch t {
	case ValueTypeBytes:
		out, err = decodeAs[[]byte](b)
	case ValueTypeString:
		out, err = decodeAs[string](b)
	case ValueTypeInt32:
		out, err = decodeAs[int32](b)
	case ValueTypeInt64:
		out, err = decodeAs[int64](b)
	case ValueTypeDouble:
		out, err = decodeAs[float64](b)
	case ValueTypeFloat:
		out, err = decodeAs[float32](b)
	case ValueTypeBool:
		out, err = decodeAs[bool](b)
	case ValueTypeUnixTimestamp:
		out, err = decodeAs[time.Time](b)
	case ValueTypeBytesList:
		out, err = decodeAs[[][]byte](b)
	case ValueTypeStringList:
		out, err = decodeAs[[]string](b)
	case ValueTypeInt32List:
		out, err = decodeAs[[]int32](b)
	case ValueTypeInt64List:
		out, err = decodeAs[[]int64](b)
	case ValueTypeDoubleList:
		out, err = decodeAs[[]float64](b)
	case ValueTypeFloatList:
		out, err = decodeAs[[]float32](b)
	case ValueTypeBoolList:
		out, err = decodeAs[[]bool](b)
	case ValueTypeUnixTimestampList:
		out, err = decodeAs[[]time.Time](b)
	default:
		return Value{}, fmt.Errorf("cannot decode value of type %s", t)
	}
	if err != nil {
		return Value{}, fmt.Errorf("decode %s value: %w", t, err)
	}
	return NewValue(t, out)
}

func decodeAs[T any](b []byte) (T, error) {
	var out T
	err := msgpack.Unmarshal(b, &out)
	return out, err
}
