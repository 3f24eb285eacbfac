package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeValue(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 123456000, time.UTC)
	values := []Value{
		BytesValue([]byte{0, 1, 2}),
		StringValue("hello"),
		Int32Value(-5),
		Int64Value(1 << 40),
		DoubleValue(2.25),
		FloatValue(1.5),
		BoolValue(true),
		UnixTimestampValue(ts),
		BytesListValue([][]byte{{1}, {2, 3}}),
		StringListValue([]string{"a", "b"}),
		Int32ListValue([]int32{1, 2}),
		Int64ListValue([]int64{3, 4}),
		DoubleListValue([]float64{0.5}),
		FloatListValue([]float32{0.25}),
		BoolListValue([]bool{true, false}),
		UnixTimestampListValue([]time.Time{ts}),
	}
	for _, v := range values {
		t.Run(v.Type().String(), func(t *testing.T) {
			b, err := EncodeValue(v)
			require.NoError(t, err)
			got, err := DecodeValue(v.Type(), b)
			require.NoError(t, err)
			assert.True(t, v.Equal(got), "got %v want %v", got, v)
			assert.Equal(t, v.Type(), got.Type())
		})
	}
}

func TestEncodeValue_Null(t *testing.T) {
	b, err := EncodeValue(NullValue(ValueTypeDouble))
	require.NoError(t, err)
	assert.Empty(t, b)

	v, err := DecodeValue(ValueTypeDouble, nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.Equal(t, ValueTypeDouble, v.Type())
}

func TestDecodeValue_Errors(t *testing.T) {
	b, err := EncodeValue(StringValue("x"))
	require.NoError(t, err)
	_, err = DecodeValue(ValueTypeInt64, b)
	assert.Error(t, err)

	_, err = DecodeValue(ValueTypeInvalid, b)
	assert.Error(t, err)
}
