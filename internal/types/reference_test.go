package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFeatureReference(t *testing.T) {
	ref, err := ParseFeatureReference("driver_hourly_stats:conv_rate")
	require.NoError(t, err)
	assert.Equal(t, FeatureReference{View: "driver_hourly_stats", Feature: "conv_rate"}, ref)
	assert.Equal(t, "driver_hourly_stats:conv_rate", ref.String())
	assert.Equal(t, "driver_hourly_stats__conv_rate", ref.FullName())

	for _, bad := range []string{"", "conv_rate", ":conv_rate", "view:", "a:b:c"} {
		_, err := ParseFeatureReference(bad)
		assert.ErrorIs(t, err, ErrInvalidReference, bad)
	}
}

func TestEntityKey_SerializeEscapesSeparators(t *testing.T) {
	tests := []struct {
		name string
		a, b EntityKey
	}{
		{
			name: "pipe inside a value",
			a:    EntityKey{JoinKeys: []string{"a", "b"}, Values: []Value{StringValue("x|b=1"), StringValue("2")}},
			b:    EntityKey{JoinKeys: []string{"a", "b"}, Values: []Value{StringValue("x"), StringValue("1|b=2")}},
		},
		{
			name: "trailing backslash",
			a:    EntityKey{JoinKeys: []string{"a", "b"}, Values: []Value{StringValue(`x\`), StringValue("y")}},
			b:    EntityKey{JoinKeys: []string{"a", "b"}, Values: []Value{StringValue(`x\|b=y`), StringValue("")}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := tt.a.Serialize()
			require.NoError(t, err)
			b, err := tt.b.Serialize()
			require.NoError(t, err)
			assert.NotEqual(t, a, b)
		})
	}

	s, err := EntityKey{JoinKeys: []string{"id"}, Values: []Value{StringValue(`a|b=c\d`)}}.Serialize()
	require.NoError(t, err)
	assert.Equal(t, `id=a\|b\=c\\d`, s)
}

func TestEntityKey_Serialize(t *testing.T) {
	key := EntityKey{
		JoinKeys: []string{"driver_id", "customer_id"},
		Values:   []Value{Int64Value(1001), StringValue("c7")},
	}
	s, err := key.Serialize()
	require.NoError(t, err)
	assert.Equal(t, "customer_id=c7|driver_id=1001", s)

	same := EntityKey{
		JoinKeys: []string{"customer_id", "driver_id"},
		Values:   []Value{StringValue("c7"), Int32Value(1001)},
	}
	s2, err := same.Serialize()
	require.NoError(t, err)
	assert.Equal(t, s, s2)

	dummy, err := DummyEntityKey().Serialize()
	require.NoError(t, err)
	assert.Equal(t, "__dummy_id=", dummy)

	_, err = EntityKey{JoinKeys: []string{"a"}, Values: []Value{NullValue(ValueTypeInt64)}}.Serialize()
	assert.Error(t, err)
	_, err = EntityKey{JoinKeys: []string{"a"}, Values: []Value{DoubleValue(1)}}.Serialize()
	assert.Error(t, err)
	_, err = EntityKey{JoinKeys: []string{"a", "b"}, Values: []Value{Int64Value(1)}}.Serialize()
	assert.Error(t, err)
}

func TestFeatureStatus_String(t *testing.T) {
	assert.Equal(t, "PRESENT", StatusPresent.String())
	assert.Equal(t, "OUTSIDE_MAX_AGE", StatusOutsideMaxAge.String())
	assert.Equal(t, FeatureStatus(4), StatusError)
	assert.Equal(t, "FeatureStatus(9)", FeatureStatus(9).String())
}
