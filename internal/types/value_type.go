package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ValueType is the declared kind of a feature, entity key or request input.
type ValueType int32

const (
	ValueTypeInvalid ValueType = iota
	ValueTypeBytes
	ValueTypeString
	ValueTypeInt32
	ValueTypeInt64
	ValueTypeDouble
	ValueTypeFloat
	ValueTypeBool
	ValueTypeUnixTimestamp
	ValueTypeBytesList
	ValueTypeStringList
	ValueTypeInt32List
	ValueTypeInt64List
	ValueTypeDoubleList
	ValueTypeFloatList
	ValueTypeBoolList
	ValueTypeUnixTimestampList
	ValueTypeNull
)

var valueTypeNames = map[ValueType]string{
	ValueTypeInvalid:           "INVALID",
	ValueTypeBytes:             "BYTES",
	ValueTypeString:            "STRING",
	ValueTypeInt32:             "INT32",
	ValueTypeInt64:             "INT64",
	ValueTypeDouble:            "DOUBLE",
	ValueTypeFloat:             "FLOAT",
	ValueTypeBool:              "BOOL",
	ValueTypeUnixTimestamp:     "UNIX_TIMESTAMP",
	ValueTypeBytesList:         "BYTES_LIST",
	ValueTypeStringList:        "STRING_LIST",
	ValueTypeInt32List:         "INT32_LIST",
	ValueTypeInt64List:         "INT64_LIST",
	ValueTypeDoubleList:        "DOUBLE_LIST",
	ValueTypeFloatList:         "FLOAT_LIST",
	ValueTypeBoolList:          "BOOL_LIST",
	ValueTypeUnixTimestampList: "UNIX_TIMESTAMP_LIST",
	ValueTypeNull:              "NULL",
}

var valueTypesByName = func() map[string]ValueType {
	m := make(map[string]ValueType, len(valueTypeNames))
	for t, name := range valueTypeNames {
		m[name] = t
	}
	return m
}()

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", int32(t))
}

// ParseValueType accepts the upper or lower case name of a value type.
func ParseValueType(s string) (ValueType, error) {
	t, ok := valueTypesByName[strings.ToUpper(strings.TrimSpace(s))]
	if !ok || t == ValueTypeInvalid {
		return ValueTypeInvalid, fmt.Errorf("unknown value type %q", s)
	}
	return t, nil
}

func (t ValueType) IsList() bool {
	return t >= ValueTypeBytesList && t <= ValueTypeUnixTimestampList
}

// Elem returns the element type of a list type and the type itself otherwise.
func (t ValueType) Elem() ValueType {
	if t.IsList() {
		return t - (ValueTypeBytesList - ValueTypeBytes)
	}
	return t
}

// ListOf returns the list type whose elements are t.
func ListOf(t ValueType) ValueType {
	if t >= ValueTypeBytes && t <= ValueTypeUnixTimestamp {
		return t + (ValueTypeBytesList - ValueTypeBytes)
	}
	return ValueTypeInvalid
}

func (t ValueType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *ValueType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseValueType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
