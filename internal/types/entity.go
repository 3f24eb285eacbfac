package types

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// DummyEntityId is the join key entityless views are stored under.
	DummyEntityId  = "__dummy_id"
	DummyEntityVal = ""
)

// EntityRow is one query unit: entity join keys plus any request-time inputs.
type EntityRow map[string]Value

// EntityKey is the lookup key of one row for one feature view.
type EntityKey struct {
	JoinKeys []string
	Values   []Value
}

func DummyEntityKey() EntityKey {
	return EntityKey{JoinKeys: []string{DummyEntityId}, Values: []Value{StringValue(DummyEntityVal)}}
}

// Serialize renders the key as sorted "join_key=value" pairs joined by "|". Backslash, "|" and "="
// inside join keys and string values are escaped with a backslash, so distinct keys never collide.
// Writers of the online stores use the same form.
func (k EntityKey) Serialize() (string, error) {
	if len(k.JoinKeys) != len(k.Values) {
		return "", fmt.Errorf("entity key has %d join keys and %d values", len(k.JoinKeys), len(k.Values))
	}
	idx := make([]int, len(k.JoinKeys))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return k.JoinKeys[idx[a]] < k.JoinKeys[idx[b]] })

	var sb strings.Builder
	for n, i := range idx {
		s, err := keyString(k.Values[i])
		if err != nil {
			return "", fmt.Errorf("join key %s: %w", k.JoinKeys[i], err)
		}
		if n > 0 {
			sb.WriteByte('|')
		}
		keyEscaper.WriteString(&sb, k.JoinKeys[i])
		sb.WriteByte('=')
		keyEscaper.WriteString(&sb, s)
	}
	return sb.String(), nil
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`, "=", `\=`)

func keyString(v Value) (string, error) {
	if v.IsNull() {
		return "", fmt.Errorf("null entity key value")
	}
	switch v.Type() {
	case ValueTypeString:
		return v.v.(string), nil
	case ValueTypeInt32:
		return strconv.FormatInt(int64(v.v.(int32)), 10), nil
	case ValueTypeInt64:
		return strconv.FormatInt(v.v.(int64), 10), nil
	case ValueTypeBytes:
		return hex.EncodeToString(v.v.([]byte)), nil
	case ValueTypeBool:
		return strconv.FormatBool(v.v.(bool)), nil
	default:
		return "", fmt.Errorf("value type %s cannot be used as an entity key", v.Type())
	}
}
