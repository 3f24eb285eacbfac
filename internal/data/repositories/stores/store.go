package stores

import (
	"context"
	"strings"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

const (
	StoreTypeRedis  = "redis"
	StoreTypeScylla = "scylla"
	StoreTypeCached = "cached"
)

// Store is the multi-get capability every online store backend offers.
type Store interface {
	// MultiGet returns one Row per query key, in key order. Keys without data come back with Found unset.
	MultiGet(ctx context.Context, q *Query) ([]Row, error)
	Type() string
}

type Query struct {
	Project  string
	View     string
	Features []string
	Keys     []types.EntityKey
	// ValueTypes holds the declared type of every feature in Features.
	ValueTypes map[string]types.ValueType
	// CacheTtlInSeconds enables the in-memory cache for this query when positive.
	CacheTtlInSeconds  int
	CacheJitterPercent int
}

// Row is the stored state of one entity key. A feature absent from Values was never written.
// Stores that track write time per feature fill EventTimes; EventTime is then the latest of them.
type Row struct {
	Found      bool
	EventTime  time.Time
	EventTimes map[string]time.Time
	Values     map[string]types.Value
}

// FeatureEventTime is the write time of one feature, falling back to the row event time.
func (r Row) FeatureEventTime(feature string) time.Time {
	if t, ok := r.EventTimes[feature]; ok {
		return t
	}
	return r.EventTime
}

// rowKey is the storage key of one (project, view, entity key) triple, without any store prefix.
func rowKey(project, view string, key types.EntityKey) (string, error) {
	serialized, err := key.Serialize()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(len(project) + len(view) + len(serialized) + 2)
	sb.WriteString(project)
	sb.WriteByte(':')
	sb.WriteString(view)
	sb.WriteByte(':')
	sb.WriteString(serialized)
	return sb.String(), nil
}

func rowKeys(q *Query, prefix string) ([]string, error) {
	keys := make([]string, len(q.Keys))
	for i, k := range q.Keys {
		rk, err := rowKey(q.Project, q.View, k)
		if err != nil {
			return nil, err
		}
		keys[i] = prefix + rk
	}
	return keys, nil
}

func decodeFeature(q *Query, feature string, raw []byte) (types.Value, error) {
	t, ok := q.ValueTypes[feature]
	if !ok {
		return types.Value{}, &FeatureError{View: q.View, Feature: feature, Err: ErrUnknownValueType}
	}
	v, err := types.DecodeValue(t, raw)
	if err != nil {
		return types.Value{}, &FeatureError{View: q.View, Feature: feature, Err: err}
	}
	return v, nil
}
