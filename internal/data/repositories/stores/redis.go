package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/infra"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per entity key at <key-prefix><project>:<view>:<serialized key>.
// Hash fields are feature names holding msgpack values, plus config.TimestampField holding unix millis.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	dbType    string
}

func NewRedisStore(connection *infra.RedisConnection, keyPrefix string) (*RedisStore, error) {
	client, err := connection.GetConn()
	if err != nil {
		return nil, err
	}
	meta, err := connection.GetMeta()
	if err != nil {
		return nil, err
	}
	dbType, _ := meta["type"].(infra.DBType)
	return newRedisStore(client.(redis.UniversalClient), keyPrefix, string(dbType)), nil
}

func newRedisStore(client redis.UniversalClient, keyPrefix, dbType string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, dbType: dbType}
}

func (r *RedisStore) Type() string {
	return StoreTypeRedis
}

// MultiGet issues one HMGET per key in a single pipeline.
func (r *RedisStore) MultiGet(ctx context.Context, q *Query) ([]Row, error) {
	if len(q.Keys) == 0 {
		return []Row{}, nil
	}
	keys, err := rowKeys(q, r.keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	fields := make([]string, 0, len(q.Features)+1)
	fields = append(fields, q.Features...)
	fields = append(fields, config.TimestampField)

	tags := metric.BuildTag(metric.NewTag(metric.TagFeatureView, q.View), metric.NewTag(metric.TagStoreType, r.dbType))
	metric.Count("db_retrieve_count", int64(len(keys)), tags)
	start := time.Now()
	cmds := make([]*redis.SliceCmd, len(keys))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HMGet(ctx, key, fields...)
		}
		return nil
	})
	metric.Timing("db_retrieve_latency", time.Since(start), tags)
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: redis hmget for %s: %w", ErrStoreOperation, q.View, err)
	}

	rows := make([]Row, len(keys))
	for i, cmd := range cmds {
		row, err := r.toRow(q, cmd.Val())
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func (r *RedisStore) toRow(q *Query, vals []interface{}) (Row, error) {
	row := Row{}
	if len(vals) != len(q.Features)+1 {
		return row, fmt.Errorf("%w: expected %d fields, got %d", ErrStoreOperation, len(q.Features)+1, len(vals))
	}
	for i, feature := range q.Features {
		raw, ok := vals[i].(string)
		if !ok {
			continue
		}
		v, err := decodeFeature(q, feature, []byte(raw))
		if err != nil {
			return row, err
		}
		if row.Values == nil {
			row.Values = make(map[string]types.Value, len(q.Features))
		}
		row.Values[feature] = v
		row.Found = true
	}
	if ts, ok := vals[len(q.Features)].(string); ok {
		millis, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return row, fmt.Errorf("%w: bad %s %q: %w", ErrStoreOperation, config.TimestampField, ts, err)
		}
		row.EventTime = time.UnixMilli(millis).UTC()
		row.Found = true
	}
	return row, nil
}
