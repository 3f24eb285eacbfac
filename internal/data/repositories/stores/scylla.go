package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/infra"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/gocql/gocql"
)

const scyllaRetrieveQuery = "SELECT entity_key, feature_name, value, event_ts FROM %s.%s WHERE entity_key IN ? AND feature_name IN ?"

// ScyllaStore reads a narrow table keyed by (entity_key, feature_name). entity_key is
// <project>:<view>:<serialized key>, so several views can share one table.
type ScyllaStore struct {
	session  *gocql.Session
	keySpace string
	table    string
	query    string
}

func NewScyllaStore(table string, connection *infra.ScyllaClusterConnection) (*ScyllaStore, error) {
	meta, err := connection.GetMeta()
	if err != nil {
		return nil, err
	}
	session, err := connection.GetConn()
	if err != nil {
		return nil, err
	}
	keySpace, _ := meta["keyspace"].(string)
	return &ScyllaStore{
		session:  session.(*gocql.Session),
		keySpace: keySpace,
		table:    table,
		query:    fmt.Sprintf(scyllaRetrieveQuery, keySpace, table),
	}, nil
}

func (s *ScyllaStore) Type() string {
	return StoreTypeScylla
}

type scyllaCell struct {
	entityKey string
	feature   string
	value     []byte
	eventTs   time.Time
}

func (s *ScyllaStore) MultiGet(ctx context.Context, q *Query) ([]Row, error) {
	if len(q.Keys) == 0 {
		return []Row{}, nil
	}
	keys, err := rowKeys(q, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	tags := metric.BuildTag(metric.NewTag(metric.TagFeatureView, q.View), metric.NewTag(metric.TagStoreType, StoreTypeScylla))
	metric.Count("db_retrieve_count", int64(len(keys)), tags)
	start := time.Now()
	iter := s.session.Query(s.query, keys, q.Features).WithContext(ctx).Iter()
	var (
		cells []scyllaCell
		cell  scyllaCell
	)
	for iter.Scan(&cell.entityKey, &cell.feature, &cell.value, &cell.eventTs) {
		cells = append(cells, cell)
		cell = scyllaCell{}
	}
	err = iter.Close()
	metric.Timing("db_retrieve_latency", time.Since(start), tags)
	if err != nil {
		return nil, fmt.Errorf("%w: scylla select for %s: %w", ErrStoreOperation, q.View, err)
	}
	return assembleRows(q, keys, cells)
}

// assembleRows groups cells by entity key. Every feature keeps its own event_ts; the row event time
// is the latest of them.
func assembleRows(q *Query, keys []string, cells []scyllaCell) ([]Row, error) {
	rows := make([]Row, len(keys))
	position := make(map[string][]int, len(keys))
	for i, k := range keys {
		position[k] = append(position[k], i)
	}
	for _, c := range cells {
		v, err := decodeFeature(q, c.feature, c.value)
		if err != nil {
			return nil, err
		}
		for _, i := range position[c.entityKey] {
			row := &rows[i]
			if row.Values == nil {
				row.Values = make(map[string]types.Value, len(q.Features))
			}
			row.Values[c.feature] = v
			row.Found = true
			if c.eventTs.IsZero() {
				continue
			}
			if row.EventTimes == nil {
				row.EventTimes = make(map[string]time.Time, len(q.Features))
			}
			row.EventTimes[c.feature] = c.eventTs.UTC()
			if c.eventTs.After(row.EventTime) {
				row.EventTime = c.eventTs.UTC()
			}
		}
	}
	return rows, nil
}
