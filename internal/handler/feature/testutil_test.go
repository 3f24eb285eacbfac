package feature

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/stores"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/stretchr/testify/require"
)

const testRegistry = `{
  "project": "demo",
  "entities": {
    "user": {"join-key": "id", "value-type": "INT64"},
    "merchant": {"join-key": "merchant_id", "value-type": "STRING"}
  },
  "storage": {"stores": {
    "1": {"db-type": "redis_standalone", "conf-id": 1},
    "2": {"db-type": "scylla", "conf-id": 1, "table": "scores"}
  }},
  "feature-views": {
    "view_a": {"entities": ["user"], "store-id": "1", "online": true,
      "features": [{"name": "f1", "value-type": "INT64"}, {"name": "name", "value-type": "STRING"}]},
    "view_c": {"entities": ["user"], "store-id": "2", "online": true,
      "features": [{"name": "score", "value-type": "DOUBLE"}]},
    "view_m": {"entities": ["merchant"], "store-id": "1", "online": true,
      "features": [{"name": "rating", "value-type": "DOUBLE"}]},
    "view_stale": {"entities": ["user"], "store-id": "1", "online": true, "ttl-in-seconds": 60,
      "features": [{"name": "s1", "value-type": "INT64"}, {"name": "s3", "value-type": "INT64"}]},
    "view_global": {"entities": [], "store-id": "1", "online": true,
      "features": [{"name": "total_users", "value-type": "INT64"}]},
    "view_dup": {"entities": ["user"], "store-id": "1", "online": true,
      "features": [{"name": "f1", "value-type": "INT64"}, {"name": "out1", "value-type": "INT64"}]}
  },
  "on-demand-feature-views": {
    "odfv_b": {
      "sources": [{"feature-view": "view_a", "features": ["f1"]}],
      "features": [{"name": "out1", "value-type": "INT64"}],
      "udf": "multiply", "udf-args": {"input": "view_a__f1", "factor": "2"}
    },
    "odfv_sum": {
      "sources": [{"feature-view": "view_a", "features": ["f1"]}],
      "request-sources": [{"name": "req", "schema": [{"name": "bonus", "value-type": "INT64"}]}],
      "features": [{"name": "total", "value-type": "INT64"}],
      "udf": "sum", "udf-args": {"inputs": "view_a__f1,bonus"}
    },
    "odfv_stale": {
      "sources": [{"feature-view": "view_stale", "features": ["s1"]}],
      "features": [{"name": "s2", "value-type": "INT64"}],
      "udf": "multiply", "udf-args": {"input": "view_stale__s1", "factor": "2"}
    },
    "odfv_broken": {
      "sources": [{"feature-view": "view_c", "features": ["score"]}],
      "features": [{"name": "boom", "value-type": "DOUBLE"}],
      "udf": "does_not_exist"
    }
  },
  "feature-services": {
    "driver_ranking": {"projections": [
      {"feature-view": "view_c", "features": ["score"]},
      {"feature-view": "view_a"},
      {"feature-view": "odfv_b", "features": ["out1"]}
    ]}
  }
}`

func testSnapshot(t *testing.T) *config.Snapshot {
	snap, err := config.ParseRegistry([]byte(testRegistry))
	require.NoError(t, err)
	return snap
}

func testManager(t *testing.T) *config.MockConfigManager {
	m := &config.MockConfigManager{}
	m.On("Snapshot").Return(testSnapshot(t), nil)
	return m
}

func userRow(id int64) types.EntityRow {
	return types.EntityRow{"id": types.Int64Value(id)}
}

func userKey(id int64) string {
	s, _ := types.EntityKey{JoinKeys: []string{"id"}, Values: []types.Value{types.Int64Value(id)}}.Serialize()
	return s
}

// memStore serves rows from a map of view -> serialized entity key -> row.
type memStore struct {
	rows  map[string]map[string]stores.Row
	err   error
	block bool
	calls atomic.Int32
	keys  atomic.Int32
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]map[string]stores.Row)}
}

func (m *memStore) put(view, key string, eventTime time.Time, values map[string]types.Value) {
	if m.rows[view] == nil {
		m.rows[view] = make(map[string]stores.Row)
	}
	m.rows[view][key] = stores.Row{Found: true, EventTime: eventTime, Values: values}
}

func (m *memStore) putRow(view, key string, row stores.Row) {
	if m.rows[view] == nil {
		m.rows[view] = make(map[string]stores.Row)
	}
	m.rows[view][key] = row
}

func (m *memStore) MultiGet(ctx context.Context, q *stores.Query) ([]stores.Row, error) {
	m.calls.Add(1)
	m.keys.Add(int32(len(q.Keys)))
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	out := make([]stores.Row, len(q.Keys))
	for i, k := range q.Keys {
		s, err := k.Serialize()
		if err != nil {
			return nil, err
		}
		row, ok := m.rows[q.View][s]
		if !ok {
			continue
		}
		values := make(map[string]types.Value, len(q.Features))
		for _, f := range q.Features {
			if v, ok := row.Values[f]; ok {
				values[f] = v
			}
		}
		out[i] = stores.Row{Found: true, EventTime: row.EventTime, EventTimes: row.EventTimes, Values: values}
	}
	return out, nil
}

func (m *memStore) Type() string { return "memory" }

type storeMap map[string]stores.Store

func (s storeMap) GetStore(storeId string) (stores.Store, error) {
	st, ok := s[storeId]
	if !ok {
		return nil, fmt.Errorf("store %s not found", storeId)
	}
	return st, nil
}

func statuses(resp *Response) [][]types.FeatureStatus {
	out := make([][]types.FeatureStatus, resp.RowCount())
	for i, row := range resp.Rows() {
		out[i] = make([]types.FeatureStatus, len(row))
		for j, v := range row {
			out[i][j] = v.Status
		}
	}
	return out
}
