package feature

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/stores"
	handler "github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/internal/transformation"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	redis  *memStore
	scylla *memStore
	h      *RetrieveHandler
}

func newFixture(t *testing.T, storeCB *handler.Handler, opts Options) *fixture {
	return newFixtureWith(testManager(t), storeCB, transformation.NewNativeTransformer(), opts)
}

func newFixtureWith(m config.Manager, storeCB *handler.Handler, transformer transformation.Transformer, opts Options) *fixture {
	f := &fixture{redis: newMemStore(), scylla: newMemStore()}
	f.h = NewRetrieveHandler(m, storeMap{"1": f.redis, "2": f.scylla}, storeCB, transformer, opts)
	return f
}

// blockingTransformer hangs on the listed views until its context is done and runs the rest natively.
type blockingTransformer struct {
	native  transformation.Transformer
	blocked map[string]bool
	started chan struct{}
}

func (b *blockingTransformer) Transform(ctx context.Context, snap *config.Snapshot, view *config.OnDemandFeatureView, input *columnar.Batch) (*columnar.Batch, error) {
	if !b.blocked[view.Name] {
		return b.native.Transform(ctx, snap, view, input)
	}
	if b.started != nil {
		close(b.started)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, nil, Options{MaxParallelism: 4, LookupTimeout: time.Second, TransformTimeout: time.Second})
}

type recordingLogger struct {
	calls int
	last  *Response
}

func (r *recordingLogger) Log(_ *Request, resp *Response) {
	r.calls++
	r.last = resp
}

func TestRetrieve_StoreValueAndOnDemandOutput(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(10)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_a:f1", "odfv_b:out1"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"f1", "out1"}, resp.FeatureNames())
	assert.Equal(t, [][]types.FeatureStatus{
		{types.StatusPresent, types.StatusPresent},
		{types.StatusNotFound, types.StatusNullValue},
	}, statuses(resp))
	rows := resp.Rows()
	assert.True(t, rows[0][0].Value.Equal(types.Int64Value(10)))
	assert.True(t, rows[0][1].Value.Equal(types.Int64Value(20)))
	assert.True(t, rows[1][0].Value.IsNull())
	assert.True(t, rows[1][1].Value.IsNull())

	cols := resp.ToColumns()
	assert.Equal(t, []any{int64(10), nil}, cols["f1"])
	assert.Equal(t, []any{int64(20), nil}, cols["out1"])
}

func TestRetrieve_Idempotent(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(3)})
	req := &Request{
		Features:   []string{"odfv_b:out1", "view_a:f1", "view_a:name"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2), userRow(1)},
	}

	first, err := f.h.Retrieve(context.Background(), req)
	require.NoError(t, err)
	second, err := f.h.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.FeatureNames(), second.FeatureNames())
	assert.Equal(t, statuses(first), statuses(second))
	for i, row := range first.Rows() {
		for j, v := range row {
			assert.True(t, v.Value.Equal(second.Row(i)[j].Value))
		}
	}
	// duplicate entity rows share one key
	assert.Equal(t, int32(4), f.redis.keys.Load())
}

func TestRetrieve_PartialFailure(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(1)})
	f.scylla.err = errors.New("connection refused")

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_c:score", "view_a:f1", "odfv_broken:boom", "odfv_b:out1"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{
		{types.StatusError, types.StatusPresent, types.StatusError, types.StatusPresent},
		{types.StatusError, types.StatusNotFound, types.StatusError, types.StatusNullValue},
	}, statuses(resp))
}

func TestRetrieve_LookupTimeoutIsolated(t *testing.T) {
	f := newFixture(t, nil, Options{MaxParallelism: 4, LookupTimeout: 20 * time.Millisecond, TransformTimeout: time.Second})
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(1)})
	f.scylla.block = true

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_a:f1", "view_c:score"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusPresent, types.StatusError}}, statuses(resp))
}

func TestRetrieve_Cancellation(t *testing.T) {
	f := newFixture(t, nil, Options{MaxParallelism: 4, LookupTimeout: 5 * time.Second, TransformTimeout: time.Second})
	f.scylla.block = true
	logger := &recordingLogger{}
	f.h.featureLog = logger

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	resp, err := f.h.Retrieve(ctx, &Request{
		Features:   []string{"view_a:f1", "view_c:score"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, logger.calls)
}

func TestRetrieve_Staleness(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_stale", userKey(1), time.Now().Add(-2*time.Hour), map[string]types.Value{"s1": types.Int64Value(5)})
	f.redis.put("view_stale", userKey(2), time.Now().Add(-10*time.Second), map[string]types.Value{"s1": types.Int64Value(6)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_stale:s1", "odfv_stale:s2"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{
		{types.StatusOutsideMaxAge, types.StatusNullValue},
		{types.StatusPresent, types.StatusPresent},
	}, statuses(resp))
	assert.True(t, resp.Row(0)[0].Value.IsNull())
	assert.True(t, resp.Row(1)[1].Value.Equal(types.Int64Value(12)))
}

func TestRetrieve_StalenessPerFeature(t *testing.T) {
	f := defaultFixture(t)
	now := time.Now()
	f.redis.putRow("view_stale", userKey(1), stores.Row{
		Found:      true,
		EventTime:  now,
		EventTimes: map[string]time.Time{"s1": now.Add(-2 * time.Hour), "s3": now},
		Values:     map[string]types.Value{"s1": types.Int64Value(5), "s3": types.Int64Value(7)},
	})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_stale:s1", "view_stale:s3", "odfv_stale:s2"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{
		{types.StatusOutsideMaxAge, types.StatusPresent, types.StatusNullValue},
	}, statuses(resp))
	assert.True(t, resp.Row(0)[0].Value.IsNull())
	assert.True(t, resp.Row(0)[1].Value.Equal(types.Int64Value(7)))
}

func TestRetrieve_TransformUsesRequestSnapshot(t *testing.T) {
	before := testSnapshot(t)
	after, err := config.ParseRegistry([]byte(strings.Replace(testRegistry, `"factor": "2"}`, `"factor": "3"}`, 1)))
	require.NoError(t, err)
	m := &config.MockConfigManager{}
	m.On("Snapshot").Return(before, nil).Once()
	m.On("Snapshot").Return(after, nil)

	native := transformation.NewNativeTransformer()
	router := transformation.NewRouter(native, nil)
	f := newFixtureWith(m, nil, router, Options{MaxParallelism: 4, LookupTimeout: time.Second, TransformTimeout: time.Second})
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(10)})

	req := &Request{Features: []string{"odfv_b:out1"}, EntityRows: []types.EntityRow{userRow(1)}}
	resp, err := f.h.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Row(0)[0].Value.Equal(types.Int64Value(20)))

	resp, err = f.h.Retrieve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Row(0)[0].Value.Equal(types.Int64Value(30)))
}

func TestRetrieve_TransformTimeoutIsolated(t *testing.T) {
	transformer := &blockingTransformer{native: transformation.NewNativeTransformer(), blocked: map[string]bool{"odfv_stale": true}}
	f := newFixtureWith(testManager(t), nil, transformer, Options{MaxParallelism: 4, LookupTimeout: time.Second, TransformTimeout: 20 * time.Millisecond})
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(10)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_a:f1", "odfv_stale:s2", "odfv_b:out1"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{
		{types.StatusPresent, types.StatusError, types.StatusPresent},
		{types.StatusNotFound, types.StatusError, types.StatusNullValue},
	}, statuses(resp))
	assert.True(t, resp.Row(0)[2].Value.Equal(types.Int64Value(20)))
}

func TestRetrieve_CancellationDuringTransform(t *testing.T) {
	started := make(chan struct{})
	transformer := &blockingTransformer{native: transformation.NewNativeTransformer(), blocked: map[string]bool{"odfv_b": true}, started: started}
	f := newFixtureWith(testManager(t), nil, transformer, Options{MaxParallelism: 4, LookupTimeout: time.Second, TransformTimeout: 5 * time.Second})
	logger := &recordingLogger{}
	f.h.featureLog = logger

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	start := time.Now()
	resp, err := f.h.Retrieve(ctx, &Request{
		Features:   []string{"view_a:f1", "odfv_b:out1"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Zero(t, logger.calls)
}

func TestRetrieve_StoredNull(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.NullValue(types.ValueTypeInt64)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_a:f1", "view_a:name"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusNullValue, types.StatusNotFound}}, statuses(resp))
}

func TestRetrieve_EntitylessView(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_global", types.DummyEntityId+"=", time.Now(), map[string]types.Value{"total_users": types.Int64Value(42)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_global:total_users"},
		EntityRows: []types.EntityRow{userRow(1), userRow(2), {}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, resp.RowCount())
	for _, row := range resp.Rows() {
		assert.Equal(t, types.StatusPresent, row[0].Status)
		assert.True(t, row[0].Value.Equal(types.Int64Value(42)))
	}
	assert.Equal(t, int32(1), f.redis.keys.Load())
}

func TestRetrieve_RequestData(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(10)})
	f.redis.put("view_a", userKey(2), time.Now(), map[string]types.Value{"f1": types.Int64Value(20)})

	rows := []types.EntityRow{
		{"id": types.Int64Value(1), "bonus": types.Int64Value(5)},
		{"id": types.Int64Value(2)},
		{"id": types.Int32Value(1), "bonus": types.DoubleValue(1)},
	}
	resp, err := f.h.Retrieve(context.Background(), &Request{Features: []string{"odfv_sum:total"}, EntityRows: rows})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusPresent}, {types.StatusNullValue}, {types.StatusPresent}}, statuses(resp))
	assert.True(t, resp.Row(0)[0].Value.Equal(types.Int64Value(15)))
	assert.True(t, resp.Row(2)[0].Value.Equal(types.Int64Value(11)))
}

func TestRetrieve_FeatureService(t *testing.T) {
	f := defaultFixture(t)
	f.redis.put("view_a", userKey(7), time.Now(), map[string]types.Value{"f1": types.Int64Value(1), "name": types.StringValue("ann")})
	f.scylla.put("view_c", userKey(7), time.Now(), map[string]types.Value{"score": types.DoubleValue(0.5)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		FeatureService:   "driver_ranking",
		EntityRows:       []types.EntityRow{userRow(7)},
		FullFeatureNames: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"view_c__score", "view_a__f1", "view_a__name", "odfv_b__out1"}, resp.FeatureNames())
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusPresent, types.StatusPresent, types.StatusPresent, types.StatusPresent}}, statuses(resp))
	assert.True(t, resp.Row(0)[3].Value.Equal(types.Int64Value(2)))
}

func TestRetrieve_OpenCircuitSkipsStore(t *testing.T) {
	cbManager := circuitbreaker.NewManager(handler.OnlineStoreManager)
	cbManager.ActivateCBKey([]string{StoreCircuitBreakerKey("2")})
	cbManager.ForceOpenCB(StoreCircuitBreakerKey("2"))
	f := newFixture(t, handler.NewHandler(cbManager), Options{MaxParallelism: 2, LookupTimeout: time.Second, TransformTimeout: time.Second})
	f.redis.put("view_a", userKey(1), time.Now(), map[string]types.Value{"f1": types.Int64Value(1)})

	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:   []string{"view_c:score", "view_a:f1"},
		EntityRows: []types.EntityRow{userRow(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusError, types.StatusPresent}}, statuses(resp))
	assert.Zero(t, f.scylla.calls.Load())
}

func TestRetrieve_FeatureLogger(t *testing.T) {
	f := defaultFixture(t)
	logger := &recordingLogger{}
	f.h.featureLog = logger

	resp, err := f.h.Retrieve(context.Background(), &Request{Features: []string{"view_a:f1"}, EntityRows: []types.EntityRow{userRow(1)}})
	require.NoError(t, err)
	assert.Equal(t, 1, logger.calls)
	assert.Same(t, resp, logger.last)
}

func TestRetrieve_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  *Request
		want error
	}{
		{
			name: "no features",
			req:  &Request{EntityRows: []types.EntityRow{userRow(1)}},
			want: ErrEmptyRequest,
		},
		{
			name: "features and service",
			req:  &Request{Features: []string{"view_a:f1"}, FeatureService: "driver_ranking"},
			want: ErrAmbiguousRequest,
		},
		{
			name: "unknown service",
			req:  &Request{FeatureService: "nope"},
			want: ErrUnknownFeatureService,
		},
		{
			name: "malformed reference",
			req:  &Request{Features: []string{"view_a.f1"}},
			want: types.ErrInvalidReference,
		},
		{
			name: "unknown view",
			req:  &Request{Features: []string{"nope:f1"}},
			want: ErrUnknownFeatureView,
		},
		{
			name: "unknown feature",
			req:  &Request{Features: []string{"view_a:nope"}},
			want: ErrUnknownFeature,
		},
		{
			name: "missing entity key",
			req:  &Request{Features: []string{"view_a:f1"}, EntityRows: []types.EntityRow{userRow(1), {"other": types.Int64Value(1)}}},
			want: ErrMissingEntityKey,
		},
		{
			name: "missing entity key of a dependency",
			req:  &Request{Features: []string{"odfv_b:out1"}, EntityRows: []types.EntityRow{{}}},
			want: ErrMissingEntityKey,
		},
		{
			name: "mixed entity types",
			req:  &Request{Features: []string{"view_m:rating"}, EntityRows: []types.EntityRow{{"merchant_id": types.StringValue("m1")}, {"merchant_id": types.Int64Value(2)}}},
			want: ErrMixedEntityTypes,
		},
		{
			name: "store feature and on demand output share a name",
			req:  &Request{Features: []string{"view_dup:out1", "odfv_b:out1"}, EntityRows: []types.EntityRow{userRow(1)}, FullFeatureNames: true},
			want: ErrConflictingFeatureName,
		},
		{
			name: "same feature name from two views",
			req:  &Request{Features: []string{"view_a:f1", "view_dup:f1"}, EntityRows: []types.EntityRow{userRow(1)}},
			want: ErrConflictingFeatureName,
		},
		{
			name: "join key that cannot be coerced",
			req:  &Request{Features: []string{"view_a:f1"}, EntityRows: []types.EntityRow{{"id": types.StringValue("not-a-number")}}},
			want: ErrInvalidRequestValue,
		},
		{
			name: "join key of a dependency that cannot be coerced",
			req:  &Request{Features: []string{"odfv_b:out1"}, EntityRows: []types.EntityRow{{"id": types.DoubleValue(1.5)}}},
			want: ErrInvalidRequestValue,
		},
		{
			name: "request value of the wrong kind",
			req:  &Request{Features: []string{"odfv_sum:total"}, EntityRows: []types.EntityRow{{"id": types.Int64Value(1), "bonus": types.StringValue("x")}}},
			want: ErrInvalidRequestValue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := defaultFixture(t)
			resp, err := f.h.Retrieve(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, resp)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsRequestError(err))
			assert.Zero(t, f.redis.calls.Load())
			assert.Zero(t, f.scylla.calls.Load())
		})
	}
}

func TestRetrieve_FullNamesAllowSharedFeatureNames(t *testing.T) {
	f := defaultFixture(t)
	resp, err := f.h.Retrieve(context.Background(), &Request{
		Features:         []string{"view_a:f1", "view_dup:f1", "view_a:f1"},
		EntityRows:       []types.EntityRow{userRow(1)},
		FullFeatureNames: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"view_a__f1", "view_dup__f1", "view_a__f1"}, resp.FeatureNames())
	assert.Equal(t, [][]types.FeatureStatus{{types.StatusNotFound, types.StatusNotFound, types.StatusNotFound}}, statuses(resp))
}

func TestRetrieve_ZeroRows(t *testing.T) {
	f := defaultFixture(t)
	resp, err := f.h.Retrieve(context.Background(), &Request{Features: []string{"view_a:f1", "odfv_b:out1"}})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.RowCount())
	assert.Equal(t, []string{"f1", "out1"}, resp.FeatureNames())
	assert.Zero(t, f.redis.calls.Load())
}
