package gosdk

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	servergrpc "github.com/Meesho/BharatMLStack/feature-server/internal/server/grpc"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type staticClients map[string]string

func (c staticClients) GetAllRegisteredClients() map[string]string { return c }

// echoRetriever returns the entity id doubled for every row, NOT_FOUND for odd ids.
type echoRetriever struct {
	mu    sync.Mutex
	calls int
	fail  int
}

func (e *echoRetriever) Retrieve(_ context.Context, req *feature.Request) (*feature.Response, error) {
	e.mu.Lock()
	e.calls++
	if e.fail > 0 {
		e.fail--
		e.mu.Unlock()
		return nil, status.Error(codes.Unavailable, "warming up")
	}
	e.mu.Unlock()

	rows := make([][]feature.FeatureValue, len(req.EntityRows))
	for i, row := range req.EntityRows {
		id, _ := row["id"].AsInt64()
		if id%2 == 1 {
			rows[i] = []feature.FeatureValue{{Status: types.StatusNotFound}}
			continue
		}
		rows[i] = []feature.FeatureValue{{Value: types.Int64Value(id * 2), Status: types.StatusPresent}}
	}
	return feature.NewResponse([]string{"f1"}, []types.FeatureReference{{View: "view_a", Feature: "f1"}}, rows), nil
}

func newTestClient(t *testing.T, retriever *echoRetriever, cfg *Config) *ClientV1 {
	t.Helper()
	srv := servergrpc.NewServer(servergrpc.ServerInterceptor(staticClients{"ranker": "secret"}))
	servergrpc.RegisterServingServiceServer(srv.GRPCServer, servergrpc.NewServingService(retriever))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.GRPCServer.Serve(lis) }()
	t.Cleanup(srv.Shutdown)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClientV1FromConn(conn, cfg)
}

func TestGetOnlineFeatures_BatchesPreserveRowOrder(t *testing.T) {
	retriever := &echoRetriever{}
	client := newTestClient(t, retriever, &Config{CallerId: "ranker", CallerToken: "secret", BatchSize: 2, DeadLine: time.Second})

	res, err := client.GetOnlineFeatures(context.Background(), &Query{
		Features: []string{"view_a:f1"},
		Entities: map[string][]any{"id": {2, 3, 4, 5, 6}},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, retriever.calls)
	assert.Equal(t, []string{"f1"}, res.Metadata.FeatureNames)
	require.Len(t, res.Results, 1)
	assert.Equal(t, []any{4.0, nil, 8.0, nil, 12.0}, res.Results[0].Values)
	assert.Equal(t, []string{"PRESENT", "NOT_FOUND", "PRESENT", "NOT_FOUND", "PRESENT"}, res.Results[0].Statuses)
}

func TestGetOnlineFeatures_RetriesUnavailable(t *testing.T) {
	retriever := &echoRetriever{fail: 1}
	client := newTestClient(t, retriever, &Config{CallerId: "ranker", CallerToken: "secret", Retries: 2, DeadLine: time.Second})

	res, err := client.GetOnlineFeatures(context.Background(), &Query{
		Features: []string{"view_a:f1"},
		Entities: map[string][]any{"id": {2}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, retriever.calls)
	assert.Equal(t, []any{4.0}, res.Results[0].Values)
}

func TestGetOnlineFeatures_AuthFailureIsNotRetried(t *testing.T) {
	retriever := &echoRetriever{}
	client := newTestClient(t, retriever, &Config{CallerId: "ranker", CallerToken: "wrong", Retries: 3, DeadLine: time.Second})

	_, err := client.GetOnlineFeatures(context.Background(), &Query{
		Features: []string{"view_a:f1"},
		Entities: map[string][]any{"id": {2}},
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
	assert.Zero(t, retriever.calls)
}

func TestAdapter_BatchQuery(t *testing.T) {
	a := &Adapter{}
	q := &Query{Features: []string{"v:f"}, Entities: map[string][]any{"id": {1, 2, 3}, "m": {"a", "b", "c"}}}

	batches, err := a.BatchQuery(q, 2)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []any{1, 2}, batches[0].Entities["id"])
	assert.Equal(t, []any{"c"}, batches[1].Entities["m"])
	assert.Equal(t, q.Features, batches[1].Features)

	whole, err := a.BatchQuery(q, 0)
	require.NoError(t, err)
	assert.Len(t, whole, 1)

	_, err = a.BatchQuery(&Query{Entities: map[string][]any{"id": {1}, "m": {}}}, 2)
	assert.ErrorIs(t, err, ErrRaggedEntities)
}
