package grpcclient

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestBuildConfigFromEnv(t *testing.T) {
	viper.Reset()
	_, err := BuildConfigFromEnv("TS_1")
	assert.Error(t, err)

	viper.Set("TS_1_HOST", "transform.local")
	viper.Set("TS_1_PORT", "8081")
	cfg, err := BuildConfigFromEnv("TS_1")
	require.NoError(t, err)
	assert.Equal(t, "transform.local:8081", cfg.Target())
	assert.Equal(t, defaultDeadline, cfg.DeadLine)
	assert.False(t, cfg.PlainText)

	viper.Set("TS_1_DEADLINE_IN_MS", "75")
	viper.Set("TS_1_PLAIN_TEXT", "true")
	cfg, err = BuildConfigFromEnv("TS_1")
	require.NoError(t, err)
	assert.Equal(t, 75*time.Millisecond, cfg.DeadLine)
	assert.True(t, cfg.PlainText)
}

func dialBufconn(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	return conn
}

func TestGRPCClient_Invoke(t *testing.T) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus("transform", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	client := NewClient(dialBufconn(t, srv), time.Second, "transform")
	defer client.Close()

	reply := &healthpb.HealthCheckResponse{}
	err := client.Invoke(context.Background(), "/grpc.health.v1.Health/Check", &healthpb.HealthCheckRequest{Service: "transform"}, reply)
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, reply.Status)

	err = client.Invoke(context.Background(), "/grpc.health.v1.Health/Check", &healthpb.HealthCheckRequest{Service: "missing"}, reply)
	assert.Equal(t, codes.NotFound, status.Code(err))
}
