package grpcclient

import (
	"context"
	"crypto/tls"
	"strconv"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

const roundRobinServiceConfig = `{"loadBalancingPolicy":"round_robin"}`

// GRPCClient wraps a client connection and reports external call metrics for every unary call.
type GRPCClient struct {
	Conn                *grpc.ClientConn
	DeadLine            time.Duration
	externalServiceName string
}

func NewConnFromConfig(config *Config, externalServiceName string, opts ...grpc.DialOption) (*GRPCClient, error) {
	creds := insecure.NewCredentials()
	if !config.PlainText {
		creds = credentials.NewTLS(&tls.Config{InsecureSkipVerify: true})
	}
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithDefaultServiceConfig(roundRobinServiceConfig),
	}, opts...)
	conn, err := grpc.NewClient(config.Target(), dialOpts...)
	if err != nil {
		return nil, err
	}
	return NewClient(conn, config.DeadLine, externalServiceName), nil
}

func NewClient(conn *grpc.ClientConn, deadline time.Duration, externalServiceName string) *GRPCClient {
	return &GRPCClient{Conn: conn, DeadLine: deadline, externalServiceName: externalServiceName}
}

// Invoke applies the client deadline unless ctx already expires sooner.
func (c *GRPCClient) Invoke(ctx context.Context, method string, args any, reply any, opts ...grpc.CallOption) error {
	if c.DeadLine > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DeadLine)
		defer cancel()
	}
	startTime := time.Now()
	err := c.Conn.Invoke(ctx, method, args, reply, opts...)
	code := status.Code(err)
	tags := BuildExternalGRPCServiceTags(c.externalServiceName, method, int(code))
	metric.Timing(metric.ExternalApiRequestLatency, time.Since(startTime), tags)
	metric.Incr(metric.ExternalApiRequestCount, tags)
	return err
}

func (c *GRPCClient) Close() error {
	return c.Conn.Close()
}

func BuildExternalGRPCServiceTags(service, method string, statusCode int) []string {
	return metric.BuildTag(
		metric.NewTag(metric.TagCommunicationProtocol, metric.TagValueCommunicationProtocolGrpc),
		metric.NewTag(metric.TagExternalService, service),
		metric.NewTag(metric.TagMethod, method),
		metric.NewTag(metric.TagGrpcStatusCode, strconv.Itoa(statusCode)),
	)
}
