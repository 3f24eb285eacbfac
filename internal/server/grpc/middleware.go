package grpc

import (
	"context"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	grpcRequestsTotal  = "grpc_server_requests_total"
	grpcRequestLatency = "grpc_server_request_latency"

	healthServicePrefix = "/grpc.health.v1.Health/"
	anonymousCaller     = "anonymous"
)

// ServerInterceptor authenticates callers against the registered clients and tracks request metrics.
// Health checks skip authentication.
func ServerInterceptor(clients api.ClientRegistry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}
		startTime := time.Now()
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "mandatory metadata are missing")
		}
		callerId := md.Get(api.CallerIdHeader)
		if len(callerId) == 0 {
			return nil, status.Errorf(codes.InvalidArgument, "%s header is missing", api.CallerIdHeader)
		}
		authHeader := md.Get(api.AuthTokenHeader)
		if len(authHeader) == 0 {
			return nil, status.Errorf(codes.InvalidArgument, "%s header is missing", api.AuthTokenHeader)
		}
		if !api.IsAuthorized(clients, callerId[0], authHeader[0]) {
			return nil, status.Errorf(codes.Unauthenticated, "Invalid auth token")
		}

		h, err := handler(ctx, req)
		trackGenericMetrics(startTime, info, callerId[0], status.Code(err))
		return h, err
	}
}

// MetricsInterceptor tracks request metrics without authenticating. Used by internal services.
func MetricsInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	startTime := time.Now()
	h, err := handler(ctx, req)
	trackGenericMetrics(startTime, info, anonymousCaller, status.Code(err))
	return h, err
}

func RecoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Panic occurred in method %s: %v\n%s", info.FullMethod, r, debug.Stack())
			err = status.Errorf(codes.Internal, "panic recovered: %v", r)
		}
	}()
	resp, err = handler(ctx, req)

	return resp, err
}

func trackGenericMetrics(startTime time.Time, info *grpc.UnaryServerInfo, callerId string, statusCode codes.Code) {
	tags := metric.BuildTag(
		metric.NewTag(metric.TagMethod, info.FullMethod),
		metric.NewTag(metric.TagCallerId, callerId),
		metric.NewTag(metric.TagGrpcStatusCode, statusCode.String()),
		metric.NewTag(metric.TagCommunicationProtocol, metric.TagValueCommunicationProtocolGrpc),
	)
	metric.Incr(grpcRequestsTotal, tags)
	metric.Timing(grpcRequestLatency, time.Since(startTime), tags)
}
