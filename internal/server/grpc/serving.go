package grpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/internal/server/api"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServingServiceName      = "feast.serving.ServingService"
	GetOnlineFeaturesMethod = "/" + ServingServiceName + "/GetOnlineFeatures"

	requestIdHeader = "x-request-id"
)

// ServingServiceServer carries the online request and response as JSON shaped structs, the same
// documents the HTTP surface accepts and returns.
type ServingServiceServer interface {
	GetOnlineFeatures(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

var ServingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServingServiceName,
	HandlerType: (*ServingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetOnlineFeatures",
			Handler:    getOnlineFeaturesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "serving.proto",
}

func RegisterServingServiceServer(s grpc.ServiceRegistrar, srv ServingServiceServer) {
	s.RegisterService(&ServingServiceDesc, srv)
}

func getOnlineFeaturesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ServingServiceServer).GetOnlineFeatures(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetOnlineFeaturesMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ServingServiceServer).GetOnlineFeatures(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type ServingService struct {
	retriever api.Retriever
}

func NewServingService(retriever api.Retriever) *ServingService {
	return &ServingService{retriever: retriever}
}

func (s *ServingService) GetOnlineFeatures(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	online, err := decodeOnlineRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if online.RequestId == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(requestIdHeader); len(ids) > 0 {
				online.RequestId = ids[0]
			}
		}
	}
	req, err := online.ToRequest()
	if err != nil {
		return nil, api.Status(err)
	}
	resp, err := s.retriever.Retrieve(ctx, req)
	if err != nil {
		if api.Code(err) == codes.Internal {
			log.Error().Err(err).Msg("online feature retrieval failed")
		}
		return nil, api.Status(err)
	}
	out, err := encodeOnlineResponse(api.FromResponse(resp))
	if err != nil {
		log.Error().Err(err).Msg("failed to encode online response")
		return nil, status.Error(codes.Internal, "failed to serialize response")
	}
	return out, nil
}

func decodeOnlineRequest(in *structpb.Struct) (*api.OnlineRequest, error) {
	raw, err := protojson.Marshal(in)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out api.OnlineRequest
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	return &out, nil
}

// struct numbers are doubles, so int64 values beyond 2^53 lose precision on this surface
func encodeOnlineResponse(resp *api.OnlineResponse) (*structpb.Struct, error) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
