package transformation

import (
	"context"
	"errors"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// TransformationServiceServer is the server side of the transformation contract.
type TransformationServiceServer interface {
	TransformFeatures(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

var TransformationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TransformationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "TransformFeatures",
			Handler:    transformFeaturesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "transformation_service.proto",
}

func RegisterTransformationServiceServer(s grpc.ServiceRegistrar, srv TransformationServiceServer) {
	s.RegisterService(&TransformationServiceDesc, srv)
}

func transformFeaturesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TransformationServiceServer).TransformFeatures(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: TransformMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TransformationServiceServer).TransformFeatures(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Service evaluates views in process for remote callers against its own registry snapshot. It
// always uses the native transformer so a misconfigured registry cannot bounce calls between services.
type Service struct {
	views  ViewProvider
	native *NativeTransformer
}

func NewService(views ViewProvider, native *NativeTransformer) *Service {
	return &Service{views: views, native: native}
}

func (s *Service) TransformFeatures(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	views := md.Get(ViewMetadataKey)
	if len(views) == 0 || views[0] == "" {
		return nil, status.Errorf(codes.InvalidArgument, "missing %s metadata", ViewMetadataKey)
	}
	view := views[0]
	input, err := columnar.Decode(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode input for %s: %v", view, err)
	}
	snap, odfv, err := lookupView(s.views, view)
	var out *columnar.Batch
	if err == nil {
		out, err = s.native.Transform(ctx, snap, odfv, input)
	}
	if err != nil {
		log.Error().Err(err).Msgf("transformation of %s failed", view)
		switch {
		case errors.Is(err, ErrUnknownOnDemandView), errors.Is(err, ErrUnknownUdf):
			return nil, status.Error(codes.NotFound, err.Error())
		case errors.Is(err, ErrInvalidUdfArgs):
			return nil, status.Error(codes.FailedPrecondition, err.Error())
		case errors.Is(err, context.DeadlineExceeded):
			return nil, status.Error(codes.DeadlineExceeded, err.Error())
		case errors.Is(err, context.Canceled):
			return nil, status.Error(codes.Canceled, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	payload, err := columnar.Encode(out)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode output for %s: %v", view, err)
	}
	return wrapperspb.Bytes(payload), nil
}
