package transformation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/grpcclient"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName     = "feast.serving.TransformationService"
	TransformMethod = "/" + ServiceName + "/TransformFeatures"
	// ViewMetadataKey carries the on demand view name next to the Arrow payload.
	ViewMetadataKey = "x-on-demand-feature-view"
)

// RemoteTransformer ships the input batch as Arrow IPC to a transformation service.
type RemoteTransformer struct {
	client *grpcclient.GRPCClient
	cb     *circuitbreaker.Handler
	cbKey  string
}

func NewRemoteTransformer(client *grpcclient.GRPCClient, cb *circuitbreaker.Handler, serviceId string) *RemoteTransformer {
	return &RemoteTransformer{client: client, cb: cb, cbKey: CircuitBreakerKey(serviceId)}
}

// CircuitBreakerKey is the breaker key of one transformation service.
func CircuitBreakerKey(serviceId string) string {
	return "transformation_service_" + serviceId
}

func (r *RemoteTransformer) Transform(ctx context.Context, _ *config.Snapshot, view *config.OnDemandFeatureView, input *columnar.Batch) (*columnar.Batch, error) {
	if view == nil {
		return nil, ErrUnknownOnDemandView
	}
	if !r.cb.IsCallAllowed(r.cbKey) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, r.cbKey)
	}
	payload, err := columnar.Encode(input)
	if err != nil {
		return nil, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, ViewMetadataKey, view.Name)
	reply := &wrapperspb.BytesValue{}
	err = r.client.Invoke(ctx, TransformMethod, wrapperspb.Bytes(payload), reply)
	if errors.Is(ctx.Err(), context.Canceled) {
		// the caller went away, the service did nothing wrong
		return nil, ctx.Err()
	}
	r.cb.Record(r.cbKey, err)
	if err != nil {
		return nil, fmt.Errorf("transform %s remotely: %w", view.Name, err)
	}
	out, err := columnar.Decode(reply.GetValue())
	if err != nil {
		return nil, fmt.Errorf("decode %s output: %w", view.Name, err)
	}
	return out, nil
}

func (r *RemoteTransformer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
