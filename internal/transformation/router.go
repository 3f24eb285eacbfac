package transformation

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/ds"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/grpcclient"
	"github.com/rs/zerolog/log"
)

const transformationServicePrefix = "TRANSFORMATION_SERVICE_"

// RemoteDialer opens the transformer of one registry transformation service.
type RemoteDialer func(serviceId string, ts config.TransformationService) (Transformer, error)

// Router sends native views to the in-process transformer and remote views to the
// transformation service they name. Remote clients are opened on first use and reopened
// when the service config changes.
type Router struct {
	native  Transformer
	dial    RemoteDialer
	dialMu  sync.Mutex
	remotes *ds.SyncMap[string, remoteEntry]
}

type remoteEntry struct {
	conf        config.TransformationService
	transformer Transformer
}

func NewRouter(native Transformer, dial RemoteDialer) *Router {
	return &Router{
		native:  native,
		dial:    dial,
		remotes: ds.NewSyncMap[string, remoteEntry](),
	}
}

func (r *Router) Transform(ctx context.Context, snap *config.Snapshot, view *config.OnDemandFeatureView, input *columnar.Batch) (*columnar.Batch, error) {
	if view == nil {
		return nil, ErrUnknownOnDemandView
	}
	if view.Mode != config.ModeRemote {
		return r.native.Transform(ctx, snap, view, input)
	}
	ts, ok := snap.TransformationService(view.TransformationServiceId)
	if !ok {
		return nil, fmt.Errorf("view %s: unknown transformation service %s", view.Name, view.TransformationServiceId)
	}
	remote, err := r.remote(view.TransformationServiceId, *ts)
	if err != nil {
		return nil, err
	}
	return remote.Transform(ctx, snap, view, input)
}

func (r *Router) remote(serviceId string, ts config.TransformationService) (Transformer, error) {
	if e, ok := r.remotes.Get(serviceId); ok && e.conf == ts {
		return e.transformer, nil
	}
	r.dialMu.Lock()
	defer r.dialMu.Unlock()
	prev, found := r.remotes.Get(serviceId)
	if found && prev.conf == ts {
		return prev.transformer, nil
	}
	t, err := r.dial(serviceId, ts)
	if err != nil {
		return nil, fmt.Errorf("open transformation service %s: %w", serviceId, err)
	}
	r.remotes.Set(serviceId, remoteEntry{conf: ts, transformer: t})
	if found {
		closeTransformer(serviceId, prev.transformer)
	}
	return t, nil
}

// closeTransformer releases a replaced remote. Calls already holding it may still fail with a
// closed connection error, which surfaces as ERROR for that request only.
func closeTransformer(serviceId string, t Transformer) {
	c, ok := t.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Msgf("closing replaced transformation service %s", serviceId)
	}
}

// GRPCDialer builds remote transformers from TRANSFORMATION_SERVICE_<conf-id>_* env keys.
// A registry timeout overrides the env deadline.
func GRPCDialer(cb *circuitbreaker.Handler) RemoteDialer {
	return func(serviceId string, ts config.TransformationService) (Transformer, error) {
		cfg, err := grpcclient.BuildConfigFromEnv(transformationServicePrefix + strconv.Itoa(ts.ConfId))
		if err != nil {
			return nil, err
		}
		if ts.TimeoutInMs > 0 {
			cfg.DeadLine = time.Duration(ts.TimeoutInMs) * time.Millisecond
		}
		client, err := grpcclient.NewConnFromConfig(cfg, "transformation_service_"+serviceId)
		if err != nil {
			return nil, err
		}
		log.Info().Msgf("transformation service %s connected to %s", serviceId, cfg.Target())
		return NewRemoteTransformer(client, cb, serviceId), nil
	}
}
