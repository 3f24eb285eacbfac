package transformation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
)

var (
	ErrUnknownOnDemandView = errors.New("unknown on demand feature view")
	ErrUnknownUdf          = errors.New("unknown udf")
	ErrInvalidUdfArgs      = errors.New("invalid udf arguments")
	ErrCircuitOpen         = errors.New("circuit breaker open")
)

// Transformer evaluates one on demand feature view over a row-aligned input batch. The view and
// snap are the ones the caller resolved the request against; implementations must not re-read
// the registry. The returned batch holds the view's output columns with one value per input row.
type Transformer interface {
	Transform(ctx context.Context, snap *config.Snapshot, view *config.OnDemandFeatureView, input *columnar.Batch) (*columnar.Batch, error)
}

// ViewProvider hands out the registry snapshot the transformation service resolves views against.
// config.Manager satisfies it.
type ViewProvider interface {
	Snapshot() (*config.Snapshot, error)
}

func lookupView(views ViewProvider, name string) (*config.Snapshot, *config.OnDemandFeatureView, error) {
	snap, err := views.Snapshot()
	if err != nil {
		return nil, nil, err
	}
	odfv, ok := snap.OnDemandFeatureView(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownOnDemandView, name)
	}
	return snap, odfv, nil
}
