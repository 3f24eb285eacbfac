package transformation

import (
	"context"
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
)

// UDF computes the outputs of an on demand view. It must be deterministic and must not retain input.
type UDF func(input *columnar.Batch, view *config.OnDemandFeatureView) (*columnar.Batch, error)

// NativeTransformer runs registered UDFs in process. A view names its UDF in udf, or falls back to
// a UDF registered under the view name.
type NativeTransformer struct {
	udfs map[string]UDF
}

func NewNativeTransformer() *NativeTransformer {
	t := &NativeTransformer{udfs: make(map[string]UDF, len(builtins))}
	for name, udf := range builtins {
		t.udfs[name] = udf
	}
	return t
}

// Register adds or replaces a UDF. Registration happens before serving starts.
func (t *NativeTransformer) Register(name string, udf UDF) {
	t.udfs[name] = udf
}

func (t *NativeTransformer) Transform(ctx context.Context, _ *config.Snapshot, view *config.OnDemandFeatureView, input *columnar.Batch) (*columnar.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if view == nil {
		return nil, ErrUnknownOnDemandView
	}
	name := view.Udf
	if name == "" {
		name = view.Name
	}
	udf, ok := t.udfs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s for view %s", ErrUnknownUdf, name, view.Name)
	}
	return udf(input, view)
}
