package feature

import (
	"context"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/transformation"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// TransformationOrchestrator evaluates the requested on demand views, one unit per view.
type TransformationOrchestrator struct {
	transformer transformation.Transformer
	parallelism int
	timeout     time.Duration
}

func NewTransformationOrchestrator(transformer transformation.Transformer, parallelism int, timeout time.Duration) *TransformationOrchestrator {
	return &TransformationOrchestrator{
		transformer: transformer,
		parallelism: parallelism,
		timeout:     timeout,
	}
}

type transformUnit struct {
	view    *config.OnDemandFeatureView
	outputs map[string][]FeatureValue
}

// Transform runs every on demand view of resolved. A failing view marks all of its outputs ERROR
// and leaves the others alone. Only cancellation of ctx fails the call.
func (o *TransformationOrchestrator) Transform(ctx context.Context, snap *config.Snapshot, resolved *ResolvedFeatures, lookup *LookupResult, split *SplitRows) (*TransformResult, error) {
	result := &TransformResult{values: make(map[types.FeatureReference][]FeatureValue)}
	if len(resolved.OnDemandViews) == 0 {
		return result, nil
	}
	rowCount := split.RowCount()

	units := make([]*transformUnit, 0, len(resolved.OnDemandViews))
	for _, name := range resolved.OnDemandViews {
		odfv, ok := snap.OnDemandFeatureView(name)
		if !ok {
			return nil, requestErrorf(ErrUnknownFeatureView, "%s", name)
		}
		units = append(units, &transformUnit{view: odfv})
	}

	g, gctx := errgroup.WithContext(ctx)
	if o.parallelism > 0 {
		g.SetLimit(o.parallelism)
	}
	for _, u := range units {
		g.Go(func() error {
			outputs, err := o.evaluate(gctx, snap, u.view, lookup, split)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				log.Error().Err(err).Msgf("on demand feature view %s failed", u.view.Name)
				metric.Incr(metric.TransformationFailure, transformTags(u.view))
				outputs = make(map[string][]FeatureValue, len(u.view.Features))
				for _, f := range u.view.Features {
					outputs[f.Name] = fillStatus(rowCount, types.StatusError)
				}
			}
			u.outputs = outputs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, u := range units {
		for name, values := range u.outputs {
			result.values[types.FeatureReference{View: u.view.Name, Feature: name}] = values
		}
	}
	return result, nil
}

func (o *TransformationOrchestrator) evaluate(ctx context.Context, snap *config.Snapshot, odfv *config.OnDemandFeatureView, lookup *LookupResult, split *SplitRows) (map[string][]FeatureValue, error) {
	input, err := BuildTransformInput(snap, odfv.Name, lookup, split)
	if err != nil {
		return nil, err
	}
	uctx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	start := time.Now()
	output, err := o.transformer.Transform(uctx, snap, odfv, input)
	metric.Timing(metric.TransformationLatency, time.Since(start), transformTags(odfv))
	if err != nil {
		return nil, err
	}
	return ValidateOutput(odfv, output, split.RowCount())
}

func transformTags(odfv *config.OnDemandFeatureView) []string {
	return metric.BuildTag(
		metric.NewTag(metric.TagFeatureView, odfv.Name),
		metric.NewTag(metric.TagTransformMode, odfv.Mode),
	)
}

// BuildTransformInput lays out the inputs of one on demand view as columns. Store dependencies are
// named <view>__<feature>, request fields keep their name. A dependency that is not present is null.
func BuildTransformInput(snap *config.Snapshot, view string, lookup *LookupResult, split *SplitRows) (*columnar.Batch, error) {
	rowCount := split.RowCount()
	deps := snap.Dependencies(view)
	request := snap.RequestData(view)
	columns := make([]columnar.Column, 0, len(deps)+len(request))

	for _, dep := range deps {
		t, _ := snap.FeatureType(dep.View, dep.Feature)
		looked, ok := lookup.Get(dep)
		if !ok {
			return nil, fmt.Errorf("dependency %s of %s was not looked up", dep, view)
		}
		values := make([]types.Value, rowCount)
		for i, fv := range looked {
			if fv.Status == types.StatusPresent {
				values[i] = fv.Value
			} else {
				values[i] = types.NullValue(t)
			}
		}
		columns = append(columns, columnar.Column{Name: dep.FullName(), Type: t, Values: values})
	}
	for _, f := range request {
		values, ok := split.RequestData[f.Name]
		if !ok {
			values = make([]types.Value, rowCount)
			for i := range values {
				values[i] = types.NullValue(f.ValueType)
			}
		}
		columns = append(columns, columnar.Column{Name: f.Name, Type: f.ValueType, Values: values})
	}
	return columnar.NewBatch(rowCount, columns...)
}

// ValidateOutput checks that the batch carries every declared output with one value per row and
// maps each value to PRESENT or NULL_VALUE. Extra columns are ignored.
func ValidateOutput(odfv *config.OnDemandFeatureView, output *columnar.Batch, rowCount int) (map[string][]FeatureValue, error) {
	if output == nil {
		return nil, fmt.Errorf("%w: %s returned no batch", ErrMalformedTransformOutput, odfv.Name)
	}
	if output.NumRows() != rowCount {
		return nil, fmt.Errorf("%w: %s returned %d rows for %d", ErrMalformedTransformOutput, odfv.Name, output.NumRows(), rowCount)
	}
	out := make(map[string][]FeatureValue, len(odfv.Features))
	for _, f := range odfv.Features {
		col, ok := output.Column(f.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s is missing output %s", ErrMalformedTransformOutput, odfv.Name, f.Name)
		}
		values := make([]FeatureValue, rowCount)
		for i, v := range col.Values {
			if v.IsNull() {
				values[i] = FeatureValue{Value: types.NullValue(f.ValueType), Status: types.StatusNullValue}
				continue
			}
			coerced, ok := coerceValue(v, f.ValueType)
			if !ok {
				return nil, fmt.Errorf("%w: %s output %s is declared %s, got %s", ErrMalformedTransformOutput, odfv.Name, f.Name, f.ValueType, v.Type())
			}
			values[i] = FeatureValue{Value: coerced, Status: types.StatusPresent}
		}
		out[f.Name] = values
	}
	return out, nil
}
