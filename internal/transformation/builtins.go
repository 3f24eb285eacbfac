package transformation

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

const (
	argInput     = "input"
	argInputs    = "inputs"
	argFactor    = "factor"
	argOutput    = "output"
	argSeparator = "separator"
)

var builtins = map[string]UDF{
	"multiply": multiply,
	"sum":      sum,
	"concat":   concat,
}

// multiply scales one numeric column by the constant udf-args factor. Nulls stay null.
func multiply(input *columnar.Batch, view *config.OnDemandFeatureView) (*columnar.Batch, error) {
	out, err := outputFeature(view)
	if err != nil {
		return nil, err
	}
	in, err := inputColumns(input, view, argInput)
	if err != nil {
		return nil, err
	}
	factor, err := strconv.ParseFloat(view.UdfArgs[argFactor], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidUdfArgs, argFactor, err)
	}
	intFactor := math.Trunc(factor) == factor
	return mapRows(input.NumRows(), out, func(row int) (types.Value, error) {
		v := in[0].Values[row]
		if v.IsNull() {
			return types.NullValue(out.ValueType), nil
		}
		if i, ok := v.AsInt64(); ok && intFactor && isInteger(v.Type()) {
			return numeric(out.ValueType, float64(i)*factor, i*int64(factor), true)
		}
		f, ok := v.AsFloat64()
		if !ok {
			return types.Value{}, fmt.Errorf("multiply: %s is not numeric", v.Type())
		}
		return numeric(out.ValueType, f*factor, 0, false)
	})
}

// sum adds the numeric columns listed in udf-args inputs. A null in any input yields null.
func sum(input *columnar.Batch, view *config.OnDemandFeatureView) (*columnar.Batch, error) {
	out, err := outputFeature(view)
	if err != nil {
		return nil, err
	}
	in, err := inputColumns(input, view, argInputs)
	if err != nil {
		return nil, err
	}
	return mapRows(input.NumRows(), out, func(row int) (types.Value, error) {
		var (
			fsum     float64
			isum     int64
			integral = true
		)
		for _, c := range in {
			v := c.Values[row]
			if v.IsNull() {
				return types.NullValue(out.ValueType), nil
			}
			f, ok := v.AsFloat64()
			if !ok {
				return types.Value{}, fmt.Errorf("sum: column %s is %s", c.Name, v.Type())
			}
			fsum += f
			if i, ok := v.AsInt64(); ok && isInteger(v.Type()) {
				isum += i
			} else {
				integral = false
			}
		}
		return numeric(out.ValueType, fsum, isum, integral)
	})
}

// concat joins the string form of the udf-args inputs with separator. A null in any input yields null.
func concat(input *columnar.Batch, view *config.OnDemandFeatureView) (*columnar.Batch, error) {
	out, err := outputFeature(view)
	if err != nil {
		return nil, err
	}
	if out.ValueType != types.ValueTypeString {
		return nil, fmt.Errorf("%w: concat output %s must be STRING", ErrInvalidUdfArgs, out.Name)
	}
	in, err := inputColumns(input, view, argInputs)
	if err != nil {
		return nil, err
	}
	sep := view.UdfArgs[argSeparator]
	parts := make([]string, len(in))
	return mapRows(input.NumRows(), out, func(row int) (types.Value, error) {
		for i, c := range in {
			v := c.Values[row]
			if v.IsNull() {
				return types.NullValue(types.ValueTypeString), nil
			}
			if s, ok := v.Str(); ok {
				parts[i] = s
			} else {
				parts[i] = v.String()
			}
		}
		return types.StringValue(strings.Join(parts, sep)), nil
	})
}

// outputFeature picks the udf-args output, or the only declared output.
func outputFeature(view *config.OnDemandFeatureView) (config.Feature, error) {
	name := view.UdfArgs[argOutput]
	if name == "" {
		if len(view.Features) != 1 {
			return config.Feature{}, fmt.Errorf("%w: %s declares %d outputs, set %s", ErrInvalidUdfArgs, view.Name, len(view.Features), argOutput)
		}
		return view.Features[0], nil
	}
	for _, f := range view.Features {
		if f.Name == name {
			return f, nil
		}
	}
	return config.Feature{}, fmt.Errorf("%w: output %s is not declared by %s", ErrInvalidUdfArgs, name, view.Name)
}

func inputColumns(input *columnar.Batch, view *config.OnDemandFeatureView, arg string) ([]columnar.Column, error) {
	raw := view.UdfArgs[arg]
	if raw == "" {
		return nil, fmt.Errorf("%w: %s missing", ErrInvalidUdfArgs, arg)
	}
	names := strings.Split(raw, ",")
	cols := make([]columnar.Column, 0, len(names))
	for _, n := range names {
		c, ok := input.Column(strings.TrimSpace(n))
		if !ok {
			return nil, fmt.Errorf("%w: input column %s not in batch", ErrInvalidUdfArgs, n)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func mapRows(numRows int, out config.Feature, f func(row int) (types.Value, error)) (*columnar.Batch, error) {
	values := make([]types.Value, numRows)
	for row := range values {
		v, err := f(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		values[row] = v
	}
	return columnar.NewBatch(numRows, columnar.Column{Name: out.Name, Type: out.ValueType, Values: values})
}

func isInteger(t types.ValueType) bool {
	return t == types.ValueTypeInt32 || t == types.ValueTypeInt64
}

// numeric renders a result in the declared output type. Integer outputs use the exact integer
// result when one is available and reject fractional floats.
func numeric(t types.ValueType, f float64, i int64, exact bool) (types.Value, error) {
	switch t {
	case types.ValueTypeDouble:
		return types.DoubleValue(f), nil
	case types.ValueTypeFloat:
		return types.FloatValue(float32(f)), nil
	case types.ValueTypeInt64, types.ValueTypeInt32:
		if !exact {
			if math.Trunc(f) != f || math.IsInf(f, 0) || math.IsNaN(f) {
				return types.Value{}, fmt.Errorf("%v does not fit %s", f, t)
			}
			i = int64(f)
		}
		if t == types.ValueTypeInt64 {
			return types.Int64Value(i), nil
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return types.Value{}, fmt.Errorf("%d overflows INT32", i)
		}
		return types.Int32Value(int32(i)), nil
	}
	return types.Value{}, fmt.Errorf("numeric output type %s not supported", t)
}
