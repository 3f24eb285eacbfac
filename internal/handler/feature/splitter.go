package feature

import (
	"math"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/ds"
)

// SplitEntityRows strips every row down to the join keys of the looked-up views and gathers the
// declared request fields column-wise. Fields that are neither are ignored.
func SplitEntityRows(snap *config.Snapshot, resolved *ResolvedFeatures, rows []types.EntityRow) (*SplitRows, error) {
	joinKeys := ds.NewOrderedSet[string](0)
	for _, ref := range resolved.LookupRefs() {
		for _, jk := range snap.JoinKeys(ref.View) {
			joinKeys.Add(jk)
		}
	}

	split := &SplitRows{
		EntityRows:  make([]types.EntityRow, len(rows)),
		RequestData: make(map[string][]types.Value, len(resolved.AllRequestDataNames)),
	}
	seenTypes := make(map[string]types.ValueType, joinKeys.Len())
	for i, row := range rows {
		keys := make(types.EntityRow, joinKeys.Len())
		for _, jk := range joinKeys.Items() {
			v, ok := row[jk]
			if !ok || v.IsNull() {
				return nil, requestErrorf(ErrMissingEntityKey, "row %d has no value for %s", i, jk)
			}
			if prev, ok := seenTypes[jk]; ok && !sameKind(prev, v.Type()) {
				return nil, requestErrorf(ErrMixedEntityTypes, "%s is %s in row %d and %s before", jk, v.Type(), i, prev)
			}
			seenTypes[jk] = v.Type()
			if want, ok := snap.JoinKeyType(jk); ok {
				coerced, ok := coerceValue(v, want)
				if !ok {
					return nil, requestErrorf(ErrInvalidRequestValue, "row %d: join key %s is declared %s, got %s", i, jk, want, v.Type())
				}
				v = coerced
			}
			keys[jk] = v
		}
		split.EntityRows[i] = keys
	}

	requestTypes := requestFieldTypes(snap, resolved)
	for _, name := range resolved.AllRequestDataNames {
		want := requestTypes[name]
		values := make([]types.Value, len(rows))
		for i, row := range rows {
			v, ok := row[name]
			if !ok || v.IsNull() {
				values[i] = types.NullValue(want)
				continue
			}
			coerced, ok := coerceValue(v, want)
			if !ok {
				return nil, requestErrorf(ErrInvalidRequestValue, "row %d: %s is declared %s, got %s", i, name, want, v.Type())
			}
			values[i] = coerced
		}
		split.RequestData[name] = values
	}
	return split, nil
}

// sameKind treats integer and floating widths as one kind, since JSON callers cannot pick a width.
func sameKind(a, b types.ValueType) bool {
	return a == b || (isNumeric(a) && isNumeric(b))
}

func isNumeric(t types.ValueType) bool {
	switch t {
	case types.ValueTypeInt32, types.ValueTypeInt64, types.ValueTypeDouble, types.ValueTypeFloat:
		return true
	}
	return false
}

// requestFieldTypes takes the first declaration of every request field across the requested views.
func requestFieldTypes(snap *config.Snapshot, resolved *ResolvedFeatures) map[string]types.ValueType {
	out := make(map[string]types.ValueType, len(resolved.AllRequestDataNames))
	for _, view := range resolved.OnDemandViews {
		for _, f := range snap.RequestData(view) {
			if _, ok := out[f.Name]; !ok {
				out[f.Name] = f.ValueType
			}
		}
	}
	return out
}

// coerceValue converts v to type t where no information is lost. JSON callers send every
// integer as INT64 and every fraction as DOUBLE.
func coerceValue(v types.Value, t types.ValueType) (types.Value, bool) {
	if v.IsNull() {
		return types.NullValue(t), true
	}
	if v.Type() == t {
		return v, true
	}
	if t.IsList() {
		if !v.Type().IsList() {
			return types.Value{}, false
		}
		elems := v.Elements()
		out := make([]types.Value, len(elems))
		for i, e := range elems {
			c, ok := coerceValue(e, t.Elem())
			if !ok {
				return types.Value{}, false
			}
			out[i] = c
		}
		list, err := types.ListFromValues(t, out)
		return list, err == nil
	}
	switch t {
	case types.ValueTypeInt32:
		if i, ok := v.AsInt64(); ok && i >= math.MinInt32 && i <= math.MaxInt32 {
			return types.Int32Value(int32(i)), true
		}
	case types.ValueTypeInt64:
		if i, ok := v.AsInt64(); ok {
			return types.Int64Value(i), true
		}
	case types.ValueTypeDouble:
		if f, ok := v.AsFloat64(); ok {
			return types.DoubleValue(f), true
		}
	case types.ValueTypeFloat:
		if f, ok := v.AsFloat64(); ok {
			return types.FloatValue(float32(f)), true
		}
	}
	return types.Value{}, false
}
