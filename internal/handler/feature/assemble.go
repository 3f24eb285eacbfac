package feature

import (
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/rs/zerolog/log"
)

// AssembleResponse builds the response matrix in one pass. names must come from
// resolved.OutputNames. A reference found in neither result is reported as ERROR.
func AssembleResponse(resolved *ResolvedFeatures, names []string, lookup *LookupResult, transforms *TransformResult, rowCount int) *Response {
	columns := make([][]FeatureValue, len(resolved.Requested))
	onDemand := make(map[types.FeatureReference]struct{}, len(resolved.OnDemandRefs))
	for _, ref := range resolved.OnDemandRefs {
		onDemand[ref] = struct{}{}
	}
	for col, ref := range resolved.Requested {
		var values []FeatureValue
		var ok bool
		if _, isOnDemand := onDemand[ref]; isOnDemand {
			values, ok = transforms.Get(ref)
		} else {
			values, ok = lookup.Get(ref)
		}
		if !ok || len(values) != rowCount {
			log.Error().Msgf("no result for requested feature %s", ref)
			values = fillStatus(rowCount, types.StatusError)
		}
		columns[col] = values
	}

	rows := make([][]FeatureValue, rowCount)
	for i := range rows {
		row := make([]FeatureValue, len(columns))
		for col := range columns {
			row[col] = columns[col][i]
		}
		rows[i] = row
	}
	return &Response{
		featureNames: append([]string(nil), names...),
		refs:         append([]types.FeatureReference(nil), resolved.Requested...),
		rows:         rows,
	}
}
