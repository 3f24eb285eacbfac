package feature

import (
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

// Request is one online retrieval call. Features and FeatureService are mutually exclusive.
type Request struct {
	Features         []string
	FeatureService   string
	EntityRows       []types.EntityRow
	FullFeatureNames bool
	// RequestId is stamped on feature log records. Transport fills it when empty.
	RequestId string
}

// FeatureValue is one cell of the response. Value is only meaningful when Status is StatusPresent.
type FeatureValue struct {
	Value     types.Value
	Status    types.FeatureStatus
	EventTime time.Time
}

func absent(status types.FeatureStatus) FeatureValue {
	return FeatureValue{Status: status}
}

func fillStatus(rowCount int, status types.FeatureStatus) []FeatureValue {
	out := make([]FeatureValue, rowCount)
	for i := range out {
		out[i] = absent(status)
	}
	return out
}

// Response is built once by AssembleResponse and never mutated afterwards. Rows follow request
// row order and each row follows FeatureNames order.
type Response struct {
	featureNames []string
	refs         []types.FeatureReference
	rows         [][]FeatureValue
}

// NewResponse copies a precomputed matrix into a response. Every row must have one value per name.
func NewResponse(featureNames []string, refs []types.FeatureReference, rows [][]FeatureValue) *Response {
	resp := &Response{
		featureNames: append([]string(nil), featureNames...),
		refs:         append([]types.FeatureReference(nil), refs...),
		rows:         make([][]FeatureValue, len(rows)),
	}
	for i, row := range rows {
		resp.rows[i] = append([]FeatureValue(nil), row...)
	}
	return resp
}

func (r *Response) FeatureNames() []string {
	return append([]string(nil), r.featureNames...)
}

// References are the resolved references behind FeatureNames, in the same order.
func (r *Response) References() []types.FeatureReference {
	return append([]types.FeatureReference(nil), r.refs...)
}

func (r *Response) RowCount() int { return len(r.rows) }

// Rows returns a copy of the response matrix.
func (r *Response) Rows() [][]FeatureValue {
	out := make([][]FeatureValue, len(r.rows))
	for i, row := range r.rows {
		out[i] = append([]FeatureValue(nil), row...)
	}
	return out
}

func (r *Response) Row(i int) []FeatureValue {
	return append([]FeatureValue(nil), r.rows[i]...)
}

// Column returns the values of the feature at position col for every row.
func (r *Response) Column(col int) []FeatureValue {
	out := make([]FeatureValue, len(r.rows))
	for i, row := range r.rows {
		out[i] = row[col]
	}
	return out
}

// ToColumns is the per-feature column form. Values that are not present become nil.
func (r *Response) ToColumns() map[string][]any {
	out := make(map[string][]any, len(r.featureNames))
	for col, name := range r.featureNames {
		values := make([]any, len(r.rows))
		for i, row := range r.rows {
			if row[col].Status == types.StatusPresent {
				values[i] = row[col].Value.Interface()
			}
		}
		out[name] = values
	}
	return out
}

// ResolvedFeatures is the outcome of reference resolution.
type ResolvedFeatures struct {
	// Requested keeps request order, duplicates included.
	Requested []types.FeatureReference
	// StoreRefs are the distinct requested references served by online stores.
	StoreRefs []types.FeatureReference
	// OnDemandRefs are the distinct requested on demand outputs.
	OnDemandRefs []types.FeatureReference
	// OnDemandViews are the on demand views to evaluate, in first-seen order.
	OnDemandViews []string
	// RequestDataNames maps each on demand view to the request fields it reads.
	RequestDataNames map[string][]string
	// AllRequestDataNames is the union of RequestDataNames in first-seen order.
	AllRequestDataNames []string
	// DependencyRefs are store references on demand views read that were not requested.
	DependencyRefs []types.FeatureReference
}

// LookupRefs is every reference the online stores are asked for. StoreRefs and DependencyRefs are disjoint.
func (r *ResolvedFeatures) LookupRefs() []types.FeatureReference {
	out := make([]types.FeatureReference, 0, len(r.StoreRefs)+len(r.DependencyRefs))
	out = append(out, r.StoreRefs...)
	return append(out, r.DependencyRefs...)
}

// SplitRows separates entity rows into lookup keys and request-time inputs.
type SplitRows struct {
	// EntityRows hold only join key fields, one per request row.
	EntityRows []types.EntityRow
	// RequestData holds one value per request row for every declared request field.
	RequestData map[string][]types.Value
}

func (s *SplitRows) RowCount() int { return len(s.EntityRows) }

// LookupResult holds the per-row lookup outcome of every looked-up reference.
type LookupResult struct {
	values map[types.FeatureReference][]FeatureValue
}

func (l *LookupResult) Get(ref types.FeatureReference) ([]FeatureValue, bool) {
	if l == nil {
		return nil, false
	}
	v, ok := l.values[ref]
	return v, ok
}

// TransformResult holds the per-row outputs of every evaluated on demand view.
type TransformResult struct {
	values map[types.FeatureReference][]FeatureValue
}

func (t *TransformResult) Get(ref types.FeatureReference) ([]FeatureValue, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.values[ref]
	return v, ok
}
