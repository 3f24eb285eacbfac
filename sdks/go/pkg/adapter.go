package gosdk

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var ErrRaggedEntities = errors.New("entity columns have different lengths")

// Adapter converts queries and results to the struct documents the serving service exchanges.
type Adapter struct{}

func (a *Adapter) ConvertToStruct(query *Query) (*structpb.Struct, error) {
	raw, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) ConvertToResult(payload *structpb.Struct) (*Result, error) {
	raw, err := protojson.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("malformed serving response: %w", err)
	}
	return &out, nil
}

// BatchQuery splits a query into queries of at most batchSize entity rows. A non positive batchSize
// keeps the query whole.
func (a *Adapter) BatchQuery(query *Query, batchSize int) ([]*Query, error) {
	rowCount, err := query.RowCount()
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 || rowCount <= batchSize {
		return []*Query{query}, nil
	}
	batches := make([]*Query, 0, (rowCount+batchSize-1)/batchSize)
	for start := 0; start < rowCount; start += batchSize {
		end := min(start+batchSize, rowCount)
		b := *query
		b.Entities = make(map[string][]any, len(query.Entities))
		for name, col := range query.Entities {
			b.Entities[name] = col[start:end]
		}
		batches = append(batches, &b)
	}
	return batches, nil
}

// MergeResults concatenates per batch results in batch order.
func (a *Adapter) MergeResults(parts []*Result) (*Result, error) {
	if len(parts) == 0 {
		return &Result{}, nil
	}
	out := &Result{
		Metadata: parts[0].Metadata,
		Results:  make([]FeatureResult, len(parts[0].Results)),
	}
	for _, part := range parts {
		if len(part.Results) != len(out.Results) {
			return nil, fmt.Errorf("batch returned %d features, expected %d", len(part.Results), len(out.Results))
		}
		for i, r := range part.Results {
			out.Results[i].Values = append(out.Results[i].Values, r.Values...)
			out.Results[i].Statuses = append(out.Results[i].Statuses, r.Statuses...)
			out.Results[i].EventTimestamps = append(out.Results[i].EventTimestamps, r.EventTimestamps...)
		}
	}
	return out, nil
}
