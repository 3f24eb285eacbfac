package api

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

var ErrMalformedRequest = errors.New("malformed request")

// Retriever serves decoded online requests. *feature.RetrieveHandler satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, req *feature.Request) (*feature.Response, error)
}

// OnlineRequest is the wire form shared by the HTTP and gRPC surfaces. Entities are columnar:
// every column holds one value per row.
type OnlineRequest struct {
	Features         []string         `json:"features,omitempty"`
	FeatureService   string           `json:"feature_service,omitempty"`
	Entities         map[string][]any `json:"entities"`
	FullFeatureNames bool             `json:"full_feature_names,omitempty"`
	RequestId        string           `json:"request_id,omitempty"`
}

type OnlineResponse struct {
	Metadata ResponseMetadata `json:"metadata"`
	// Results hold one entry per feature name, each with one value per entity row.
	Results []FeatureResult `json:"results"`
}

type ResponseMetadata struct {
	FeatureNames []string `json:"feature_names"`
}

type FeatureResult struct {
	Values          []*types.Value `json:"values"`
	Statuses        []string       `json:"statuses"`
	EventTimestamps []*string      `json:"event_timestamps"`
}

// ToRequest validates the entity columns and pivots them into rows. Value types are inferred here
// and coerced to registry types by the retrieval pipeline.
func (r *OnlineRequest) ToRequest() (*feature.Request, error) {
	names := make([]string, 0, len(r.Entities))
	for name := range r.Entities {
		names = append(names, name)
	}
	sort.Strings(names)

	rowCount := -1
	for _, name := range names {
		n := len(r.Entities[name])
		if rowCount >= 0 && n != rowCount {
			return nil, fmt.Errorf("%w: entity column %s has %d values, expected %d", ErrMalformedRequest, name, n, rowCount)
		}
		rowCount = n
	}
	if rowCount < 0 {
		rowCount = 0
	}

	rows := make([]types.EntityRow, rowCount)
	for i := range rows {
		rows[i] = make(types.EntityRow, len(names))
	}
	for _, name := range names {
		for i, raw := range r.Entities[name] {
			v, err := types.FromJSON(raw, types.ValueTypeInvalid)
			if err != nil {
				return nil, fmt.Errorf("%w: entity %s row %d: %w", ErrMalformedRequest, name, i, err)
			}
			rows[i][name] = v
		}
	}
	return &feature.Request{
		Features:         r.Features,
		FeatureService:   r.FeatureService,
		EntityRows:       rows,
		FullFeatureNames: r.FullFeatureNames,
		RequestId:        r.RequestId,
	}, nil
}

// FromResponse renders a response column by column. Values without PRESENT status and zero event
// times are rendered as null.
func FromResponse(resp *feature.Response) *OnlineResponse {
	names := resp.FeatureNames()
	out := &OnlineResponse{
		Metadata: ResponseMetadata{FeatureNames: names},
		Results:  make([]FeatureResult, len(names)),
	}
	for col := range names {
		column := resp.Column(col)
		result := FeatureResult{
			Values:          make([]*types.Value, len(column)),
			Statuses:        make([]string, len(column)),
			EventTimestamps: make([]*string, len(column)),
		}
		for i, fv := range column {
			result.Statuses[i] = fv.Status.String()
			if fv.Status == types.StatusPresent {
				v := fv.Value
				result.Values[i] = &v
			}
			if !fv.EventTime.IsZero() {
				ts := fv.EventTime.UTC().Format(time.RFC3339Nano)
				result.EventTimestamps[i] = &ts
			}
		}
		out.Results[col] = result
	}
	return out
}
