package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestOnlineRequest_ToRequest(t *testing.T) {
	var in OnlineRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"features": ["view_a:f1"],
		"entities": {"id": [1, 2], "bonus": [0.5, null]},
		"full_feature_names": true
	}`), &in))

	req, err := in.ToRequest()
	require.NoError(t, err)
	assert.Equal(t, []string{"view_a:f1"}, req.Features)
	assert.True(t, req.FullFeatureNames)
	require.Len(t, req.EntityRows, 2)
	assert.True(t, req.EntityRows[0]["id"].Equal(types.Int64Value(1)))
	assert.True(t, req.EntityRows[1]["id"].Equal(types.Int64Value(2)))
	assert.True(t, req.EntityRows[0]["bonus"].Equal(types.DoubleValue(0.5)))
	assert.True(t, req.EntityRows[1]["bonus"].IsNull())
}

func TestOnlineRequest_ToRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		entities map[string][]any
	}{
		{name: "ragged columns", entities: map[string][]any{"id": {1.0, 2.0}, "merchant_id": {"m1"}}},
		{name: "unsupported value", entities: map[string][]any{"id": {map[string]any{"a": 1.0}}}},
		{name: "empty list value", entities: map[string][]any{"id": {[]any{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := OnlineRequest{Features: []string{"view_a:f1"}, Entities: tt.entities}
			_, err := in.ToRequest()
			assert.ErrorIs(t, err, ErrMalformedRequest)
		})
	}
}

func TestOnlineRequest_NoEntities(t *testing.T) {
	in := OnlineRequest{Features: []string{"view_a:f1"}}
	req, err := in.ToRequest()
	require.NoError(t, err)
	assert.Empty(t, req.EntityRows)
}

func TestFromResponse(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	resp := feature.NewResponse(
		[]string{"f1", "out1"},
		[]types.FeatureReference{{View: "view_a", Feature: "f1"}, {View: "odfv_b", Feature: "out1"}},
		[][]feature.FeatureValue{
			{{Value: types.Int64Value(10), Status: types.StatusPresent, EventTime: ts}, {Value: types.Int64Value(20), Status: types.StatusPresent}},
			{{Status: types.StatusNotFound}, {Status: types.StatusNullValue}},
		},
	)

	payload, err := json.Marshal(FromResponse(resp))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"metadata": {"feature_names": ["f1", "out1"]},
		"results": [
			{"values": [10, null], "statuses": ["PRESENT", "NOT_FOUND"], "event_timestamps": ["2024-01-02T03:04:05Z", null]},
			{"values": [20, null], "statuses": ["PRESENT", "NULL_VALUE"], "event_timestamps": [null, null]}
		]
	}`, string(payload))
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "nil", err: nil, want: codes.OK},
		{name: "malformed", err: fmt.Errorf("%w: bad", ErrMalformedRequest), want: codes.InvalidArgument},
		{name: "request error", err: &feature.RequestError{Err: feature.ErrUnknownFeatureView}, want: codes.InvalidArgument},
		{name: "registry", err: fmt.Errorf("%w: not loaded", config.ErrInvalidRegistry), want: codes.Unavailable},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "cancelled", err: context.Canceled, want: codes.Canceled},
		{name: "status passthrough", err: status.Error(codes.PermissionDenied, "no"), want: codes.PermissionDenied},
		{name: "other", err: errors.New("boom"), want: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, HTTPStatus(codes.InvalidArgument))
	assert.Equal(t, 401, HTTPStatus(codes.Unauthenticated))
	assert.Equal(t, 503, HTTPStatus(codes.Unavailable))
	assert.Equal(t, 500, HTTPStatus(codes.Internal))
}

type staticClients map[string]string

func (c staticClients) GetAllRegisteredClients() map[string]string { return c }

func TestIsAuthorized(t *testing.T) {
	clients := staticClients{"ranker": "secret"}
	assert.True(t, IsAuthorized(clients, "ranker", "secret"))
	assert.False(t, IsAuthorized(clients, "ranker", "wrong"))
	assert.False(t, IsAuthorized(clients, "unknown", "secret"))
}
