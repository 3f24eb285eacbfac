package featurelog

import (
	"errors"
	"sync"
	"testing"

	"github.com/Meesho/BharatMLStack/feature-server/internal/columnar"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	key     string
	value   []byte
	headers map[string][]byte
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []message
	err      error
	closed   bool
}

func (p *fakeProducer) Produce(key, value []byte, headers map[string][]byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message{key: string(key), value: value, headers: headers})
	return nil
}

func (p *fakeProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func sampleResponse() (*feature.Request, *feature.Response) {
	req := &feature.Request{
		Features: []string{"view_a:f1", "odfv_b:out1"},
		EntityRows: []types.EntityRow{
			{"id": types.Int64Value(1), "tags": types.StringListValue([]string{"x"})},
			{"id": types.Int64Value(2), "request_id": types.StringValue("spoofed")},
		},
	}
	resp := feature.NewResponse(
		[]string{"f1", "out1"},
		[]types.FeatureReference{{View: "view_a", Feature: "f1"}, {View: "odfv_b", Feature: "out1"}},
		[][]feature.FeatureValue{
			{{Value: types.Int64Value(10), Status: types.StatusPresent}, {Value: types.Int64Value(20), Status: types.StatusPresent}},
			{{Status: types.StatusNotFound}, {Status: types.StatusNullValue}},
		},
	)
	return req, resp
}

func TestEncodeRecord(t *testing.T) {
	req, resp := sampleResponse()
	payload, err := EncodeRecord("req-1", req, resp)
	require.NoError(t, err)

	batch, err := columnar.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"request_id", "id", "f1__value", "f1__status", "out1__value", "out1__status"}, batch.ColumnNames())
	assert.Equal(t, 2, batch.NumRows())

	ids, _ := batch.Column("request_id")
	assert.True(t, ids.Values[1].Equal(types.StringValue("req-1")))

	values, _ := batch.Column("f1__value")
	raw, ok := values.Values[0].Bytes()
	require.True(t, ok)
	decoded, err := types.DecodeValue(types.ValueTypeInt64, raw)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(types.Int64Value(10)))
	assert.True(t, values.Values[1].IsNull())

	statuses, _ := batch.Column("out1__status")
	assert.True(t, statuses.Values[0].Equal(types.Int32Value(int32(types.StatusPresent))))
	assert.True(t, statuses.Values[1].Equal(types.Int32Value(int32(types.StatusNullValue))))
}

func TestLogger_PublishesAndCloses(t *testing.T) {
	p := &fakeProducer{}
	l := NewLogger(p, 100, 8, 2)
	req, resp := sampleResponse()
	req.RequestId = "abc"

	l.Log(req, resp)
	l.Close()

	require.Len(t, p.messages, 1)
	assert.Equal(t, "abc", p.messages[0].key)
	assert.Equal(t, arrowStreamType, string(p.messages[0].headers[contentTypeHeader]))
	assert.True(t, p.closed)

	// logging after close is ignored
	l.Log(req, resp)
	l.Close()
	assert.Len(t, p.messages, 1)
}

func TestLogger_GeneratesRequestId(t *testing.T) {
	p := &fakeProducer{}
	l := NewLogger(p, 100, 8, 1)
	req, resp := sampleResponse()

	l.Log(req, resp)
	l.Close()
	require.Len(t, p.messages, 1)
	assert.Len(t, p.messages[0].key, 36)
}

func TestLogger_Sampling(t *testing.T) {
	p := &fakeProducer{}
	l := NewLogger(p, 30, 16, 1)
	draws := []int{10, 29, 30, 99}
	l.sample = func() int {
		d := draws[0]
		draws = draws[1:]
		return d
	}
	req, resp := sampleResponse()
	for range 4 {
		l.Log(req, resp)
	}
	l.Close()
	assert.Len(t, p.messages, 2)
}

func TestLogger_ProducerErrorDoesNotStopWorkers(t *testing.T) {
	p := &fakeProducer{err: errors.New("broker down")}
	l := NewLogger(p, 100, 4, 1)
	req, resp := sampleResponse()
	l.Log(req, resp)
	l.Log(req, resp)
	l.Close()
	assert.Empty(t, p.messages)
	assert.True(t, p.closed)
}

func TestLogger_NilIsNoop(t *testing.T) {
	var l *Logger
	req, resp := sampleResponse()
	assert.NotPanics(t, func() {
		l.Log(req, resp)
		l.Close()
	})
}
