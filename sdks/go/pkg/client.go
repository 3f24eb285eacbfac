package gosdk

import (
	"context"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/pkg/grpcclient"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	getOnlineFeaturesMethod = "/feast.serving.ServingService/GetOnlineFeatures"
	callerIdHeader          = "feature-server-caller-id"
	authTokenHeader         = "feature-server-auth-token"
	externalServiceName     = "feature_server"

	defaultParallelism = 4
)

type Config struct {
	Host        string
	Port        string
	DeadLine    time.Duration
	PlainText   bool
	CallerId    string
	CallerToken string
	// BatchSize caps the entity rows sent per call. Zero sends the whole query at once.
	BatchSize int
	// Parallelism caps the batches in flight.
	Parallelism int
	// Retries is how often an Unavailable batch is retried with exponential backoff.
	Retries uint64
}

// Query mirrors the serving request document. Entities are columnar.
type Query struct {
	Features         []string         `json:"features,omitempty"`
	FeatureService   string           `json:"feature_service,omitempty"`
	Entities         map[string][]any `json:"entities"`
	FullFeatureNames bool             `json:"full_feature_names,omitempty"`
	RequestId        string           `json:"request_id,omitempty"`
}

func (q *Query) RowCount() (int, error) {
	rowCount := -1
	for _, col := range q.Entities {
		if rowCount >= 0 && len(col) != rowCount {
			return 0, ErrRaggedEntities
		}
		rowCount = len(col)
	}
	return max(rowCount, 0), nil
}

type Result struct {
	Metadata Metadata        `json:"metadata"`
	Results  []FeatureResult `json:"results"`
}

type Metadata struct {
	FeatureNames []string `json:"feature_names"`
}

type FeatureResult struct {
	Values          []any     `json:"values"`
	Statuses        []string  `json:"statuses"`
	EventTimestamps []*string `json:"event_timestamps"`
}

type ClientV1 struct {
	client  *grpcclient.GRPCClient
	config  *Config
	adapter *Adapter
}

func NewClientV1(config *Config) (*ClientV1, error) {
	client, err := grpcclient.NewConnFromConfig(&grpcclient.Config{
		Host:      config.Host,
		Port:      config.Port,
		DeadLine:  config.DeadLine,
		PlainText: config.PlainText,
	}, externalServiceName)
	if err != nil {
		return nil, err
	}
	return &ClientV1{client: client, config: config, adapter: &Adapter{}}, nil
}

// NewClientV1FromConn wraps an existing connection.
func NewClientV1FromConn(conn *grpc.ClientConn, config *Config) *ClientV1 {
	return &ClientV1{
		client:  grpcclient.NewClient(conn, config.DeadLine, externalServiceName),
		config:  config,
		adapter: &Adapter{},
	}
}

// GetOnlineFeatures sends the query in batches and stitches the results back in row order.
func (c *ClientV1) GetOnlineFeatures(ctx context.Context, query *Query) (*Result, error) {
	batches, err := c.adapter.BatchQuery(query, c.config.BatchSize)
	if err != nil {
		return nil, err
	}
	ctx = metadata.AppendToOutgoingContext(ctx, callerIdHeader, c.config.CallerId, authTokenHeader, c.config.CallerToken)

	parts := make([]*Result, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	parallelism := c.config.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	g.SetLimit(parallelism)
	for i, b := range batches {
		g.Go(func() error {
			res, err := c.call(gctx, b)
			if err != nil {
				return err
			}
			parts[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return c.adapter.MergeResults(parts)
}

func (c *ClientV1) call(ctx context.Context, query *Query) (*Result, error) {
	in, err := c.adapter.ConvertToStruct(query)
	if err != nil {
		return nil, err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.config.Retries), ctx)
	out := &structpb.Struct{}
	err = backoff.Retry(func() error {
		err := c.client.Invoke(ctx, getOnlineFeaturesMethod, in, out)
		if err != nil && status.Code(err) != codes.Unavailable {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
	if err != nil {
		return nil, err
	}
	return c.adapter.ConvertToResult(out)
}
