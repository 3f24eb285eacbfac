package feature

import (
	"context"
	"sync"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/provider"
	handler "github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/internal/transformation"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	envMaxParallelism     = "RETRIEVE_MAX_PARALLELISM"
	envLookupTimeoutMs    = "RETRIEVE_LOOKUP_TIMEOUT_IN_MS"
	envTransformTimeoutMs = "RETRIEVE_TRANSFORM_TIMEOUT_IN_MS"

	defaultMaxParallelism   = 16
	defaultLookupTimeout    = 100 * time.Millisecond
	defaultTransformTimeout = 200 * time.Millisecond
)

var (
	frOnce    sync.Once
	frHandler *RetrieveHandler
)

// FeatureLogger receives every successful response. Implementations must not block.
type FeatureLogger interface {
	Log(req *Request, resp *Response)
}

type Options struct {
	MaxParallelism   int
	LookupTimeout    time.Duration
	TransformTimeout time.Duration
}

// OptionsFromEnv reads the RETRIEVE_* keys, falling back to defaults for unset ones.
func OptionsFromEnv() Options {
	opts := Options{
		MaxParallelism:   defaultMaxParallelism,
		LookupTimeout:    defaultLookupTimeout,
		TransformTimeout: defaultTransformTimeout,
	}
	if viper.IsSet(envMaxParallelism) && viper.GetInt(envMaxParallelism) > 0 {
		opts.MaxParallelism = viper.GetInt(envMaxParallelism)
	}
	if viper.IsSet(envLookupTimeoutMs) {
		opts.LookupTimeout = time.Duration(viper.GetInt(envLookupTimeoutMs)) * time.Millisecond
	}
	if viper.IsSet(envTransformTimeoutMs) {
		opts.TransformTimeout = time.Duration(viper.GetInt(envTransformTimeoutMs)) * time.Millisecond
	}
	return opts
}

type RetrieveHandler struct {
	config       config.Manager
	lookup       *OnlineStoreLookup
	orchestrator *TransformationOrchestrator
	featureLog   FeatureLogger
}

// InitRetrieveHandler builds the process wide handler on top of the storage provider.
func InitRetrieveHandler(configManager config.Manager, transformer transformation.Transformer, featureLog FeatureLogger) *RetrieveHandler {
	if frHandler == nil {
		frOnce.Do(func() {
			storeCB := handler.NewHandler(circuitbreaker.GetManager(handler.OnlineStoreManager))
			frHandler = NewRetrieveHandler(configManager, provider.StorageProviderImpl, storeCB, transformer, OptionsFromEnv())
			frHandler.featureLog = featureLog
		})
	}
	return frHandler
}

func NewRetrieveHandler(configManager config.Manager, storeProvider StoreProvider, storeCB *handler.Handler, transformer transformation.Transformer, opts Options) *RetrieveHandler {
	return &RetrieveHandler{
		config:       configManager,
		lookup:       NewOnlineStoreLookup(storeProvider, storeCB, opts.MaxParallelism, opts.LookupTimeout),
		orchestrator: NewTransformationOrchestrator(transformer, opts.MaxParallelism, opts.TransformTimeout),
	}
}

// Retrieve serves one request. It fails only for request errors, registry unavailability and
// cancellation of ctx; store and transformation failures surface as ERROR statuses.
func (h *RetrieveHandler) Retrieve(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	log.Debug().Msgf("retrieving %d features for %d rows", len(req.Features), len(req.EntityRows))

	snap, err := h.config.Snapshot()
	if err != nil {
		return nil, err
	}
	refs, err := requestedReferences(snap, req)
	if err != nil {
		return nil, err
	}
	resolved, err := ResolveFeatureReferences(snap, refs)
	if err != nil {
		return nil, err
	}
	names, err := resolved.OutputNames(req.FullFeatureNames)
	if err != nil {
		return nil, err
	}
	split, err := SplitEntityRows(snap, resolved, req.EntityRows)
	if err != nil {
		return nil, err
	}

	lookup, err := h.lookup.Lookup(ctx, snap, resolved.LookupRefs(), split.EntityRows)
	if err != nil {
		return nil, err
	}
	transforms, err := h.orchestrator.Transform(ctx, snap, resolved, lookup, split)
	if err != nil {
		return nil, err
	}
	resp := AssembleResponse(resolved, names, lookup, transforms, split.RowCount())

	recordMetrics(resp, time.Since(start))
	if h.featureLog != nil {
		h.featureLog.Log(req, resp)
	}
	return resp, nil
}

func requestedReferences(snap *config.Snapshot, req *Request) ([]string, error) {
	switch {
	case len(req.Features) > 0 && req.FeatureService != "":
		return nil, &RequestError{Err: ErrAmbiguousRequest}
	case req.FeatureService != "":
		return ExpandFeatureService(snap, req.FeatureService)
	case len(req.Features) > 0:
		return req.Features, nil
	}
	return nil, &RequestError{Err: ErrEmptyRequest}
}

func recordMetrics(resp *Response, latency time.Duration) {
	metric.Timing(metric.FeatureRetrieveLatency, latency, []string{})
	metric.Count(metric.FeatureRetrieveRows, int64(resp.RowCount()), []string{})

	var counts [types.StatusError + 1]int64
	for _, row := range resp.rows {
		for _, v := range row {
			if v.Status >= 0 && v.Status <= types.StatusError {
				counts[v.Status]++
			}
		}
	}
	for status, n := range counts {
		if n > 0 {
			metric.Count(metric.FeatureStatusCount, n, metric.BuildTag(metric.NewTag(metric.TagFeatureStatus, types.FeatureStatus(status).String())))
		}
	}
}
