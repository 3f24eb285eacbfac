package metric

import (
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	ExternalApiRequestCount   = "external_api_request_count"
	ExternalApiRequestLatency = "external_api_request_latency"

	FeatureRetrieveLatency   = "feature_retrieve_latency"
	FeatureRetrieveRows      = "feature_retrieve_rows"
	FeatureStatusCount       = "feature_status_count"
	OnlineStoreLookupLatency = "online_store_lookup_latency"
	OnlineStoreLookupFailure = "online_store_lookup_failure"
	TransformationLatency    = "transformation_latency"
	TransformationFailure    = "transformation_failure"
	FeatureLogPublished      = "feature_log_published"
	FeatureLogDropped        = "feature_log_dropped"
)

var (
	// safe for concurrent use
	statsDClient    = getDefaultClient()
	samplingRate    = 1.0
	telegrafAddress = "localhost:8125"
	appName         = ""
	initialized     = false
	once            sync.Once
)

// Init initializes the statsd client with the service's global tags
func Init() {
	if initialized {
		log.Debug().Msgf("Metrics already initialized!")
		return
	}
	once.Do(func() {
		var err error
		if viper.IsSet("APP_METRIC_SAMPLING_RATE") {
			samplingRate = viper.GetFloat64("APP_METRIC_SAMPLING_RATE")
		}
		if viper.IsSet("TELEGRAF_ADDRESS") {
			telegrafAddress = viper.GetString("TELEGRAF_ADDRESS")
		}
		appName = viper.GetString("APP_NAME")
		globalTags := getGlobalTags()

		statsDClient, err = statsd.New(telegrafAddress, statsd.WithTags(globalTags))
		if err != nil {
			log.Panic().Err(err).Msg("StatsD client initialization failed")
		}
		log.Info().Msgf("Metrics client initialized with telegraf address - %s, global tags - %v, and "+
			"sampling rate - %f", telegrafAddress, globalTags, samplingRate)
		initialized = true
	})
}

func getDefaultClient() *statsd.Client {
	client, _ := statsd.New("localhost:8125")
	return client
}

func getGlobalTags() []string {
	env := viper.GetString("APP_ENV")
	if len(env) == 0 {
		log.Warn().Msg("APP_ENV is not set")
	}
	if len(appName) == 0 {
		log.Warn().Msg("APP_NAME is not set")
	}
	return BuildTag(NewTag(TagEnv, env), NewTag(TagService, appName))
}

// Timing sends timing information
func Timing(name string, value time.Duration, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Timing(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd timing")
	}
}

// Count increases metric counter by value
func Count(name string, value int64, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Count(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd count")
	}
}

// Incr increases metric counter by 1
func Incr(name string, tags []string) {
	Count(name, 1, tags)
}

func Gauge(name string, value float64, tags []string) {
	if statsDClient == nil {
		return
	}
	if err := statsDClient.Gauge(name, value, tags, samplingRate); err != nil {
		log.Warn().Err(err).Msg("Error occurred while doing statsd gauge")
	}
}
