package featurelog

import (
	"math/rand"
	"sync"

	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/feature"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "KAFKA_PRODUCER_FEATURE_LOG"
	envEnabled          = "FEATURE_LOGGING_ENABLED"
	envSamplePercentage = "FEATURE_LOGGING_SAMPLE_PERCENTAGE"

	contentTypeHeader = "content-type"
	arrowStreamType   = "application/vnd.apache.arrow.stream"
)

var (
	once     sync.Once
	instance *Logger
)

type entry struct {
	requestId string
	req       *feature.Request
	resp      *feature.Response
}

// Logger hands sampled responses to background workers that encode and publish them.
// Log never blocks: when the queue is full the record is dropped.
type Logger struct {
	producer         Producer
	samplePercentage int
	sample           func() int

	mu     sync.RWMutex
	closed bool
	queue  chan entry
	wg     sync.WaitGroup
}

// InitFeatureLogger returns nil unless FEATURE_LOGGING_ENABLED is set. A nil Logger is a no-op.
func InitFeatureLogger() *Logger {
	once.Do(func() {
		if !viper.GetBool(envEnabled) {
			log.Info().Msg("feature logging disabled")
			return
		}
		cfg, err := BuildProducerConfigFromEnv(envPrefix)
		if err != nil {
			log.Panic().Err(err).Msg("failed to build feature log producer config")
		}
		producer, err := NewKafkaProducer(cfg)
		if err != nil {
			log.Panic().Err(err).Msg("failed to create feature log producer")
		}
		samplePercentage := 100
		if viper.IsSet(envSamplePercentage) {
			samplePercentage = viper.GetInt(envSamplePercentage)
		}
		instance = NewLogger(producer, samplePercentage, cfg.QueueSize, cfg.Workers)
		log.Info().Msgf("feature logging to %s at %d%%", cfg.Topic, samplePercentage)
	})
	return instance
}

func NewLogger(producer Producer, samplePercentage, queueSize, workers int) *Logger {
	if workers <= 0 {
		workers = 1
	}
	l := &Logger{
		producer:         producer,
		samplePercentage: samplePercentage,
		sample:           func() int { return rand.Intn(100) },
		queue:            make(chan entry, queueSize),
	}
	l.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go l.work()
	}
	return l
}

func (l *Logger) Log(req *feature.Request, resp *feature.Response) {
	if l == nil || l.samplePercentage <= 0 {
		return
	}
	if l.samplePercentage < 100 && l.sample() >= l.samplePercentage {
		return
	}
	requestId := req.RequestId
	if requestId == "" {
		requestId = uuid.NewString()
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- entry{requestId: requestId, req: req, resp: resp}:
	default:
		metric.Incr(metric.FeatureLogDropped, []string{})
	}
}

func (l *Logger) work() {
	defer l.wg.Done()
	headers := map[string][]byte{contentTypeHeader: []byte(arrowStreamType)}
	for e := range l.queue {
		payload, err := EncodeRecord(e.requestId, e.req, e.resp)
		if err != nil {
			log.Error().Err(err).Msgf("failed to encode feature log record %s", e.requestId)
			metric.Incr(metric.FeatureLogDropped, []string{})
			continue
		}
		if err := l.producer.Produce([]byte(e.requestId), payload, headers); err != nil {
			log.Error().Err(err).Msgf("failed to publish feature log record %s", e.requestId)
			metric.Incr(metric.FeatureLogDropped, []string{})
			continue
		}
		metric.Incr(metric.FeatureLogPublished, []string{})
	}
}

// Close drains the queue and closes the producer.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()
	l.producer.Close()
}
