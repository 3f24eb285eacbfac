package featurelog

import (
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog/log"
)

const (
	bootstrapServersKey = "bootstrap.servers"
	clientIdKey         = "client.id"
	saslUsernameKey     = "sasl.username"
	saslPasswordKey     = "sasl.password"
	saslMechanismKey    = "sasl.mechanisms"
	securityProtocolKey = "security.protocol"
	lingerMsKey         = "linger.ms"
	compressionTypeKey  = "compression.type"

	flushTimeoutMs = 5000
)

// Producer publishes one encoded feature log record.
type Producer interface {
	Produce(key, value []byte, headers map[string][]byte) error
	Close()
}

type KafkaProducer struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaProducer(cfg *ProducerConfig) (*KafkaProducer, error) {
	configMap := kafka.ConfigMap{
		bootstrapServersKey: cfg.BootstrapURLs,
		clientIdKey:         cfg.ClientID,
	}
	if cfg.SecurityProtocol != "" {
		configMap[securityProtocolKey] = cfg.SecurityProtocol
	}
	if cfg.SaslMechanism != "" {
		configMap[saslMechanismKey] = cfg.SaslMechanism
	}
	if cfg.SaslUsername != "" {
		configMap[saslUsernameKey] = cfg.SaslUsername
	}
	if cfg.SaslPassword != "" {
		configMap[saslPasswordKey] = cfg.SaslPassword
	}
	if cfg.LingerMs > 0 {
		configMap[lingerMsKey] = cfg.LingerMs
	}
	if cfg.CompressionType != "" {
		configMap[compressionTypeKey] = cfg.CompressionType
	}

	p, err := kafka.NewProducer(&configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	// delivery reports must be drained or the producer stalls
	go func() {
		for e := range p.Events() {
			if ev, ok := e.(*kafka.Message); ok && ev.TopicPartition.Error != nil {
				log.Error().Err(ev.TopicPartition.Error).Str("topic", *ev.TopicPartition.Topic).Msg("feature log delivery failed")
			}
		}
	}()
	return &KafkaProducer{producer: p, topic: cfg.Topic}, nil
}

func (k *KafkaProducer) Produce(key, value []byte, headers map[string][]byte) error {
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &k.topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          value,
	}
	for hk, hv := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: hk, Value: hv})
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("kafka produce error: %w", err)
	}
	return nil
}

// Close flushes outstanding messages before closing the producer.
func (k *KafkaProducer) Close() {
	if remaining := k.producer.Flush(flushTimeoutMs); remaining > 0 {
		log.Warn().Msgf("%d feature log messages not delivered before close", remaining)
	}
	k.producer.Close()
}
