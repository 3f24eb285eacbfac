package featurelog

import (
	"errors"

	"github.com/spf13/viper"
)

const (
	topic            = "_TOPIC"
	bootstrapURLs    = "_BOOTSTRAP_SERVERS"
	saslUsername     = "_SASL_USERNAME"
	saslPassword     = "_SASL_PASSWORD"
	saslMechanism    = "_SASL_MECHANISM"
	securityProtocol = "_SECURITY_PROTOCOL"
	clientId         = "_CLIENT_ID"
	lingerMs         = "_LINGER_MS"
	compressionType  = "_COMPRESSION_TYPE"
	queueSize        = "_QUEUE_SIZE"
	workers          = "_WORKERS"

	defaultQueueSize = 1024
	defaultWorkers   = 2
)

type ProducerConfig struct {
	BootstrapURLs    string
	SaslUsername     string
	SaslPassword     string
	SaslMechanism    string
	SecurityProtocol string
	ClientID         string
	Topic            string
	LingerMs         int
	CompressionType  string
	QueueSize        int
	Workers          int
}

// BuildProducerConfigFromEnv reads <envPrefix>_* keys. Topic, bootstrap servers and client id are mandatory.
func BuildProducerConfigFromEnv(envPrefix string) (*ProducerConfig, error) {
	if !viper.IsSet(envPrefix + topic) {
		return nil, errors.New(envPrefix + topic + " not set")
	}
	if !viper.IsSet(envPrefix + bootstrapURLs) {
		return nil, errors.New(envPrefix + bootstrapURLs + " not set")
	}
	if !viper.IsSet(envPrefix + clientId) {
		return nil, errors.New(envPrefix + clientId + " not set")
	}

	cfg := &ProducerConfig{
		Topic:            viper.GetString(envPrefix + topic),
		BootstrapURLs:    viper.GetString(envPrefix + bootstrapURLs),
		SaslUsername:     viper.GetString(envPrefix + saslUsername),
		SaslPassword:     viper.GetString(envPrefix + saslPassword),
		SaslMechanism:    viper.GetString(envPrefix + saslMechanism),
		SecurityProtocol: viper.GetString(envPrefix + securityProtocol),
		ClientID:         viper.GetString(envPrefix + clientId),
		LingerMs:         viper.GetInt(envPrefix + lingerMs),
		CompressionType:  viper.GetString(envPrefix + compressionType),
		QueueSize:        defaultQueueSize,
		Workers:          defaultWorkers,
	}
	if viper.IsSet(envPrefix+queueSize) && viper.GetInt(envPrefix+queueSize) > 0 {
		cfg.QueueSize = viper.GetInt(envPrefix + queueSize)
	}
	if viper.IsSet(envPrefix+workers) && viper.GetInt(envPrefix+workers) > 0 {
		cfg.Workers = viper.GetInt(envPrefix + workers)
	}
	return cfg, nil
}
