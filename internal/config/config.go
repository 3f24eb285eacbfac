package config

import (
	"encoding/json"
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	envRegistrySource   = "REGISTRY_SOURCE"
	envRegistryFilePath = "REGISTRY_FILE_PATH"
	envRegistryCacheTtl = "REGISTRY_CACHE_TTL_IN_SECONDS"

	SourceEtcd = "etcd"
	SourceFile = "file"
)

// Manager hands out registry snapshots. A request takes one snapshot and uses it throughout.
type Manager interface {
	Snapshot() (*Snapshot, error)
	GetStores() (map[string]Store, error)
	GetAllRegisteredClients() map[string]string
	GetCircuitBreakerConfigs() map[string]circuitbreaker.Config
	// RegisterWatchCallback is invoked after every successful registry swap.
	RegisterWatchCallback(callback func() error)
}

// NewManagerFromEnv picks the registry source from REGISTRY_SOURCE. etcd must be initialised
// before an etcd backed manager is created.
func NewManagerFromEnv() Manager {
	source := SourceEtcd
	if viper.IsSet(envRegistrySource) {
		source = viper.GetString(envRegistrySource)
	}
	switch source {
	case SourceEtcd:
		return NewEtcdManager()
	case SourceFile:
		if !viper.IsSet(envRegistryFilePath) {
			log.Panic().Msgf("%s is not set", envRegistryFilePath)
		}
		m, err := NewFileManager(viper.GetString(envRegistryFilePath), viper.GetInt(envRegistryCacheTtl))
		if err != nil {
			log.Panic().Err(err).Msg("failed to load file registry")
		}
		return m
	default:
		log.Panic().Msgf("unsupported %s %q", envRegistrySource, source)
	}
	return nil
}

// ParseRegistry decodes a registry JSON blob and validates it into a snapshot.
func ParseRegistry(data []byte) (*Snapshot, error) {
	var registry FeatureRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
	}
	return NewSnapshot(&registry)
}
