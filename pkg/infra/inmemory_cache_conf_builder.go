package infra

import (
	"fmt"

	"github.com/spf13/viper"
)

const (
	inMemoryCachePrefix = "IN_MEM_CACHE_"
	enabledSuffix       = "_ENABLED"
	sizeInBytesSuffix   = "_SIZE_IN_BYTES"
	nameSuffix          = "_NAME"

	// freecache refuses segments below 512KB and silently raises them.
	minCacheSizeInBytes = 512 * 1024
)

type IMCacheConf struct {
	Enabled     bool
	SizeInBytes int
	Name        string
}

func BuildInMemoryCacheConfFromEnv(envPrefix string) (*IMCacheConf, error) {
	if err := requireKeys(envPrefix, enabledSuffix, nameSuffix, sizeInBytesSuffix); err != nil {
		return nil, fmt.Errorf("invalid in-memory cache config: %w", err)
	}
	size := viper.GetInt(envPrefix + sizeInBytesSuffix)
	if size < minCacheSizeInBytes {
		return nil, fmt.Errorf("%s%s must be at least %d", envPrefix, sizeInBytesSuffix, minCacheSizeInBytes)
	}
	return &IMCacheConf{
		Enabled:     viper.GetBool(envPrefix + enabledSuffix),
		SizeInBytes: size,
		Name:        viper.GetString(envPrefix + nameSuffix),
	}, nil
}
