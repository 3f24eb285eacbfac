package infra

import (
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	storageRedisStandalonePrefix = "STORAGE_REDIS_STANDALONE_"
	storageRedisFailoverPrefix   = "STORAGE_REDIS_FAILOVER_"
	storageRedisClusterPrefix    = "STORAGE_REDIS_CLUSTER_"

	redisAddrEnvSuffix               = "_ADDR"
	redisClusterAddrsEnvSuffix       = "_ADDRESSES"
	redisMasterNameEnvSuffix         = "_MASTER_NAME"
	redisSentinelAddrsEnvSuffix      = "_SENTINEL_ADDRESSES"
	redisUsernameEnvSuffix           = "_USERNAME"
	redisPasswordEnvSuffix           = "_PASSWORD"
	redisDbEnvSuffix                 = "_DB"
	redisMaxRetryEnvSuffix           = "_MAX_RETRY"
	redisMinRetryBackoffEnvSuffix    = "_MIN_RETRY_BACKOFF_IN_MS"
	redisMaxRetryBackoffEnvSuffix    = "_MAX_RETRY_BACKOFF_IN_MS"
	redisDialTimeoutEnvSuffix        = "_DIAL_TIMEOUT_IN_MS"
	redisReadTimeoutEnvSuffix        = "_READ_TIMEOUT_IN_MS"
	redisWriteTimeoutEnvSuffix       = "_WRITE_TIMEOUT_IN_MS"
	redisPoolFifoEnvSuffix           = "_POOL_FIFO"
	redisPoolSizeEnvSuffix           = "_POOL_SIZE"
	redisMinIdleEnvSuffix            = "_MIN_IDLE_CONN"
	redisMaxIdleEnvSuffix            = "_MAX_IDLE_CONN"
	redisMaxConnAgeEnvSuffix         = "_CONN_MAX_AGE_IN_MINUTES"
	redisPoolTimeoutEnvSuffix        = "_POOL_TIMEOUT_IN_MS"
	redisMaxConnIdleTimeoutEnvSuffix = "_CONN_MAX_IDLE_TIMEOUT_IN_MINUTES"
	redisRouteRandomlyEnvSuffix      = "_ROUTE_RANDOM"
	redisReadOnlyEnvSuffix           = "_READ_ONLY"
)

// BuildRedisOptionsFromEnv reads one redis deployment from <envPrefix>_* keys.
//
// Mandatory for every flavour: _READ_TIMEOUT_IN_MS and _WRITE_TIMEOUT_IN_MS. Standalone also needs
// _ADDR, failover needs _MASTER_NAME and _SENTINEL_ADDRESSES, cluster needs _ADDRESSES.
// Pool, retry and auth keys are optional and keep the go-redis defaults when unset.
func BuildRedisOptionsFromEnv(dbType DBType, envPrefix string) (*redis.UniversalOptions, error) {
	log.Debug().Msgf("building %s config from env, env prefix - %s", dbType, envPrefix)

	if err := requireKeys(envPrefix, redisReadTimeoutEnvSuffix, redisWriteTimeoutEnvSuffix); err != nil {
		return nil, err
	}
	opts := &redis.UniversalOptions{
		ReadTimeout:  millis(envPrefix + redisReadTimeoutEnvSuffix),
		WriteTimeout: millis(envPrefix + redisWriteTimeoutEnvSuffix),
	}

	switch dbType {
	case DBTypeRedisStandalone:
		if err := requireKeys(envPrefix, redisAddrEnvSuffix); err != nil {
			return nil, err
		}
		opts.Addrs = []string{viper.GetString(envPrefix + redisAddrEnvSuffix)}
	case DBTypeRedisFailover:
		if err := requireKeys(envPrefix, redisMasterNameEnvSuffix, redisSentinelAddrsEnvSuffix); err != nil {
			return nil, err
		}
		opts.MasterName = viper.GetString(envPrefix + redisMasterNameEnvSuffix)
		opts.Addrs = splitList(viper.GetString(envPrefix + redisSentinelAddrsEnvSuffix))
		opts.RouteRandomly = viper.GetBool(envPrefix + redisRouteRandomlyEnvSuffix)
	case DBTypeRedisCluster:
		if err := requireKeys(envPrefix, redisClusterAddrsEnvSuffix); err != nil {
			return nil, err
		}
		opts.Addrs = splitList(viper.GetString(envPrefix + redisClusterAddrsEnvSuffix))
		opts.RouteRandomly = viper.GetBool(envPrefix + redisRouteRandomlyEnvSuffix)
		opts.ReadOnly = viper.GetBool(envPrefix + redisReadOnlyEnvSuffix)
	default:
		return nil, errors.New("not a redis db type: " + string(dbType))
	}

	opts.Username = viper.GetString(envPrefix + redisUsernameEnvSuffix)
	opts.Password = viper.GetString(envPrefix + redisPasswordEnvSuffix)
	opts.DB = viper.GetInt(envPrefix + redisDbEnvSuffix)
	opts.MaxRetries = viper.GetInt(envPrefix + redisMaxRetryEnvSuffix)
	opts.MinRetryBackoff = millis(envPrefix + redisMinRetryBackoffEnvSuffix)
	opts.MaxRetryBackoff = millis(envPrefix + redisMaxRetryBackoffEnvSuffix)
	opts.DialTimeout = millis(envPrefix + redisDialTimeoutEnvSuffix)
	opts.PoolFIFO = viper.GetBool(envPrefix + redisPoolFifoEnvSuffix)
	opts.PoolSize = viper.GetInt(envPrefix + redisPoolSizeEnvSuffix)
	opts.MinIdleConns = viper.GetInt(envPrefix + redisMinIdleEnvSuffix)
	opts.MaxIdleConns = viper.GetInt(envPrefix + redisMaxIdleEnvSuffix)
	opts.ConnMaxLifetime = time.Duration(viper.GetInt(envPrefix+redisMaxConnAgeEnvSuffix)) * time.Minute
	opts.PoolTimeout = millis(envPrefix + redisPoolTimeoutEnvSuffix)
	opts.ConnMaxIdleTime = time.Duration(viper.GetInt(envPrefix+redisMaxConnIdleTimeoutEnvSuffix)) * time.Minute

	log.Info().Msgf("%s options built from env, env prefix - %s, addrs - %v", dbType, envPrefix, opts.Addrs)
	return opts, nil
}

func requireKeys(envPrefix string, suffixes ...string) error {
	for _, s := range suffixes {
		if !viper.IsSet(envPrefix + s) {
			return errors.New(envPrefix + s + " not set")
		}
	}
	return nil
}

func millis(key string) time.Duration {
	return time.Duration(viper.GetInt(key)) * time.Millisecond
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
