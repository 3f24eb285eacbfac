package infra

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const pingTimeout = 500 * time.Millisecond

type RedisConnection struct {
	Client redis.UniversalClient
	Meta   map[string]interface{}
}

func (c *RedisConnection) GetConn() (interface{}, error) {
	if c.Client == nil {
		return nil, errors.New("connection nil")
	}
	return c.Client, nil
}

func (c *RedisConnection) GetMeta() (map[string]interface{}, error) {
	if c.Meta == nil {
		return nil, errors.New("meta nil")
	}
	return c.Meta, nil
}

func (c *RedisConnection) IsLive() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.Client.Ping(ctx).Err() == nil
}

// NewRedisClient builds the client flavour matching dbType from universal options.
func NewRedisClient(dbType DBType, opts *redis.UniversalOptions) (redis.UniversalClient, error) {
	switch dbType {
	case DBTypeRedisStandalone:
		return redis.NewClient(opts.Simple()), nil
	case DBTypeRedisFailover:
		return redis.NewFailoverClient(opts.Failover()), nil
	case DBTypeRedisCluster:
		return redis.NewClusterClient(opts.Cluster()), nil
	}
	return nil, errors.New("not a redis db type: " + string(dbType))
}

func initRedisConns(dbType DBType, prefix string, target *Connectors) {
	for _, configId := range activeConfigIds(prefix) {
		opts, err := BuildRedisOptionsFromEnv(dbType, prefix+strconv.Itoa(configId))
		if err != nil {
			log.Panic().Err(err).Msgf("error building %s config", dbType)
		}
		client, err := NewRedisClient(dbType, opts)
		if err != nil {
			log.Panic().Err(err).Msgf("error creating %s client", dbType)
		}
		claimConfigId(configId, dbType)
		target.add(configId, &RedisConnection{
			Client: client,
			Meta: map[string]interface{}{
				"configId": configId,
				"type":     dbType,
			},
		})
		log.Info().Msgf("%s connection created for config id %d", dbType, configId)
	}
}
