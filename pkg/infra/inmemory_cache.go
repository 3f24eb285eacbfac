package infra

import (
	"errors"
	"strconv"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog/log"
)

// InMemoryCacheConnection wraps a freecache segment shared by every cached feature view
// that names its config id.
type InMemoryCacheConnection struct {
	Client *freecache.Cache
	Meta   map[string]interface{}
}

func (c *InMemoryCacheConnection) GetConn() (interface{}, error) {
	if c.Client == nil {
		return nil, errors.New("cache nil")
	}
	return c.Client, nil
}

func (c *InMemoryCacheConnection) GetMeta() (map[string]interface{}, error) {
	if c.Meta == nil {
		return nil, errors.New("meta nil")
	}
	return c.Meta, nil
}

func (c *InMemoryCacheConnection) IsLive() bool {
	return c.Client != nil
}

func initInMemoryCacheConns() {
	for _, configId := range activeConfigIds(inMemoryCachePrefix) {
		conf, err := BuildInMemoryCacheConfFromEnv(inMemoryCachePrefix + strconv.Itoa(configId))
		if err != nil {
			log.Panic().Err(err).Msg("error building in memory cache conf")
		}
		if !conf.Enabled {
			log.Info().Msgf("in memory cache %s disabled", conf.Name)
			continue
		}
		claimConfigId(configId, DBTypeInMemory)
		InMemoryCache.add(configId, &InMemoryCacheConnection{
			Client: freecache.NewCache(conf.SizeInBytes),
			Meta: map[string]interface{}{
				"configId": configId,
				"name":     conf.Name,
				"type":     DBTypeInMemory,
			},
		})
		log.Info().Msgf("in memory cache %s created with %d bytes", conf.Name, conf.SizeInBytes)
	}
}
