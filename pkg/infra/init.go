package infra

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	mut             sync.Mutex
	ConfIdDBTypeMap = make(map[int]DBType)

	RedisStandalone = newConnectors(DBTypeRedisStandalone)
	RedisFailover   = newConnectors(DBTypeRedisFailover)
	RedisCluster    = newConnectors(DBTypeRedisCluster)
	Scylla          = newConnectors(DBTypeScylla)
	InMemoryCache   = newConnectors(DBTypeInMemory)
)

// InitDBConnectors opens every connection listed in the *_ACTIVE_CONFIG_IDS env keys.
// Config ids are unique across all db types. Misconfiguration panics at startup.
func InitDBConnectors() {
	mut.Lock()
	defer mut.Unlock()
	initRedisConns(DBTypeRedisStandalone, storageRedisStandalonePrefix, RedisStandalone)
	initRedisConns(DBTypeRedisFailover, storageRedisFailoverPrefix, RedisFailover)
	initRedisConns(DBTypeRedisCluster, storageRedisClusterPrefix, RedisCluster)
	initScyllaClusterConns()
	initInMemoryCacheConns()
}

// GetConnector returns the connectors of a registry db type.
func GetConnector(dbType DBType) (Connector, error) {
	switch dbType {
	case DBTypeRedisStandalone:
		return RedisStandalone, nil
	case DBTypeRedisFailover:
		return RedisFailover, nil
	case DBTypeRedisCluster:
		return RedisCluster, nil
	case DBTypeScylla:
		return Scylla, nil
	case DBTypeInMemory:
		return InMemoryCache, nil
	}
	return nil, fmt.Errorf("unsupported db type %s", dbType)
}

func activeConfigIds(prefix string) []int {
	raw := viper.GetString(prefix + activeConfIds)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			log.Panic().Err(err).Msgf("invalid config id %q in %s%s", p, prefix, activeConfIds)
		}
		ids = append(ids, id)
	}
	return ids
}

func claimConfigId(configId int, dbType DBType) {
	if existing, ok := ConfIdDBTypeMap[configId]; ok {
		log.Panic().Msgf("duplicate config id %d, already used by %s", configId, existing)
	}
	ConfIdDBTypeMap[configId] = dbType
}
