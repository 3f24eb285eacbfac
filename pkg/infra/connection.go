package infra

import (
	"fmt"
	"sync"
)

// DBType values match the db-type strings of the registry's store section.
type DBType string

const (
	DBTypeScylla          DBType = "scylla"
	DBTypeRedisStandalone DBType = "redis_standalone"
	DBTypeRedisFailover   DBType = "redis_failover"
	DBTypeRedisCluster    DBType = "redis_cluster"
	DBTypeInMemory        DBType = "in_memory"
	activeConfIds                = "ACTIVE_CONFIG_IDS"
)

type ConnectionFacade interface {
	GetConn() (interface{}, error)
	GetMeta() (map[string]interface{}, error)
	IsLive() bool
}

type Connector interface {
	GetConnection(configId int) (ConnectionFacade, error)
}

// Connectors holds the connections of one DBType keyed by config id.
type Connectors struct {
	dbType DBType
	mu     sync.RWMutex
	conns  map[int]ConnectionFacade
}

func newConnectors(dbType DBType) *Connectors {
	return &Connectors{dbType: dbType, conns: make(map[int]ConnectionFacade)}
}

func (c *Connectors) GetConnection(configId int) (ConnectionFacade, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	conn, ok := c.conns[configId]
	if !ok {
		return nil, fmt.Errorf("%s connection for config id %d not found", c.dbType, configId)
	}
	return conn, nil
}

func (c *Connectors) ConfigIds() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.conns))
	for id := range c.conns {
		ids = append(ids, id)
	}
	return ids
}

func (c *Connectors) add(configId int, conn ConnectionFacade) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[configId] = conn
}
