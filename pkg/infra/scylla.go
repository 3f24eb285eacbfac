package infra

import (
	"errors"
	"strconv"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog/log"
)

type ScyllaClusterConnection struct {
	Session *gocql.Session
	Meta    map[string]interface{}
}

func (c *ScyllaClusterConnection) GetConn() (interface{}, error) {
	if c.Session == nil {
		return nil, errors.New("connection nil")
	}
	if c.Session.Closed() {
		return nil, errors.New("gocql session closed")
	}
	return c.Session, nil
}

func (c *ScyllaClusterConnection) GetMeta() (map[string]interface{}, error) {
	if c.Meta == nil {
		return nil, errors.New("meta nil")
	}
	return c.Meta, nil
}

func (c *ScyllaClusterConnection) IsLive() bool {
	return c.Session != nil && !c.Session.Closed()
}

func initScyllaClusterConns() {
	for _, configId := range activeConfigIds(storageScyllaPrefix) {
		cfg, err := BuildClusterConfigFromEnv(storageScyllaPrefix + strconv.Itoa(configId))
		if err != nil {
			log.Panic().Err(err).Msg("error building scylla cluster config")
		}
		session, err := cfg.CreateSession()
		if err != nil {
			log.Panic().Err(err).Msg("error connecting to scylla")
		}
		claimConfigId(configId, DBTypeScylla)
		Scylla.add(configId, &ScyllaClusterConnection{
			Session: session,
			Meta: map[string]interface{}{
				"configId": configId,
				"keyspace": cfg.Keyspace,
				"type":     DBTypeScylla,
			},
		})
		log.Info().Msgf("scylla session created for config id %d, keyspace %s", configId, cfg.Keyspace)
	}
}
