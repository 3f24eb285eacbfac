package etcd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	instance       Etcd
	DefaultVersion = 1
)

// Init initializes the Etcd client, to be called from main.go
func Init(version int) {
	once.Do(func() {
		switch version {
		case DefaultVersion:
			appName := viper.GetString("APP_NAME")
			if appName == "" || !viper.IsSet(envEtcdServer) {
				log.Panic().Msgf("APP_NAME or %s is not set", envEtcdServer)
			}
			v1, err := newV1Etcd(appName)
			if err != nil {
				log.Panic().Err(err).Msg("failed to create etcd client")
			}
			instance = v1
		default:
			log.Panic().Msg(fmt.Sprintf("invalid etcd version %d", version))
		}
	})
}

// Instance returns the Etcd client instance. Ensure that Init is called before calling this function
func Instance() Etcd {
	if instance == nil {
		log.Panic().Msg("etcd client not initialized, call Init first")
	}
	return instance
}
