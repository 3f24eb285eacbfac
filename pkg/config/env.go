package config

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	initialized = false
	once        sync.Once
)

// InitEnv binds every process setting to environment variables. Call it first from main.
func InitEnv() {
	if initialized {
		log.Debug().Msg("Env already initialized!")
		return
	}
	once.Do(func() {
		viper.AutomaticEnv()
		viper.SetDefault("APP_LOG_LEVEL", "WARN")
		viper.SetDefault("RETRIEVE_MAX_PARALLELISM", 16)
		viper.SetDefault("RETRIEVE_LOOKUP_TIMEOUT_IN_MS", 50)
		viper.SetDefault("RETRIEVE_TRANSFORM_TIMEOUT_IN_MS", 100)
		initialized = true
		log.Info().Msg("Env initialized!")
	})
}
