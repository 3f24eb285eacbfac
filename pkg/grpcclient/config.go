package grpcclient

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

const (
	hostSuffix      = "_HOST"
	portSuffix      = "_PORT"
	deadlineSuffix  = "_DEADLINE_IN_MS"
	plainTextSuffix = "_PLAIN_TEXT"
	defaultDeadline = 200 * time.Millisecond
)

type Config struct {
	Host      string
	Port      string
	DeadLine  time.Duration
	PlainText bool
}

// BuildConfigFromEnv reads <envPrefix>_HOST and <envPrefix>_PORT, both mandatory, plus the optional
// _DEADLINE_IN_MS (default 200) and _PLAIN_TEXT (default false).
func BuildConfigFromEnv(envPrefix string) (*Config, error) {
	if !viper.IsSet(envPrefix + hostSuffix) {
		return nil, errors.New(envPrefix + hostSuffix + " not set")
	}
	if !viper.IsSet(envPrefix + portSuffix) {
		return nil, errors.New(envPrefix + portSuffix + " not set")
	}
	cfg := &Config{
		Host:      viper.GetString(envPrefix + hostSuffix),
		Port:      viper.GetString(envPrefix + portSuffix),
		DeadLine:  defaultDeadline,
		PlainText: viper.GetBool(envPrefix + plainTextSuffix),
	}
	if viper.IsSet(envPrefix + deadlineSuffix) {
		cfg.DeadLine = time.Duration(viper.GetInt(envPrefix+deadlineSuffix)) * time.Millisecond
	}
	return cfg, nil
}

func (c *Config) Target() string {
	return c.Host + ":" + c.Port
}
