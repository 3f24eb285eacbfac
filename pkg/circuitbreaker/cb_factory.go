package circuitbreaker

import (
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker/manualcb"
	"github.com/rs/zerolog/log"
)

func GetManualCircuitBreaker(config *Config) ManualCircuitBreaker {
	if config == nil {
		return nil
	}

	if !config.Enabled {
		return manualcb.NewPassThroughBreaker()
	}

	switch config.Version {
	case 0, 1:
		return manualFailSafeCB(config.withDefaults())
	default:
		log.Error().Msgf("circuit breaker version %d not supported for %s, passing through", config.Version, config.Name)
		return manualcb.NewPassThroughBreaker()
	}
}

func manualFailSafeCB(config Config) ManualCircuitBreaker {
	cbConfig := &manualcb.CBConfig{
		CBName:                        config.Name,
		FailureRateThreshold:          config.FailureRateThreshold,
		FailureExecutionThreshold:     config.FailureRateMinimumWindow,
		FailureThresholdingPeriodInMS: config.FailureRateWindowInMs,
		SuccessRatioThreshold:         config.SuccessCountThreshold,
		SuccessThresholdingCapacity:   config.SuccessCountWindow,
		WithDelayInMS:                 config.WithDelayInMS,
	}
	return manualcb.NewManualFailsafeBreaker(cbConfig)
}
