package manualcb

import (
	"sync/atomic"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	fscb "github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/rs/zerolog/log"
)

const stateChangedMetric = "circuit_breaker_state_changed"

// failsafeBreaker wraps a failsafe-go circuit breaker. While forced open or closed the
// underlying breaker is bypassed and executions are not recorded.
type failsafeBreaker struct {
	breaker fscb.CircuitBreaker[any]
	mode    atomic.Int32
}

func NewManualFailsafeBreaker(config *CBConfig) *failsafeBreaker {
	cb := fscb.Builder[any]().
		WithFailureRateThreshold(uint(config.FailureRateThreshold), uint(config.FailureExecutionThreshold), time.Duration(config.FailureThresholdingPeriodInMS)*time.Millisecond).
		WithSuccessThresholdRatio(uint(config.SuccessRatioThreshold), uint(config.SuccessThresholdingCapacity)).
		WithDelay(time.Duration(config.WithDelayInMS) * time.Millisecond).
		OnStateChanged(func(event fscb.StateChangedEvent) {
			log.Debug().Msgf("circuit breaker %s changed state from %s to %s", config.CBName, event.OldState, event.NewState)
			metric.Incr(stateChangedMetric, metric.BuildTag(
				metric.NewTag("name", config.CBName),
				metric.NewTag("from", event.OldState.String()),
				metric.NewTag("to", event.NewState.String()),
			))
		}).
		Build()
	return &failsafeBreaker{
		breaker: cb,
	}
}

// IsAllowed returns true if a request is permitted.
func (b *failsafeBreaker) IsAllowed() bool {
	switch b.mode.Load() {
	case modeForcedOpen:
		return false
	case modeForcedClose:
		return true
	}
	return b.breaker.TryAcquirePermit()
}

func (b *failsafeBreaker) RecordSuccess() {
	if b.mode.Load() == modeNormal {
		b.breaker.RecordSuccess()
	}
}

func (b *failsafeBreaker) RecordFailure() {
	if b.mode.Load() == modeNormal {
		b.breaker.RecordFailure()
	}
}

func (b *failsafeBreaker) ForceOpen() {
	b.mode.Store(modeForcedOpen)
}

func (b *failsafeBreaker) ForceClose() {
	b.mode.Store(modeForcedClose)
}

// NormalExecutionMode hands control back to the failure thresholds, starting closed.
func (b *failsafeBreaker) NormalExecutionMode() {
	if b.mode.Swap(modeNormal) != modeNormal {
		b.breaker.Close()
	}
}
