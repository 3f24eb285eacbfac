package manualcb

// passThroughBreaker is used when a circuit breaker is disabled via configuration. It allows all requests.
type passThroughBreaker struct{}

func NewPassThroughBreaker() *passThroughBreaker {
	return &passThroughBreaker{}
}

func (nb *passThroughBreaker) IsAllowed() bool { return true }

func (nb *passThroughBreaker) RecordSuccess() {}

func (nb *passThroughBreaker) RecordFailure() {}

func (nb *passThroughBreaker) ForceOpen() {}

func (nb *passThroughBreaker) ForceClose() {}

func (nb *passThroughBreaker) NormalExecutionMode() {}
