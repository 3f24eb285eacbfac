package circuitbreaker

import (
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/rs/zerolog/log"
)

const (
	OnlineStoreManager    = "online_store"
	TransformationManager = "transformation"
)

// Handler guards calls per key. Keys that are not active in the manager are always allowed
// and their outcomes are not recorded.
type Handler struct {
	CBManager circuitbreaker.Manager
}

func NewHandler(cbManager circuitbreaker.Manager) *Handler {
	return &Handler{
		CBManager: cbManager,
	}
}

func (h *Handler) GetCB(cbKey string) (circuitbreaker.ManualCircuitBreaker, error) {
	return h.CBManager.GetOrCreateManualCB(cbKey)
}

func (h *Handler) IsCBEnabled(cbKey string) bool {
	return h.CBManager != nil && h.CBManager.IsCBEnabled(cbKey)
}

func (h *Handler) RecordFailure(cbKey string) {
	if !h.IsCBEnabled(cbKey) {
		return
	}
	cb, cbErr := h.GetCB(cbKey)
	if cbErr != nil {
		log.Error().Err(cbErr).Msgf("Error getting circuit breaker %s", cbKey)
		return
	}
	cb.RecordFailure()
}

func (h *Handler) RecordSuccess(cbKey string) {
	if !h.IsCBEnabled(cbKey) {
		return
	}
	cb, cbErr := h.GetCB(cbKey)
	if cbErr != nil {
		log.Error().Err(cbErr).Msgf("Error getting circuit breaker %s", cbKey)
		return
	}
	cb.RecordSuccess()
}

// Record records err as a failure, or a success when err is nil.
func (h *Handler) Record(cbKey string, err error) {
	if err != nil {
		h.RecordFailure(cbKey)
		return
	}
	h.RecordSuccess(cbKey)
}

// IsCallAllowed checks if the circuit breaker allows the call and handles all CB-related logic
func (h *Handler) IsCallAllowed(cbKey string) bool {
	if !h.IsCBEnabled(cbKey) {
		return true
	}
	cb, cbErr := h.GetCB(cbKey)
	if cbErr != nil {
		log.Error().Err(cbErr).Msgf("Error getting circuit breaker %s", cbKey)
		return false
	}
	if !cb.IsAllowed() {
		log.Debug().Msgf("Circuit breaker %s is not allowed", cbKey)
		return false
	}
	return true
}
