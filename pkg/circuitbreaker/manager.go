package circuitbreaker

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

type ManagerFactory struct {
	managers sync.Map
}

var (
	factory *ManagerFactory
	once    sync.Once
)

type Manager interface {
	GetOrCreateManualCB(key string) (ManualCircuitBreaker, error)
	ActivateCBKey([]string)
	DeactivateCBKey([]string)
	UpdateCBConfig(Config) error
	GetCBConfig() Config
	IsCBEnabled(key string) bool
	ForceOpenCB(key string)
	ForceCloseCB(key string)
	NormalExecutionModeCB(key string)
}

type manager struct {
	mu        sync.RWMutex
	cbreakers sync.Map
	cbEnabled sync.Map
	cbConfig  *Config
	name      string
}

func GetFactory() *ManagerFactory {
	once.Do(func() {
		factory = &ManagerFactory{
			managers: sync.Map{},
		}
	})
	return factory
}

// GetManager returns the process wide manager registered under name, creating it on first use.
func GetManager(name string) Manager {
	f := GetFactory()
	m, _ := f.managers.LoadOrStore(name, NewManager(name))
	return m.(Manager)
}

// NewManager builds a standalone manager. Tests use it to avoid sharing state through the factory.
func NewManager(name string) Manager {
	return &manager{
		name:     name,
		cbConfig: BuildConfig(name),
	}
}

func (m *manager) config() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cbConfig
}

func (m *manager) GetOrCreateManualCB(key string) (ManualCircuitBreaker, error) {
	cfg := m.config()
	if cfg == nil {
		return nil, fmt.Errorf("circuit breaker config is nil")
	}

	if cbreaker, ok := m.cbreakers.Load(key); ok {
		if typedBreaker, castOk := cbreaker.(ManualCircuitBreaker); castOk {
			return typedBreaker, nil
		}
	}
	newBreaker := GetManualCircuitBreaker(cfg)
	actual, _ := m.cbreakers.LoadOrStore(key, newBreaker)
	if typedBreaker, castOk := actual.(ManualCircuitBreaker); castOk {
		return typedBreaker, nil
	}

	return nil, fmt.Errorf("item in sync.Map is not a ManualCircuitBreaker")
}

func (m *manager) ActivateCBKey(activeCBKeys []string) {
	for _, cbKey := range activeCBKeys {
		if _, ok := m.cbreakers.Load(cbKey); !ok {
			m.cbreakers.Store(cbKey, GetManualCircuitBreaker(m.config()))
		}
		m.cbEnabled.Store(cbKey, true)
	}
}

func (m *manager) GetCBConfig() Config {
	return *m.config()
}

func (m *manager) DeactivateCBKey(inactiveCBKeys []string) {
	for _, key := range inactiveCBKeys {
		m.cbreakers.Delete(key)
		m.cbEnabled.Delete(key)
	}
}

// UpdateCBConfig replaces every existing breaker with one built from the new config.
func (m *manager) UpdateCBConfig(cbConfig Config) error {
	if cbConfig.Name == "" {
		cbConfig.Name = m.name
	}
	m.mu.Lock()
	m.cbConfig = &cbConfig
	m.mu.Unlock()
	m.cbreakers.Range(func(key, value interface{}) bool {
		if _, ok := value.(ManualCircuitBreaker); ok {
			m.cbreakers.Store(key, GetManualCircuitBreaker(&cbConfig))
		}
		return true
	})
	return nil
}

func (m *manager) IsCBEnabled(key string) bool {
	if value, ok := m.cbEnabled.Load(key); ok {
		if enabled, castOk := value.(bool); castOk {
			return enabled
		}
	}
	return false
}

// ForceOpenCB brings the circuit breaker to force open state
func (m *manager) ForceOpenCB(key string) {
	circuitBreaker, err := m.GetOrCreateManualCB(key)
	if err != nil {
		log.Error().Err(err).Msgf("failed to get circuit breaker for key %s", key)
		return
	}
	circuitBreaker.ForceOpen()
}

// ForceCloseCB brings the circuit breaker to force close state
func (m *manager) ForceCloseCB(key string) {
	circuitBreaker, err := m.GetOrCreateManualCB(key)
	if err != nil {
		log.Error().Err(err).Msgf("failed to get circuit breaker for key %s", key)
		return
	}
	circuitBreaker.ForceClose()
}

// NormalExecutionModeCB brings the circuit breaker to normal execution mode
func (m *manager) NormalExecutionModeCB(key string) {
	circuitBreaker, err := m.GetOrCreateManualCB(key)
	if err != nil {
		log.Error().Err(err).Msgf("failed to get circuit breaker for key %s", key)
		return
	}
	circuitBreaker.NormalExecutionMode()
}

// ApplyConfigs pushes registry breaker configs into the named managers: keys are activated or
// deactivated, configs replaced, and forced states applied.
func ApplyConfigs(configs map[string]Config) {
	for name, cbConfig := range configs {
		applyConfig(GetManager(name), cbConfig)
	}
}

func applyConfig(cbManager Manager, cbConfig Config) {
	activeCBs := make([]string, 0)
	inactiveCBs := make([]string, 0)
	for cbName, activeCBConfig := range cbConfig.ActiveCBKeys {
		if activeCBConfig.Enabled {
			activeCBs = append(activeCBs, cbName)
		} else {
			inactiveCBs = append(inactiveCBs, cbName)
		}
	}
	_ = cbManager.UpdateCBConfig(cbConfig)
	cbManager.ActivateCBKey(activeCBs)
	cbManager.DeactivateCBKey(inactiveCBs)

	for cbName, activeCBConfig := range cbConfig.ActiveCBKeys {
		if !activeCBConfig.Enabled {
			continue
		}
		switch activeCBConfig.ForcedState {
		case ForcedStateOpen:
			cbManager.ForceOpenCB(cbName)
		case ForcedStateClose:
			cbManager.ForceCloseCB(cbName)
		case ForcedStateNormal:
			cbManager.NormalExecutionModeCB(cbName)
		default:
			log.Error().Msgf("invalid forced state for circuit breaker %s. switching to normal execution mode", cbName)
			cbManager.NormalExecutionModeCB(cbName)
		}
	}
}
