package config

import (
	"os"
	"sync"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/rs/zerolog/log"
)

// FileManager serves a registry read from a JSON file. The snapshot is cached for ttl and
// reloaded by the first caller after it expires; a zero ttl never reloads.
type FileManager struct {
	path      string
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
	refreshMu sync.Mutex
	snapshot  *Snapshot
	loadedAt  time.Time
	callbacks []func() error
}

func NewFileManager(path string, ttlInSeconds int) (*FileManager, error) {
	m := &FileManager{
		path: path,
		ttl:  time.Duration(ttlInSeconds) * time.Second,
		now:  time.Now,
	}
	if err := m.reload(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileManager) Snapshot() (*Snapshot, error) {
	m.mu.RLock()
	snapshot, loadedAt := m.snapshot, m.loadedAt
	m.mu.RUnlock()
	if !m.expired(loadedAt) {
		return snapshot, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.mu.RLock()
	snapshot, loadedAt = m.snapshot, m.loadedAt
	m.mu.RUnlock()
	if !m.expired(loadedAt) {
		return snapshot, nil
	}
	if err := m.reload(); err != nil {
		log.Error().Err(err).Msgf("failed to reload registry from %s, serving the previous version", m.path)
		m.mu.Lock()
		m.loadedAt = m.now()
		m.mu.Unlock()
		return snapshot, nil
	}
	m.runCallbacks()
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot, nil
}

func (m *FileManager) expired(loadedAt time.Time) bool {
	return m.ttl > 0 && m.now().Sub(loadedAt) >= m.ttl
}

func (m *FileManager) reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	snapshot, err := ParseRegistry(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.snapshot = snapshot
	m.loadedAt = m.now()
	m.mu.Unlock()
	circuitbreaker.ApplyConfigs(snapshot.CircuitBreakerConfigs())
	return nil
}

func (m *FileManager) current() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

func (m *FileManager) GetStores() (map[string]Store, error) {
	return m.current().Stores(), nil
}

func (m *FileManager) GetAllRegisteredClients() map[string]string {
	return m.current().RegisteredClients()
}

func (m *FileManager) GetCircuitBreakerConfigs() map[string]circuitbreaker.Config {
	return m.current().CircuitBreakerConfigs()
}

func (m *FileManager) RegisterWatchCallback(callback func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

func (m *FileManager) runCallbacks() {
	m.mu.RLock()
	callbacks := append([]func() error(nil), m.callbacks...)
	m.mu.RUnlock()
	for _, cb := range callbacks {
		if err := cb(); err != nil {
			log.Error().Err(err).Msg("registry reload callback failed")
		}
	}
}
