package config

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/compression"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/etcd"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// RegistryPath is the etcd key, relative to the application base path, holding the registry blob.
const RegistryPath = "/feature-registry"

const (
	loadTimeout    = 5 * time.Second
	maxLoadElapsed = 30 * time.Second
)

// EtcdManager keeps the latest valid registry from etcd behind an atomic pointer. The blob is
// plain JSON or a compression frame around JSON.
type EtcdManager struct {
	instance  etcd.Etcd
	snapshot  atomic.Pointer[Snapshot]
	mu        sync.RWMutex
	callbacks []func() error
}

func NewEtcdManager() *EtcdManager {
	m, err := newEtcdManager(etcd.Instance(), backoff.NewExponentialBackOff())
	if err != nil {
		log.Panic().Err(err).Msg("failed to load feature registry from etcd")
	}
	return m
}

func newEtcdManager(instance etcd.Etcd, b backoff.BackOff) (*EtcdManager, error) {
	m := &EtcdManager{instance: instance}
	if eb, ok := b.(*backoff.ExponentialBackOff); ok {
		eb.MaxElapsedTime = maxLoadElapsed
	}
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		data, err := instance.GetValue(ctx, RegistryPath)
		if err != nil {
			log.Warn().Err(err).Msg("fetching feature registry from etcd")
			return err
		}
		snapshot, err := decodeRegistryBlob(data)
		if err != nil {
			return backoff.Permanent(err)
		}
		m.snapshot.Store(snapshot)
		return nil
	}, b)
	if err != nil {
		return nil, err
	}
	circuitbreaker.ApplyConfigs(m.snapshot.Load().CircuitBreakerConfigs())
	if err := instance.RegisterWatchPathCallback(RegistryPath, m.onChange); err != nil {
		return nil, fmt.Errorf("watch %s: %w", RegistryPath, err)
	}
	return m, nil
}

func decodeRegistryBlob(data []byte) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty registry blob", ErrInvalidRegistry)
	}
	if data[0] != '{' {
		raw, err := compression.Unframe(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
		}
		data = raw
	}
	return ParseRegistry(data)
}

// onChange swaps in a new snapshot. An invalid blob is rejected and the previous snapshot stays active.
func (m *EtcdManager) onChange(value []byte) error {
	snapshot, err := decodeRegistryBlob(value)
	if err != nil {
		log.Error().Err(err).Msg("rejected feature registry update, keeping the previous version")
		return err
	}
	m.snapshot.Store(snapshot)
	circuitbreaker.ApplyConfigs(snapshot.CircuitBreakerConfigs())
	log.Info().Msg("feature registry updated")

	m.mu.RLock()
	callbacks := append([]func() error(nil), m.callbacks...)
	m.mu.RUnlock()
	var errs []error
	for _, cb := range callbacks {
		if err := cb(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *EtcdManager) Snapshot() (*Snapshot, error) {
	s := m.snapshot.Load()
	if s == nil {
		return nil, fmt.Errorf("%w: not loaded", ErrInvalidRegistry)
	}
	return s, nil
}

func (m *EtcdManager) GetStores() (map[string]Store, error) {
	s, err := m.Snapshot()
	if err != nil {
		return nil, err
	}
	return s.Stores(), nil
}

func (m *EtcdManager) GetAllRegisteredClients() map[string]string {
	s, err := m.Snapshot()
	if err != nil {
		return map[string]string{}
	}
	return s.RegisteredClients()
}

func (m *EtcdManager) GetCircuitBreakerConfigs() map[string]circuitbreaker.Config {
	s, err := m.Snapshot()
	if err != nil {
		return nil
	}
	return s.CircuitBreakerConfigs()
}

func (m *EtcdManager) RegisterWatchCallback(callback func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}
