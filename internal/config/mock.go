package config

import (
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/stretchr/testify/mock"
)

// MockConfigManager implements Manager interface for testing
type MockConfigManager struct {
	mock.Mock
}

func (m *MockConfigManager) Snapshot() (*Snapshot, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Snapshot), args.Error(1)
}

func (m *MockConfigManager) GetStores() (map[string]Store, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]Store), args.Error(1)
}

func (m *MockConfigManager) GetAllRegisteredClients() map[string]string {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]string)
}

func (m *MockConfigManager) GetCircuitBreakerConfigs() map[string]circuitbreaker.Config {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(map[string]circuitbreaker.Config)
}

func (m *MockConfigManager) RegisterWatchCallback(callback func() error) {
	m.Called(callback)
}
