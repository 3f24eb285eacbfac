package etcd

import (
	"context"
	"sync"
	"time"
)

const (
	basePath          = "/config/"
	connectionTimeout = 30 * time.Second
	envEtcdServer     = "ETCD_SERVER"
	envEtcdUsername   = "ETCD_USERNAME"
	envEtcdPassword   = "ETCD_PASSWORD"
	envWatcherEnabled = "ETCD_WATCHER_ENABLED"
	watchRestartDelay = 5 * time.Second
)

var (
	once sync.Once
)

// Etcd is the subset of etcd the service needs: whole-value reads and writes under the
// application's base path plus change notifications for a key.
type Etcd interface {
	GetBasePath() string
	GetValue(ctx context.Context, path string) ([]byte, error)
	SetValue(ctx context.Context, path string, value []byte) error
	IsNodeExist(ctx context.Context, path string) (bool, error)
	RegisterWatchPathCallback(path string, callback func(value []byte) error) error
	Close() error
}
