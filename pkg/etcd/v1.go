package etcd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	clientv3 "go.etcd.io/etcd/client/v3"
)

type V1 struct {
	conn               *clientv3.Client
	basePath           string
	watcherEnabled     bool
	watchPathCallbacks map[string][]func(value []byte) error
	watching           map[string]context.CancelFunc
	mu                 sync.Mutex
}

func newV1Etcd(appName string) (*V1, error) {
	servers := strings.Split(viper.GetString(envEtcdServer), ",")
	conn, err := clientv3.New(clientv3.Config{
		Endpoints:           servers,
		Username:            viper.GetString(envEtcdUsername),
		Password:            viper.GetString(envEtcdPassword),
		DialTimeout:         connectionTimeout,
		DialKeepAliveTime:   connectionTimeout,
		PermitWithoutStream: true,
	})
	if err != nil {
		return nil, err
	}
	watcherEnabled := true
	if viper.IsSet(envWatcherEnabled) {
		watcherEnabled = viper.GetBool(envWatcherEnabled)
	}
	return &V1{
		conn:               conn,
		basePath:           buildBasePath(appName),
		watcherEnabled:     watcherEnabled,
		watchPathCallbacks: make(map[string][]func(value []byte) error),
		watching:           make(map[string]context.CancelFunc),
	}, nil
}

func buildBasePath(appName string) string {
	return basePath + appName
}

func (v *V1) absolutePath(path string) string {
	if strings.HasPrefix(path, "/") {
		return v.basePath + path
	}
	return v.basePath + "/" + path
}

func (v *V1) GetBasePath() string {
	return v.basePath
}

func (v *V1) GetValue(ctx context.Context, path string) ([]byte, error) {
	resp, err := v.conn.Get(ctx, v.absolutePath(path))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, fmt.Errorf("etcd node %s not found", v.absolutePath(path))
	}
	return resp.Kvs[0].Value, nil
}

func (v *V1) SetValue(ctx context.Context, path string, value []byte) error {
	_, err := v.conn.Put(ctx, v.absolutePath(path), string(value))
	return err
}

func (v *V1) IsNodeExist(ctx context.Context, path string) (bool, error) {
	resp, err := v.conn.Get(ctx, v.absolutePath(path), clientv3.WithCountOnly())
	if err != nil {
		return false, err
	}
	return resp.Count > 0, nil
}

// RegisterWatchPathCallback invokes callback with the new value every time the node at path changes.
func (v *V1) RegisterWatchPathCallback(path string, callback func(value []byte) error) error {
	if !v.watcherEnabled {
		log.Warn().Msgf("etcd watcher disabled, callback for %s will not fire", path)
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.watchPathCallbacks[path] = append(v.watchPathCallbacks[path], callback)
	if _, ok := v.watching[path]; !ok {
		ctx, cancel := context.WithCancel(context.Background())
		v.watching[path] = cancel
		go v.watch(ctx, path)
	}
	return nil
}

func (v *V1) watch(ctx context.Context, path string) {
	for ctx.Err() == nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Msgf("panic in etcd watch for %s: %v", path, r)
				}
			}()
			watchChan := v.conn.Watch(ctx, v.absolutePath(path))
			for watchResp := range watchChan {
				if err := watchResp.Err(); err != nil {
					log.Error().Err(err).Msgf("etcd watch error for %s", path)
					continue
				}
				for _, event := range watchResp.Events {
					if event.Type != clientv3.EventTypePut {
						log.Warn().Msgf("ignoring %s event on %s", event.Type, path)
						continue
					}
					v.fire(path, event.Kv.Value)
				}
			}
		}()
		// avoid hot restarts when the watch channel keeps closing
		time.Sleep(watchRestartDelay)
	}
}

func (v *V1) fire(path string, value []byte) {
	v.mu.Lock()
	callbacks := append([]func([]byte) error(nil), v.watchPathCallbacks[path]...)
	v.mu.Unlock()
	for _, callback := range callbacks {
		if err := callback(value); err != nil {
			log.Error().Err(err).Msgf("unable to execute the watch callback for path %s", path)
		}
	}
}

func (v *V1) Close() error {
	v.mu.Lock()
	for _, cancel := range v.watching {
		cancel()
	}
	v.mu.Unlock()
	return v.conn.Close()
}
