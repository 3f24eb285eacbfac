package provider

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/stores"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/infra"
	"github.com/coocood/freecache"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const inMemCacheConfIdEnv = "STORE_IN_MEM_CACHE_CONF_ID"

var (
	ErrStoreNotFound = errors.New("store not found")

	StorageProviderImpl *StorageProvider
	initOnce            sync.Once
)

// StoreBuilder opens the backend for one store config.
type StoreBuilder func(storeId string, sConfig config.Store) (stores.Store, error)

type StorageProvider struct {
	mu              sync.RWMutex
	storeIdRegistry map[string]*StorageMetadata
	configManager   config.Manager
	build           StoreBuilder
	cache           *freecache.Cache
	cacheName       string
}

type StorageMetadata struct {
	DbType string
	hash   string
	store  stores.Store
}

// InitStorageProvider loads every store of the registry and reloads changed ones on registry updates.
func InitStorageProvider(configManager config.Manager) *StorageProvider {
	initOnce.Do(func() {
		sp, err := NewStorageProvider(configManager, BuildStore)
		if err != nil {
			log.Panic().Err(err).Msg("error loading online stores")
		}
		if viper.IsSet(inMemCacheConfIdEnv) {
			sp.enableCache(viper.GetInt(inMemCacheConfIdEnv))
		}
		configManager.RegisterWatchCallback(sp.UpdateStores)
		StorageProviderImpl = sp
	})
	return StorageProviderImpl
}

func NewStorageProvider(configManager config.Manager, build StoreBuilder) (*StorageProvider, error) {
	sp := &StorageProvider{
		storeIdRegistry: make(map[string]*StorageMetadata),
		configManager:   configManager,
		build:           build,
	}
	if err := sp.UpdateStores(); err != nil {
		return nil, err
	}
	return sp, nil
}

func (sp *StorageProvider) enableCache(confId int) {
	connFacade, err := infra.InMemoryCache.GetConnection(confId)
	if err != nil {
		log.Panic().Err(err).Msgf("in memory cache %d for online stores not initialised", confId)
	}
	conn := connFacade.(*infra.InMemoryCacheConnection)
	meta, _ := conn.GetMeta()
	name, _ := meta["name"].(string)
	sp.SetCache(conn.Client, name)
	go stores.PublishCacheMetrics(context.Background(), conn.Client, name)
}

// SetCache wraps every store in a read-through cache. Views opt in through their cache TTL.
func (sp *StorageProvider) SetCache(cache *freecache.Cache, name string) {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.cache = cache
	sp.cacheName = name
}

func (sp *StorageProvider) GetStore(storeId string) (stores.Store, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	storeMeta, exists := sp.storeIdRegistry[storeId]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, storeId)
	}
	if sp.cache != nil {
		return stores.NewCachedStore(storeMeta.store, sp.cache, sp.cacheName), nil
	}
	return storeMeta.store, nil
}

// UpdateStores rebuilds stores whose config changed and drops stores removed from the registry.
// A store that fails to build keeps its previous instance.
func (sp *StorageProvider) UpdateStores() error {
	storeConfigs, err := sp.configManager.GetStores()
	if err != nil {
		return err
	}

	sp.mu.RLock()
	current := make(map[string]*StorageMetadata, len(sp.storeIdRegistry))
	for id, meta := range sp.storeIdRegistry {
		current[id] = meta
	}
	sp.mu.RUnlock()

	var errs *multierror.Error
	next := make(map[string]*StorageMetadata, len(storeConfigs))
	for storeId, sConfig := range storeConfigs {
		hash, err := getHash(sConfig)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if meta, ok := current[storeId]; ok && meta.hash == hash {
			log.Debug().Msgf("Store %s already loaded, no change detected... skipping reload", storeId)
			next[storeId] = meta
			continue
		}
		store, err := sp.build(storeId, sConfig)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("store %s: %w", storeId, err))
			if meta, ok := current[storeId]; ok {
				next[storeId] = meta
			}
			continue
		}
		log.Info().Msgf("loaded store %s of type %s", storeId, sConfig.DbType)
		next[storeId] = &StorageMetadata{DbType: sConfig.DbType, hash: hash, store: store}
	}

	sp.mu.Lock()
	sp.storeIdRegistry = next
	sp.mu.Unlock()
	return errs.ErrorOrNil()
}

// BuildStore opens a store on the connection named by its db type and conf id.
func BuildStore(storeId string, sConfig config.Store) (stores.Store, error) {
	connector, err := infra.GetConnector(infra.DBType(sConfig.DbType))
	if err != nil {
		return nil, err
	}
	connFacade, err := connector.GetConnection(sConfig.ConfId)
	if err != nil {
		return nil, err
	}
	switch conn := connFacade.(type) {
	case *infra.RedisConnection:
		return stores.NewRedisStore(conn, sConfig.KeyPrefix)
	case *infra.ScyllaClusterConnection:
		return stores.NewScyllaStore(sConfig.Table, conn)
	}
	return nil, fmt.Errorf("store %s: db type %s cannot serve online lookups", storeId, sConfig.DbType)
}

func getHash(store config.Store) (string, error) {
	jsonBytes, err := json.Marshal(store)
	if err != nil {
		return "", err
	}
	hash := sha1.Sum(jsonBytes)
	return hex.EncodeToString(hash[:]), nil
}
