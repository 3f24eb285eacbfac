package ds

import "sync"

type SyncMap[K comparable, V any] struct {
	rw sync.RWMutex
	m  map[K]V
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

func (sm *SyncMap[K, V]) Set(key K, value V) {
	sm.rw.Lock()
	defer sm.rw.Unlock()
	sm.m[key] = value
}

func (sm *SyncMap[K, V]) Get(key K) (V, bool) {
	sm.rw.RLock()
	defer sm.rw.RUnlock()
	value, ok := sm.m[key]
	return value, ok
}

// GetOrCreate returns the stored value or stores and returns the result of create.
// create runs under the write lock and must not touch the map.
func (sm *SyncMap[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := sm.Get(key); ok {
		return v, nil
	}
	sm.rw.Lock()
	defer sm.rw.Unlock()
	if v, ok := sm.m[key]; ok {
		return v, nil
	}
	v, err := create()
	if err != nil {
		return v, err
	}
	sm.m[key] = v
	return v, nil
}

// Replace swaps the whole content and returns the previous entries.
func (sm *SyncMap[K, V]) Replace(next map[K]V) map[K]V {
	sm.rw.Lock()
	defer sm.rw.Unlock()
	prev := sm.m
	sm.m = next
	return prev
}

func (sm *SyncMap[K, V]) Len() int {
	sm.rw.RLock()
	defer sm.rw.RUnlock()
	return len(sm.m)
}

func (sm *SyncMap[K, V]) DeleteIf(cond func(K, V) bool) []V {
	sm.rw.Lock()
	defer sm.rw.Unlock()
	var removed []V
	for k, v := range sm.m {
		if cond(k, v) {
			removed = append(removed, v)
			delete(sm.m, k)
		}
	}
	return removed
}
