package stores

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/compression"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/coocood/freecache"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	metricUpdateInterval = 10 * time.Minute
	HitRate              = "in_memory_cache_hit_rate"
	ItemCount            = "in_memory_cache_item_count"
	EvacuateCount        = "in_memory_cache_evacuate_count"
	ExpiryCount          = "in_memory_cache_expiry_count"
)

// CachedStore is a read-through freecache decorator. Queries with a positive CacheTtlInSeconds
// are served from the cache when every requested feature was covered by the cached entry.
// Misses are fetched from the wrapped store and cached, negative results included.
type CachedStore struct {
	next  Store
	cache *freecache.Cache
	name  string
}

func NewCachedStore(next Store, cache *freecache.Cache, name string) *CachedStore {
	return &CachedStore{next: next, cache: cache, name: name}
}

func (c *CachedStore) Type() string {
	return StoreTypeCached
}

type cachedRow struct {
	Found        bool              `msgpack:"f"`
	EventTimeMs  int64             `msgpack:"t"`
	EventTimesMs map[string]int64  `msgpack:"e,omitempty"`
	Features     []string          `msgpack:"c"`
	Values       map[string][]byte `msgpack:"v"`
}

func (c *CachedStore) MultiGet(ctx context.Context, q *Query) ([]Row, error) {
	if q.CacheTtlInSeconds <= 0 || len(q.Keys) == 0 {
		return c.next.MultiGet(ctx, q)
	}
	keys, err := rowKeys(q, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	rows := make([]Row, len(keys))
	var missIdx []int
	for i, k := range keys {
		row, ok := c.get(q, k)
		if !ok {
			missIdx = append(missIdx, i)
			continue
		}
		rows[i] = row
	}
	tags := metric.BuildTag(metric.NewTag(metric.TagCacheName, c.name), metric.NewTag(metric.TagFeatureView, q.View))
	metric.Count("in_memory_cache_hit", int64(len(keys)-len(missIdx)), tags)
	metric.Count("in_memory_cache_miss", int64(len(missIdx)), tags)
	if len(missIdx) == 0 {
		return rows, nil
	}

	missQuery := *q
	missQuery.Keys = make([]types.EntityKey, len(missIdx))
	for j, i := range missIdx {
		missQuery.Keys[j] = q.Keys[i]
	}
	fetched, err := c.next.MultiGet(ctx, &missQuery)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(missIdx) {
		return nil, fmt.Errorf("%w: %s returned %d rows for %d keys", ErrStoreOperation, c.next.Type(), len(fetched), len(missIdx))
	}
	for j, i := range missIdx {
		rows[i] = fetched[j]
		c.set(q, keys[i], fetched[j])
	}
	return rows, nil
}

func (c *CachedStore) get(q *Query, key string) (Row, bool) {
	data, err := c.cache.Get([]byte(key))
	if err != nil {
		return Row{}, false
	}
	raw, err := compression.Unframe(data)
	if err != nil {
		log.Debug().Err(err).Msgf("dropping unreadable cache entry %s", key)
		c.cache.Del([]byte(key))
		return Row{}, false
	}
	var cr cachedRow
	if err := msgpack.Unmarshal(raw, &cr); err != nil {
		log.Debug().Err(err).Msgf("dropping unreadable cache entry %s", key)
		c.cache.Del([]byte(key))
		return Row{}, false
	}
	covered := make(map[string]struct{}, len(cr.Features))
	for _, f := range cr.Features {
		covered[f] = struct{}{}
	}
	for _, f := range q.Features {
		if _, ok := covered[f]; !ok {
			return Row{}, false
		}
	}

	row := Row{Found: cr.Found}
	if cr.EventTimeMs != 0 {
		row.EventTime = time.UnixMilli(cr.EventTimeMs).UTC()
	}
	for _, f := range q.Features {
		if ms, ok := cr.EventTimesMs[f]; ok {
			if row.EventTimes == nil {
				row.EventTimes = make(map[string]time.Time, len(q.Features))
			}
			row.EventTimes[f] = time.UnixMilli(ms).UTC()
		}
		b, ok := cr.Values[f]
		if !ok {
			continue
		}
		v, err := decodeFeature(q, f, b)
		if err != nil {
			return Row{}, false
		}
		if row.Values == nil {
			row.Values = make(map[string]types.Value, len(q.Features))
		}
		row.Values[f] = v
	}
	return row, true
}

func (c *CachedStore) set(q *Query, key string, row Row) {
	cr := cachedRow{Found: row.Found, Features: q.Features}
	if !row.EventTime.IsZero() {
		cr.EventTimeMs = row.EventTime.UnixMilli()
	}
	if len(row.EventTimes) > 0 {
		cr.EventTimesMs = make(map[string]int64, len(row.EventTimes))
		for f, t := range row.EventTimes {
			cr.EventTimesMs[f] = t.UnixMilli()
		}
	}
	if len(row.Values) > 0 {
		cr.Values = make(map[string][]byte, len(row.Values))
		for f, v := range row.Values {
			b, err := types.EncodeValue(v)
			if err != nil {
				return
			}
			cr.Values[f] = b
		}
	}
	raw, err := msgpack.Marshal(&cr)
	if err != nil {
		return
	}
	framed, err := compression.Frame(compression.TypeZSTD, raw)
	if err != nil {
		return
	}
	if err := c.cache.Set([]byte(key), framed, ttlWithJitter(q.CacheTtlInSeconds, q.CacheJitterPercent)); err != nil {
		metric.Incr("in_memory_cache_set_failure", metric.BuildTag(metric.NewTag(metric.TagCacheName, c.name), metric.NewTag(metric.TagFeatureView, q.View)))
	}
}

// ttlWithJitter spreads expiry by +/- jitterPercentage of ttl so entries written together do not expire together.
func ttlWithJitter(ttlInSeconds, jitterPercentage int) int {
	jitterRange := ttlInSeconds * jitterPercentage / 100
	if jitterRange <= 0 {
		return ttlInSeconds
	}
	finalTTL := ttlInSeconds + rand.Intn(2*jitterRange+1) - jitterRange
	if finalTTL < 1 {
		return ttlInSeconds
	}
	return finalTTL
}

// PublishCacheMetrics reports freecache gauges until ctx is done.
func PublishCacheMetrics(ctx context.Context, cache *freecache.Cache, cacheName string) {
	ticker := time.NewTicker(metricUpdateInterval)
	cacheMetricTags := metric.BuildTag(metric.NewTag(metric.TagCacheName, cacheName))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metric.Gauge(HitRate, cache.HitRate(), cacheMetricTags)
			metric.Gauge(ItemCount, float64(cache.EntryCount()), cacheMetricTags)
			metric.Gauge(EvacuateCount, float64(cache.EvacuateCount()), cacheMetricTags)
			metric.Gauge(ExpiryCount, float64(cache.ExpiredCount()), cacheMetricTags)
		}
	}
}
