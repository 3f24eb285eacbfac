package feature

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/data/repositories/stores"
	"github.com/Meesho/BharatMLStack/feature-server/internal/handler/circuitbreaker"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/ds"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/metric"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var errCircuitOpen = errors.New("online store circuit breaker open")

// StoreProvider resolves a registry store id to its backend. provider.StorageProvider satisfies it.
type StoreProvider interface {
	GetStore(storeId string) (stores.Store, error)
}

// StoreCircuitBreakerKey is the circuit breaker key guarding one online store.
func StoreCircuitBreakerKey(storeId string) string {
	return "online_store_" + storeId
}

// OnlineStoreLookup fetches store-backed references with one multi-get per feature view.
type OnlineStoreLookup struct {
	stores      StoreProvider
	cb          *circuitbreaker.Handler
	parallelism int
	timeout     time.Duration
	now         func() time.Time
}

func NewOnlineStoreLookup(storeProvider StoreProvider, cb *circuitbreaker.Handler, parallelism int, timeout time.Duration) *OnlineStoreLookup {
	if cb == nil {
		cb = circuitbreaker.NewHandler(nil)
	}
	return &OnlineStoreLookup{
		stores:      storeProvider,
		cb:          cb,
		parallelism: parallelism,
		timeout:     timeout,
		now:         time.Now,
	}
}

// lookupUnit is the work of one feature view: its distinct keys and the row each request row maps to.
type lookupUnit struct {
	view     *config.FeatureView
	features []string
	query    *stores.Query
	rowToKey []int

	rows []stores.Row
	err  error
}

// Lookup returns a value and status per row for every ref. Store failures are contained in the
// affected view. Only cancellation of ctx fails the call.
func (l *OnlineStoreLookup) Lookup(ctx context.Context, snap *config.Snapshot, refs []types.FeatureReference, entityRows []types.EntityRow) (*LookupResult, error) {
	units, err := l.plan(snap, refs, entityRows)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	if l.parallelism > 0 {
		g.SetLimit(l.parallelism)
	}
	for _, u := range units {
		g.Go(func() error {
			u.rows, u.err = l.fetch(gctx, u)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &LookupResult{values: make(map[types.FeatureReference][]FeatureValue, len(refs))}
	now := l.now()
	for _, u := range units {
		for _, f := range u.features {
			ref := types.FeatureReference{View: u.view.Name, Feature: f}
			result.values[ref] = u.values(f, len(entityRows), now)
		}
	}
	return result, nil
}

func (l *OnlineStoreLookup) plan(snap *config.Snapshot, refs []types.FeatureReference, entityRows []types.EntityRow) ([]*lookupUnit, error) {
	byView := ds.NewOrderedMap[string, *ds.OrderedSet[string]](0)
	for _, ref := range refs {
		features, ok := byView.Get(ref.View)
		if !ok {
			features = ds.NewOrderedSet[string](0)
			byView.Set(ref.View, features)
		}
		features.Add(ref.Feature)
	}

	units := make([]*lookupUnit, 0, byView.Len())
	var planErr error
	byView.Range(func(view string, features *ds.OrderedSet[string]) bool {
		fv, ok := snap.FeatureView(view)
		if !ok {
			planErr = requestErrorf(ErrUnknownFeatureView, "%s", view)
			return false
		}
		u := &lookupUnit{
			view:     fv,
			features: append([]string(nil), features.Items()...),
			query: &stores.Query{
				Project:    snap.Project(),
				View:       view,
				ValueTypes: make(map[string]types.ValueType, features.Len()),
			},
		}
		u.query.Features = u.features
		for _, f := range u.features {
			u.query.ValueTypes[f], _ = snap.FeatureType(view, f)
		}
		if fv.InMemoryCacheEnabled {
			u.query.CacheTtlInSeconds = fv.CacheTtlInSeconds
			u.query.CacheJitterPercent = fv.CacheJitterPercent
		}
		if err := u.planKeys(snap.JoinKeys(view), entityRows); err != nil {
			planErr = err
			return false
		}
		units = append(units, u)
		return true
	})
	return units, planErr
}

// planKeys deduplicates entity keys. Entityless views read a single dummy key for every row.
func (u *lookupUnit) planKeys(joinKeys []string, entityRows []types.EntityRow) error {
	u.rowToKey = make([]int, len(entityRows))
	if len(joinKeys) == 0 {
		if len(entityRows) > 0 {
			u.query.Keys = []types.EntityKey{types.DummyEntityKey()}
		}
		return nil
	}
	seen := make(map[string]int, len(entityRows))
	for i, row := range entityRows {
		key := types.EntityKey{JoinKeys: joinKeys, Values: make([]types.Value, len(joinKeys))}
		for j, jk := range joinKeys {
			v, ok := row[jk]
			if !ok {
				return requestErrorf(ErrMissingEntityKey, "row %d has no value for %s", i, jk)
			}
			key.Values[j] = v
		}
		serialized, err := key.Serialize()
		if err != nil {
			return requestErrorf(ErrInvalidRequestValue, "row %d: %v", i, err)
		}
		idx, ok := seen[serialized]
		if !ok {
			idx = len(u.query.Keys)
			seen[serialized] = idx
			u.query.Keys = append(u.query.Keys, key)
		}
		u.rowToKey[i] = idx
	}
	return nil
}

func (l *OnlineStoreLookup) fetch(ctx context.Context, u *lookupUnit) ([]stores.Row, error) {
	if len(u.query.Keys) == 0 {
		return nil, nil
	}
	tags := metric.BuildTag(metric.NewTag(metric.TagFeatureView, u.view.Name))
	cbKey := StoreCircuitBreakerKey(u.view.StoreId)
	if !l.cb.IsCallAllowed(cbKey) {
		metric.Incr(metric.OnlineStoreLookupFailure, tags)
		return nil, fmt.Errorf("view %s: %w", u.view.Name, errCircuitOpen)
	}
	store, err := l.stores.GetStore(u.view.StoreId)
	if err != nil {
		metric.Incr(metric.OnlineStoreLookupFailure, tags)
		log.Error().Err(err).Msgf("no online store %s for feature view %s", u.view.StoreId, u.view.Name)
		return nil, err
	}
	tags = append(tags, metric.TagAsString(metric.TagStoreType, store.Type()))

	uctx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		uctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	start := time.Now()
	rows, err := store.MultiGet(uctx, u.query)
	if err == nil && len(rows) != len(u.query.Keys) {
		err = fmt.Errorf("%w: %d rows for %d keys", stores.ErrStoreOperation, len(rows), len(u.query.Keys))
	}
	metric.Timing(metric.OnlineStoreLookupLatency, time.Since(start), tags)
	if ctx.Err() != nil {
		// the request is gone, the store did nothing wrong
		return nil, ctx.Err()
	}
	l.cb.Record(cbKey, err)
	if err != nil {
		metric.Incr(metric.OnlineStoreLookupFailure, tags)
		log.Error().Err(err).Msgf("online store lookup failed for feature view %s", u.view.Name)
		return nil, err
	}
	return rows, nil
}

// values maps the unit outcome for one feature back onto request rows.
func (u *lookupUnit) values(feature string, rowCount int, now time.Time) []FeatureValue {
	if u.err != nil {
		return fillStatus(rowCount, types.StatusError)
	}
	maxAge := time.Duration(u.view.TtlInSeconds) * time.Second
	out := make([]FeatureValue, rowCount)
	for i := range out {
		row := u.rows[u.rowToKey[i]]
		out[i] = cellValue(row, feature, maxAge, now)
	}
	return out
}

func cellValue(row stores.Row, feature string, maxAge time.Duration, now time.Time) FeatureValue {
	if !row.Found {
		return absent(types.StatusNotFound)
	}
	v, ok := row.Values[feature]
	if !ok {
		return absent(types.StatusNotFound)
	}
	eventTime := row.FeatureEventTime(feature)
	if maxAge > 0 && !eventTime.IsZero() && now.Sub(eventTime) > maxAge {
		return FeatureValue{Status: types.StatusOutsideMaxAge, EventTime: eventTime}
	}
	if v.IsNull() {
		return FeatureValue{Value: v, Status: types.StatusNullValue, EventTime: eventTime}
	}
	return FeatureValue{Value: v, Status: types.StatusPresent, EventTime: eventTime}
}
