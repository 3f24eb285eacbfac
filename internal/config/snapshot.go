package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/circuitbreaker"
	"github.com/hashicorp/go-multierror"
)

// TimestampField is the hash field the online stores keep the event time in.
const TimestampField = "_ts"

var ErrInvalidRegistry = errors.New("invalid feature registry")

// Snapshot is one validated, indexed registry version. It is never mutated after
// NewSnapshot returns; pointers it hands out must be treated as read-only.
type Snapshot struct {
	registry     *FeatureRegistry
	joinKeys     map[string][]string
	joinKeyTypes map[string]types.ValueType
	featureTypes map[string]map[string]types.ValueType
	odfvDeps     map[string][]types.FeatureReference
	odfvRequest  map[string][]Feature
}

// NewSnapshot validates the registry and indexes it. Every problem found is reported in one
// aggregated error wrapping ErrInvalidRegistry.
func NewSnapshot(registry *FeatureRegistry) (*Snapshot, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is nil", ErrInvalidRegistry)
	}
	r := normalize(registry)
	s := &Snapshot{
		registry:     r,
		joinKeys:     make(map[string][]string, len(r.FeatureViews)),
		joinKeyTypes: make(map[string]types.ValueType, len(r.Entities)),
		featureTypes: make(map[string]map[string]types.ValueType, len(r.FeatureViews)+len(r.OnDemandFeatureViews)),
		odfvDeps:     make(map[string][]types.FeatureReference, len(r.OnDemandFeatureViews)),
		odfvRequest:  make(map[string][]Feature, len(r.OnDemandFeatureViews)),
	}

	var result *multierror.Error
	result = multierror.Append(result, s.indexEntities()...)
	result = multierror.Append(result, s.indexStores()...)
	result = multierror.Append(result, s.indexFeatureViews()...)
	result = multierror.Append(result, s.indexOnDemandFeatureViews()...)
	result = multierror.Append(result, s.validateFeatureServices()...)
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, err)
	}
	return s, nil
}

func normalize(in *FeatureRegistry) *FeatureRegistry {
	r := *in
	r.Entities = make(map[string]Entity, len(in.Entities))
	for name, e := range in.Entities {
		if e.Name == "" {
			e.Name = name
		}
		if e.JoinKey == "" {
			e.JoinKey = e.Name
		}
		r.Entities[name] = e
	}
	r.FeatureViews = make(map[string]FeatureView, len(in.FeatureViews))
	for name, fv := range in.FeatureViews {
		if fv.Name == "" {
			fv.Name = name
		}
		r.FeatureViews[name] = fv
	}
	r.OnDemandFeatureViews = make(map[string]OnDemandFeatureView, len(in.OnDemandFeatureViews))
	for name, odfv := range in.OnDemandFeatureViews {
		if odfv.Name == "" {
			odfv.Name = name
		}
		if odfv.Mode == "" {
			odfv.Mode = ModeNative
		}
		r.OnDemandFeatureViews[name] = odfv
	}
	r.FeatureServices = make(map[string]FeatureService, len(in.FeatureServices))
	for name, fs := range in.FeatureServices {
		if fs.Name == "" {
			fs.Name = name
		}
		r.FeatureServices[name] = fs
	}
	return &r
}

func (s *Snapshot) indexEntities() []error {
	var errs []error
	for _, name := range sortedKeys(s.registry.Entities) {
		e := s.registry.Entities[name]
		if !isScalarType(e.ValueType) {
			errs = append(errs, fmt.Errorf("entity %s: invalid value type %s", name, e.ValueType))
			continue
		}
		if prev, ok := s.joinKeyTypes[e.JoinKey]; ok && prev != e.ValueType {
			errs = append(errs, fmt.Errorf("entity %s: join key %s declared as both %s and %s", name, e.JoinKey, prev, e.ValueType))
			continue
		}
		s.joinKeyTypes[e.JoinKey] = e.ValueType
	}
	return errs
}

func (s *Snapshot) indexStores() []error {
	var errs []error
	for _, id := range sortedKeys(s.registry.Storage.Stores) {
		switch s.registry.Storage.Stores[id].DbType {
		case DbTypeRedisStandalone, DbTypeRedisFailover, DbTypeRedisCluster, DbTypeScylla:
		default:
			errs = append(errs, fmt.Errorf("store %s: unsupported db type %q", id, s.registry.Storage.Stores[id].DbType))
		}
	}
	return errs
}

func (s *Snapshot) indexFeatureViews() []error {
	var errs []error
	for _, name := range sortedKeys(s.registry.FeatureViews) {
		fv := s.registry.FeatureViews[name]
		if _, clash := s.registry.OnDemandFeatureViews[name]; clash {
			errs = append(errs, fmt.Errorf("feature view %s: name is also used by an on demand feature view", name))
		}
		if _, ok := s.registry.Storage.Stores[fv.StoreId]; !ok {
			errs = append(errs, fmt.Errorf("feature view %s: unknown store id %q", name, fv.StoreId))
		}
		joinKeys := make([]string, 0, len(fv.Entities))
		for _, entityName := range fv.Entities {
			entity, ok := s.registry.Entities[entityName]
			if !ok {
				errs = append(errs, fmt.Errorf("feature view %s: unknown entity %s", name, entityName))
				continue
			}
			joinKeys = append(joinKeys, entity.JoinKey)
		}
		s.joinKeys[name] = joinKeys

		featureTypes, ferrs := indexFeatures("feature view "+name, fv.Features)
		errs = append(errs, ferrs...)
		if _, reserved := featureTypes[TimestampField]; reserved {
			errs = append(errs, fmt.Errorf("feature view %s: feature name %s is reserved", name, TimestampField))
		}
		s.featureTypes[name] = featureTypes
	}
	return errs
}

func (s *Snapshot) indexOnDemandFeatureViews() []error {
	var errs []error
	for _, name := range sortedKeys(s.registry.OnDemandFeatureViews) {
		odfv := s.registry.OnDemandFeatureViews[name]
		prefix := "on demand feature view " + name

		switch odfv.Mode {
		case ModeNative:
		case ModeRemote:
			if _, ok := s.registry.TransformationServices[odfv.TransformationServiceId]; !ok {
				errs = append(errs, fmt.Errorf("%s: unknown transformation service %q", prefix, odfv.TransformationServiceId))
			}
		default:
			errs = append(errs, fmt.Errorf("%s: unsupported mode %q", prefix, odfv.Mode))
		}

		deps := make([]types.FeatureReference, 0)
		for _, src := range odfv.Sources {
			fv, ok := s.registry.FeatureViews[src.FeatureView]
			if !ok {
				errs = append(errs, fmt.Errorf("%s: unknown source feature view %s", prefix, src.FeatureView))
				continue
			}
			features := src.Features
			if len(features) == 0 {
				features = featureNames(fv.Features)
			}
			for _, f := range features {
				if _, ok := s.featureTypes[src.FeatureView][f]; !ok {
					errs = append(errs, fmt.Errorf("%s: unknown source feature %s:%s", prefix, src.FeatureView, f))
					continue
				}
				deps = append(deps, types.FeatureReference{View: src.FeatureView, Feature: f})
			}
		}
		s.odfvDeps[name] = deps

		requestFields := make(map[string]struct{})
		request := make([]Feature, 0)
		for _, rs := range odfv.RequestSources {
			for _, f := range rs.Schema {
				if !isValueType(f.ValueType) {
					errs = append(errs, fmt.Errorf("%s: request field %s has invalid value type %s", prefix, f.Name, f.ValueType))
				}
				if _, dup := requestFields[f.Name]; dup {
					continue
				}
				requestFields[f.Name] = struct{}{}
				request = append(request, f)
			}
		}
		s.odfvRequest[name] = request

		if len(odfv.Features) == 0 {
			errs = append(errs, fmt.Errorf("%s: declares no output features", prefix))
		}
		featureTypes, ferrs := indexFeatures(prefix, odfv.Features)
		errs = append(errs, ferrs...)
		for _, f := range odfv.Features {
			if _, clash := requestFields[f.Name]; clash {
				errs = append(errs, fmt.Errorf("%s: output %s collides with a request source field", prefix, f.Name))
			}
		}
		s.featureTypes[name] = featureTypes
	}
	return errs
}

func (s *Snapshot) validateFeatureServices() []error {
	var errs []error
	for _, name := range sortedKeys(s.registry.FeatureServices) {
		for _, p := range s.registry.FeatureServices[name].Projections {
			known, ok := s.featureTypes[p.FeatureView]
			if !ok {
				errs = append(errs, fmt.Errorf("feature service %s: unknown view %s", name, p.FeatureView))
				continue
			}
			for _, f := range p.Features {
				if _, ok := known[f]; !ok {
					errs = append(errs, fmt.Errorf("feature service %s: unknown feature %s:%s", name, p.FeatureView, f))
				}
			}
		}
	}
	return errs
}

func indexFeatures(owner string, features []Feature) (map[string]types.ValueType, []error) {
	var errs []error
	out := make(map[string]types.ValueType, len(features))
	for _, f := range features {
		if f.Name == "" {
			errs = append(errs, fmt.Errorf("%s: feature without a name", owner))
			continue
		}
		if _, dup := out[f.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate feature %s", owner, f.Name))
			continue
		}
		if !isValueType(f.ValueType) {
			errs = append(errs, fmt.Errorf("%s: feature %s has invalid value type %s", owner, f.Name, f.ValueType))
		}
		out[f.Name] = f.ValueType
	}
	return out, errs
}

func isValueType(t types.ValueType) bool {
	return t > types.ValueTypeInvalid && t <= types.ValueTypeUnixTimestampList
}

func isScalarType(t types.ValueType) bool {
	return isValueType(t) && !t.IsList()
}

func featureNames(features []Feature) []string {
	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Name
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Snapshot) Project() string { return s.registry.Project }

func (s *Snapshot) FeatureView(name string) (*FeatureView, bool) {
	fv, ok := s.registry.FeatureViews[name]
	if !ok {
		return nil, false
	}
	return &fv, true
}

func (s *Snapshot) OnDemandFeatureView(name string) (*OnDemandFeatureView, bool) {
	odfv, ok := s.registry.OnDemandFeatureViews[name]
	if !ok {
		return nil, false
	}
	return &odfv, true
}

func (s *Snapshot) FeatureService(name string) (*FeatureService, bool) {
	fs, ok := s.registry.FeatureServices[name]
	if !ok {
		return nil, false
	}
	return &fs, true
}

func (s *Snapshot) Entity(name string) (*Entity, bool) {
	e, ok := s.registry.Entities[name]
	if !ok {
		return nil, false
	}
	return &e, true
}

func (s *Snapshot) Store(id string) (*Store, bool) {
	st, ok := s.registry.Storage.Stores[id]
	if !ok {
		return nil, false
	}
	return &st, true
}

func (s *Snapshot) Stores() map[string]Store {
	out := make(map[string]Store, len(s.registry.Storage.Stores))
	for id, st := range s.registry.Storage.Stores {
		out[id] = st
	}
	return out
}

func (s *Snapshot) TransformationService(id string) (*TransformationService, bool) {
	ts, ok := s.registry.TransformationServices[id]
	if !ok {
		return nil, false
	}
	return &ts, true
}

// JoinKeys returns the join keys of a feature view in entity declaration order. Entityless views have none.
func (s *Snapshot) JoinKeys(view string) []string {
	return s.joinKeys[view]
}

func (s *Snapshot) JoinKeyType(joinKey string) (types.ValueType, bool) {
	t, ok := s.joinKeyTypes[joinKey]
	return t, ok
}

// FeatureType covers both feature view features and on demand outputs.
func (s *Snapshot) FeatureType(view, feature string) (types.ValueType, bool) {
	t, ok := s.featureTypes[view][feature]
	return t, ok
}

// FeatureNames lists the features of a feature view or on demand view in declaration order.
func (s *Snapshot) FeatureNames(view string) []string {
	if fv, ok := s.registry.FeatureViews[view]; ok {
		return featureNames(fv.Features)
	}
	if odfv, ok := s.registry.OnDemandFeatureViews[view]; ok {
		return featureNames(odfv.Features)
	}
	return nil
}

// Dependencies are the store-backed inputs of an on demand view, sources in declaration order.
func (s *Snapshot) Dependencies(odfv string) []types.FeatureReference {
	return s.odfvDeps[odfv]
}

// RequestData is the deduplicated request-time schema of an on demand view.
func (s *Snapshot) RequestData(odfv string) []Feature {
	return s.odfvRequest[odfv]
}

func (s *Snapshot) ReaderToken(callerId string) (string, bool) {
	p, ok := s.registry.Security.Reader[callerId]
	return p.Token, ok
}

func (s *Snapshot) RegisteredClients() map[string]string {
	out := make(map[string]string, len(s.registry.Security.Reader))
	for id, p := range s.registry.Security.Reader {
		out[id] = p.Token
	}
	return out
}

func (s *Snapshot) CircuitBreakerConfigs() map[string]circuitbreaker.Config {
	return s.registry.CircuitBreaker
}
