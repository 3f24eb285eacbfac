package feature

import (
	"github.com/Meesho/BharatMLStack/feature-server/internal/config"
	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
	"github.com/Meesho/BharatMLStack/feature-server/pkg/ds"
)

// ExpandFeatureService lists the references of a feature service in projection order.
// A projection without features stands for every feature of its view.
func ExpandFeatureService(snap *config.Snapshot, name string) ([]string, error) {
	fs, ok := snap.FeatureService(name)
	if !ok {
		return nil, requestErrorf(ErrUnknownFeatureService, "%s", name)
	}
	refs := make([]string, 0)
	for _, p := range fs.Projections {
		features := p.Features
		if len(features) == 0 {
			features = snap.FeatureNames(p.FeatureView)
		}
		for _, f := range features {
			refs = append(refs, types.FeatureReference{View: p.FeatureView, Feature: f}.String())
		}
	}
	return refs, nil
}

// ResolveFeatureReferences splits the requested references into store-backed references and on
// demand outputs, and works out what the on demand views need from the stores and the request.
func ResolveFeatureReferences(snap *config.Snapshot, refs []string) (*ResolvedFeatures, error) {
	requested := make([]types.FeatureReference, 0, len(refs))
	storeRefs := ds.NewOrderedSet[types.FeatureReference](len(refs))
	odfvRefs := ds.NewOrderedSet[types.FeatureReference](len(refs))
	odfvs := ds.NewOrderedSet[string](len(refs))

	for _, raw := range refs {
		ref, err := types.ParseFeatureReference(raw)
		if err != nil {
			return nil, &RequestError{Err: err}
		}
		if _, ok := snap.FeatureView(ref.View); ok {
			if _, ok := snap.FeatureType(ref.View, ref.Feature); !ok {
				return nil, requestErrorf(ErrUnknownFeature, "%s", ref)
			}
			storeRefs.Add(ref)
		} else if _, ok := snap.OnDemandFeatureView(ref.View); ok {
			if _, ok := snap.FeatureType(ref.View, ref.Feature); !ok {
				return nil, requestErrorf(ErrUnknownFeature, "%s", ref)
			}
			odfvRefs.Add(ref)
			odfvs.Add(ref.View)
		} else {
			return nil, requestErrorf(ErrUnknownFeatureView, "%s", ref.View)
		}
		requested = append(requested, ref)
	}

	if err := checkNameConflicts(storeRefs, odfvRefs); err != nil {
		return nil, err
	}

	resolved := &ResolvedFeatures{
		Requested:        requested,
		StoreRefs:        append([]types.FeatureReference(nil), storeRefs.Items()...),
		OnDemandRefs:     append([]types.FeatureReference(nil), odfvRefs.Items()...),
		OnDemandViews:    append([]string(nil), odfvs.Items()...),
		RequestDataNames: make(map[string][]string, odfvs.Len()),
	}

	deps := ds.NewOrderedSet[types.FeatureReference](0)
	requestNames := ds.NewOrderedSet[string](0)
	for _, view := range resolved.OnDemandViews {
		for _, dep := range snap.Dependencies(view) {
			if !storeRefs.Has(dep) {
				deps.Add(dep)
			}
		}
		fields := snap.RequestData(view)
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
			requestNames.Add(f.Name)
		}
		resolved.RequestDataNames[view] = names
	}
	resolved.DependencyRefs = append([]types.FeatureReference(nil), deps.Items()...)
	resolved.AllRequestDataNames = append([]string(nil), requestNames.Items()...)
	return resolved, nil
}

// checkNameConflicts rejects a request where a store feature and an on demand output share a name.
func checkNameConflicts(storeRefs, odfvRefs *ds.OrderedSet[types.FeatureReference]) error {
	if storeRefs.IsEmpty() || odfvRefs.IsEmpty() {
		return nil
	}
	storeNames := make(map[string]types.FeatureReference, storeRefs.Len())
	for _, ref := range storeRefs.Items() {
		storeNames[ref.Feature] = ref
	}
	for _, ref := range odfvRefs.Items() {
		if clash, ok := storeNames[ref.Feature]; ok {
			return requestErrorf(ErrConflictingFeatureName, "%s is both stored as %s and computed by %s", ref.Feature, clash, ref)
		}
	}
	return nil
}

// OutputNames names the response columns. Without full names, distinct references sharing a
// feature name are rejected.
func (r *ResolvedFeatures) OutputNames(fullNames bool) ([]string, error) {
	names := make([]string, len(r.Requested))
	owners := make(map[string]types.FeatureReference, len(r.Requested))
	for i, ref := range r.Requested {
		if fullNames {
			names[i] = ref.FullName()
			continue
		}
		names[i] = ref.Feature
		if prev, ok := owners[ref.Feature]; ok && prev != ref {
			return nil, requestErrorf(ErrConflictingFeatureName, "%s is requested from both %s and %s, use full feature names", ref.Feature, prev.View, ref.View)
		}
		owners[ref.Feature] = ref
	}
	return names, nil
}
