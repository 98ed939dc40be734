package engine

import (
	"context"
	"slices"

	"github.com/lazypower/argraph/internal/schema"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// recomputeReferences converges the stored outgoing references of obj and
// returns the targets added and removed.
//
// An object references the keys and values of its cached properties and
// every id nested in those values. A Property also references its own key
// and value; a Value the ids in its payload. Self references are skipped.
// Nesting is followed one level through arrays only; a value that reaches
// itself through deeper indirection is not detected.
func (e *Engine) recomputeReferences(ctx context.Context, obj *store.Object, value *store.Value, prop *store.Property) ([]int64, []int64, error) {
	var ids []int64
	seen := map[int64]bool{obj.ID: true}
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	schemas := make(map[int64]schema.Schema)
	payloadRefs := func(v *store.Value) error {
		s, ok := schemas[v.SchemaID]
		if !ok {
			var err error
			if s, err = e.Graph.SchemaOf(ctx, v.SchemaID); err != nil {
				return err
			}
			schemas[v.SchemaID] = s
		}
		decoded, err := v.Decoded()
		if err != nil {
			return err
		}
		for _, id := range schema.ReferencedIDs(s, decoded) {
			add(id)
		}
		return nil
	}

	var valueIDs []int64
	for _, key := range obj.Properties.Keys() {
		add(key)
		for _, id := range obj.Properties[key] {
			add(id)
			valueIDs = append(valueIDs, id)
		}
	}
	values, err := e.DB.GetValues(ctx, valueIDs)
	if err != nil {
		return nil, nil, err
	}
	for _, id := range valueIDs {
		if v, ok := values[id]; ok {
			if err := payloadRefs(v); err != nil {
				return nil, nil, err
			}
		}
	}

	if prop != nil {
		add(prop.KeyID)
		add(prop.ValueID)
	}
	if value != nil && value.SchemaID != value.ID {
		if err := payloadRefs(value); err != nil {
			return nil, nil, err
		}
	}

	// Payloads may name objects that were collected since.
	existing, err := e.DB.ObjectTypes(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	targets := ids[:0]
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			targets = append(targets, id)
		}
	}

	return e.DB.ReplaceReferences(ctx, obj.ID, targets)
}

type classification struct {
	changed bool
	// explicitChanged is set when the sub-types or the explicit tags moved,
	// which changes the usages of every neighbour.
	explicitChanged bool
}

// recomputeClassification derives sub-types, tags and usages.
//
// Sub-types are the localized strings under "types". Tags are the
// localized strings and Cards under "tags", plus the usages. Usages are
// the explicit tags of the neighbouring use-case objects, so they spread
// exactly one hop.
func (e *Engine) recomputeClassification(ctx context.Context, obj *store.Object) (classification, error) {
	subTypes, err := e.validatedIDs(ctx, obj.Properties, symbols.KeyTypes, false)
	if err != nil {
		return classification{}, err
	}
	explicitTags, err := e.validatedIDs(ctx, obj.Properties, symbols.KeyTags, true)
	if err != nil {
		return classification{}, err
	}
	usages, err := e.usages(ctx, obj.ID)
	if err != nil {
		return classification{}, err
	}
	tags := union(explicitTags, usages)

	var c classification
	c.explicitChanged = !slices.Equal(subTypes, obj.SubTypeIDs) || !slices.Equal(explicitTags, obj.ExplicitTagIDs)
	c.changed = c.explicitChanged || !slices.Equal(tags, obj.TagIDs) || !slices.Equal(usages, obj.UsageIDs)
	if !c.changed {
		return c, nil
	}
	return c, e.DB.SetObjectClassification(ctx, obj.ID, subTypes, tags, explicitTags, usages)
}

// usages collects the explicit tags of every use-case linked to id in
// either direction.
func (e *Engine) usages(ctx context.Context, id int64) ([]int64, error) {
	neighbours, err := e.DB.NeighbourIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	objs, err := e.DB.GetObjects(ctx, neighbours)
	if err != nil {
		return nil, err
	}
	useCase := e.Symbols.MustResolve(symbols.TypeUseCase)

	var out []int64
	for _, n := range neighbours {
		neighbour, ok := objs[n]
		if !ok || !slices.Contains(neighbour.SubTypeIDs, useCase) {
			continue
		}
		tags, err := e.validatedIDs(ctx, neighbour.Properties, symbols.KeyTags, true)
		if err != nil {
			return nil, err
		}
		out = union(out, tags)
	}
	return out, nil
}

// validatedIDs returns the ids cached under the key symbol that are
// localized strings, or Cards when allowCards is set. An ids-array is
// resolved one level. The result is sorted.
func (e *Engine) validatedIDs(ctx context.Context, props store.PropertyMap, key string, allowCards bool) ([]int64, error) {
	candidates := props[e.Symbols.MustResolve(key)]
	if len(candidates) == 0 {
		return nil, nil
	}
	localized := e.Symbols.MustResolve(symbols.SchemaLocalizedString)

	values, err := e.DB.GetValues(ctx, candidates)
	if err != nil {
		return nil, err
	}
	var flat []int64
	for _, id := range candidates {
		members, isArray, err := e.Graph.ArrayMembers(values[id])
		if err != nil {
			return nil, err
		}
		if isArray {
			flat = append(flat, members...)
		} else {
			flat = append(flat, id)
		}
	}

	types, err := e.DB.ObjectTypes(ctx, flat)
	if err != nil {
		return nil, err
	}
	memberValues, err := e.DB.GetValues(ctx, flat)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, id := range flat {
		switch types[id] {
		case store.TypeCard:
			if allowCards {
				out = append(out, id)
			}
		case store.TypeValue:
			if v := memberValues[id]; v != nil && v.SchemaID == localized {
				out = append(out, id)
			}
		}
	}
	return union(nil, out), nil
}

// union merges id lists into a sorted list without duplicates.
func union(a, b []int64) []int64 {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make([]int64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	slices.Sort(out)
	return slices.Compact(out)
}
