package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/store"
)

// Vote is an initial ballot cast together with an edge.
type Vote struct {
	VoterID int64
	Rating  int
}

// GetOrNewProperty returns the (objectID, keyID, valueID) edge, creating it
// with an empty rating when missing. When valueID is an ids-array the call
// fans out to one edge per member; there is never an edge to the array
// itself. vote, when given, is cast on every returned edge.
func (g *Graph) GetOrNewProperty(ctx context.Context, objectID, keyID, valueID int64, vote *Vote) ([]*store.Property, error) {
	if err := g.requireType(ctx, objectID, ""); err != nil {
		return nil, fmt.Errorf("property owner: %w", err)
	}
	if err := g.requireType(ctx, keyID, store.TypeValue); err != nil {
		return nil, fmt.Errorf("property key: %w", err)
	}
	if err := g.requireType(ctx, valueID, ""); err != nil {
		return nil, fmt.Errorf("property value: %w", err)
	}

	value, err := g.DB.GetValue(ctx, valueID)
	if err != nil {
		return nil, err
	}
	members, isArray, err := g.ArrayMembers(value)
	if err != nil {
		return nil, err
	}
	if !isArray {
		members = []int64{valueID}
	}

	out := make([]*store.Property, 0, len(members))
	for _, member := range members {
		p, err := g.getOrNewEdge(ctx, objectID, keyID, member)
		if err != nil {
			return nil, err
		}
		if vote != nil {
			if _, _, err := g.RateStatement(ctx, &p.Statement, p.ID, vote.VoterID, vote.Rating); err != nil {
				return nil, err
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Graph) getOrNewEdge(ctx context.Context, objectID, keyID, valueID int64) (*store.Property, error) {
	p, err := g.DB.FindProperty(ctx, objectID, keyID, valueID)
	if err != nil || p != nil {
		return p, err
	}
	p, err = g.DB.CreateProperty(ctx, objectID, keyID, valueID)
	if err != nil {
		return nil, err
	}
	if err := g.DB.EnqueueAction(ctx, p.ID, store.ActionCreated); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"object": objectID,
		"key":    g.Symbols.Unresolve(keyID),
		"value":  valueID,
		"edge":   p.ID,
	}).Debug("property created")
	return p, nil
}

// RegeneratePropertiesItem recomputes the cached value of keyID on
// objectID: the live edge with the highest rating sum, newest first on
// ties, or every live value in that order for multi-valued keys. The key
// is dropped from the cache when no edge qualifies. It reports whether the
// cache changed; on change a properties action is queued for the object.
func (g *Graph) RegeneratePropertiesItem(ctx context.Context, objectID, keyID int64) (bool, error) {
	obj, err := g.DB.GetObject(ctx, objectID)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, fmt.Errorf("regenerate %d: %w", objectID, store.ErrMissingObject)
	}

	best, err := g.DB.BestPropertyValues(ctx, objectID, keyID)
	if err != nil {
		return false, err
	}
	if len(best) > 1 && !g.Symbols.IsMultiValued(keyID) {
		best = best[:1]
	}

	if slices.Equal(obj.Properties[keyID], best) {
		return false, nil
	}

	props := obj.Properties.Clone()
	if len(best) == 0 {
		delete(props, keyID)
	} else {
		props[keyID] = best
	}
	if err := g.DB.SetObjectProperties(ctx, objectID, props); err != nil {
		return false, err
	}
	if err := g.DB.EnqueueAction(ctx, objectID, store.ActionProperties); err != nil {
		return false, err
	}
	log.WithFields(logrus.Fields{
		"object": objectID,
		"key":    g.Symbols.Unresolve(keyID),
		"values": best,
	}).Debug("properties item changed")
	return true, nil
}
