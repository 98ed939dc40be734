package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lazypower/argraph/internal/store"
)

// ObjectView is the JSON rendering of an object with whatever it
// specializes into: a Value, a Statement, a Property.
type ObjectView struct {
	ID         int64             `json:"id"`
	CreatedAt  int64             `json:"createdAt"`
	Type       store.ObjectType  `json:"type"`
	Symbol     string            `json:"symbol,omitempty"`
	Properties store.PropertyMap `json:"properties,omitempty"`
	SubTypeIDs []int64           `json:"subTypeIds,omitempty"`
	TagIDs     []int64           `json:"tagIds,omitempty"`
	UsageIDs   []int64           `json:"usageIds,omitempty"`

	SchemaID *int64          `json:"schemaId,omitempty"`
	WidgetID *int64          `json:"widgetId,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`

	RatingCount   *int     `json:"ratingCount,omitempty"`
	RatingSum     *int     `json:"ratingSum,omitempty"`
	Rating        *float64 `json:"rating,omitempty"`
	Trending      *float64 `json:"trending,omitempty"`
	Trashed       bool     `json:"trashed,omitempty"`
	ArgumentCount *int     `json:"argumentCount,omitempty"`

	ObjectID *int64 `json:"objectId,omitempty"`
	KeyID    *int64 `json:"keyId,omitempty"`
	ValueID  *int64 `json:"valueId,omitempty"`
}

// View renders the object with this id, or returns nil if there is none.
func (g *Graph) View(ctx context.Context, id int64) (*ObjectView, error) {
	obj, err := g.DB.GetObject(ctx, id)
	if err != nil || obj == nil {
		return nil, err
	}
	view := &ObjectView{
		ID:         obj.ID,
		CreatedAt:  obj.CreatedAt,
		Type:       obj.Type,
		Properties: obj.Properties,
		SubTypeIDs: obj.SubTypeIDs,
		TagIDs:     obj.TagIDs,
		UsageIDs:   obj.UsageIDs,
	}
	if symbol, ok := g.Symbols.Symbol(id); ok {
		view.Symbol = symbol
	}

	switch obj.Type {
	case store.TypeValue:
		v, err := g.DB.GetValue(ctx, id)
		if err != nil {
			return nil, err
		}
		if v != nil {
			view.SchemaID = &v.SchemaID
			view.WidgetID = v.WidgetID
			view.Value = v.Value
		}
	case store.TypeProperty:
		p, err := g.DB.GetProperty(ctx, id)
		if err != nil {
			return nil, err
		}
		if p != nil {
			view.ObjectID, view.KeyID, view.ValueID = &p.ObjectID, &p.KeyID, &p.ValueID
		}
	}

	st, err := g.DB.GetStatement(ctx, id)
	if err != nil {
		return nil, err
	}
	if st != nil {
		view.RatingCount = &st.RatingCount
		view.RatingSum = &st.RatingSum
		view.Rating = &st.Rating
		view.Trending = &st.Trending
		view.Trashed = st.Trashed
		if obj.Type != store.TypeValue {
			view.ArgumentCount = &st.ArgumentCount
		}
	}
	return view, nil
}

// Describe returns a one-line human description of a Value, for logs.
func (g *Graph) Describe(v *store.Value) string {
	desc := fmt.Sprintf("%s %d (%s)", v.Type, v.ID, g.Symbols.Unresolve(v.SchemaID))
	if v.WidgetID != nil {
		desc += " widget " + g.Symbols.Unresolve(*v.WidgetID)
	}
	return desc + ": " + string(v.Value)
}
