package graph

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/schema"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// GetOrNewValue returns the canonical Value for (schemaID, value), creating
// it when none exists. Localized strings match by containment, so a value
// with more languages satisfies a request for fewer. The widget is not part
// of identity: the first one wins.
//
// Two callers racing on the same payload can both create a row. The
// duplicate is left for the garbage collector.
func (g *Graph) GetOrNewValue(ctx context.Context, schemaID int64, widgetID *int64, value any) (*store.Value, bool, error) {
	var existing *store.Value
	var err error
	if texts, ok := localizedTexts(value); ok && schemaID == g.Symbols.MustResolve(symbols.SchemaLocalizedString) {
		existing, err = g.DB.FindContainingValue(ctx, schemaID, texts)
		value = texts
	} else {
		existing, err = g.DB.FindValue(ctx, schemaID, value)
	}
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	v, err := g.DB.CreateValue(ctx, schemaID, widgetID, value)
	if err != nil {
		return nil, false, err
	}
	// The text index is rebuilt by the engine.
	if err := g.DB.EnqueueAction(ctx, v.ID, store.ActionValue); err != nil {
		return nil, false, err
	}
	log.WithFields(logrus.Fields{"object": v.ID, "schema": g.Symbols.Unresolve(schemaID)}).Debug("value created")
	return v, true, nil
}

// GetOrNewIDsArray interns the ids-array Value listing ids in order.
func (g *Graph) GetOrNewIDsArray(ctx context.Context, ids []int64, widgetID *int64) (*store.Value, error) {
	payload := make([]string, len(ids))
	for i, id := range ids {
		payload[i] = schema.FormatID(id)
	}
	v, _, err := g.GetOrNewValue(ctx, g.Symbols.MustResolve(symbols.SchemaIDsArray), widgetID, payload)
	return v, err
}

// ArrayMembers returns the element ids of an ids-array Value, or false when
// v is not one.
func (g *Graph) ArrayMembers(v *store.Value) ([]int64, bool, error) {
	if v == nil || v.SchemaID != g.Symbols.MustResolve(symbols.SchemaIDsArray) {
		return nil, false, nil
	}
	decoded, err := v.Decoded()
	if err != nil {
		return nil, true, fmt.Errorf("decode ids-array %d: %w", v.ID, err)
	}
	items, _ := decoded.([]any)
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if id, ok := schema.ParseID(item); ok {
			ids = append(ids, id)
		}
	}
	return ids, true, nil
}

// SchemaOf returns the parsed schema of a schema Value.
func (g *Graph) SchemaOf(ctx context.Context, schemaID int64) (schema.Schema, error) {
	sv, err := g.DB.GetValue(ctx, schemaID)
	if err != nil {
		return schema.Schema{}, err
	}
	if sv == nil {
		return schema.Schema{}, fmt.Errorf("schema %d: %w", schemaID, store.ErrMissingObject)
	}
	return schema.Parse(sv.Value)
}

// localizedTexts reads a language -> text map. Both map[string]string and
// decoded JSON objects with string members are accepted.
func localizedTexts(v any) (map[string]string, bool) {
	switch m := v.(type) {
	case map[string]string:
		return m, true
	case map[string]any:
		out := make(map[string]string, len(m))
		for lang, text := range m {
			s, ok := text.(string)
			if !ok {
				return nil, false
			}
			out[lang] = s
		}
		return out, true
	}
	return nil, false
}
