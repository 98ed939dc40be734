package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/lazypower/argraph/internal/schema"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// WarningKind classifies a conversion warning.
type WarningKind string

// UnknownReference marks an id or symbol that resolves to nothing. The
// text is kept as a plain string value so it can be repaired later.
const UnknownReference WarningKind = "UnknownReference"

// Warning is a non-fatal problem found at Path (a JSON pointer) while
// converting a document.
type Warning struct {
	Path    string      `json:"path"`
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

// Warnings accumulates conversion warnings.
type Warnings []Warning

func (w *Warnings) add(path string, kind WarningKind, format string, args ...any) {
	*w = append(*w, Warning{Path: path, Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// ConvertJSONToTypedValue lowers an external JSON document into interned
// objects following the schema schemaID. Id references resolve to the
// object they name, localized strings and scalars to interned Values and
// arrays to an ids-array Value of their converted members. A JSON null
// converts to nil.
func (g *Graph) ConvertJSONToTypedValue(ctx context.Context, schemaID int64, widgetID *int64, value any) (*store.Object, Warnings, error) {
	if raw, ok := value.(json.RawMessage); ok {
		decoded, err := schema.Decode(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("convert: %w", err)
		}
		value = decoded
	}
	s, err := g.SchemaOf(ctx, schemaID)
	if err != nil {
		return nil, nil, fmt.Errorf("convert: %w", err)
	}

	var warnings Warnings
	c := converter{g: g, warnings: &warnings}
	obj, err := c.convert(ctx, s, schemaID, widgetID, value, "")
	if err != nil {
		return nil, warnings, err
	}
	return obj, warnings, nil
}

type converter struct {
	g        *Graph
	warnings *Warnings
}

// convert handles one node. schemaID is the id of s when known, 0 for the
// members of an array.
func (c converter) convert(ctx context.Context, s schema.Schema, schemaID int64, widgetID *int64, value any, path string) (*store.Object, error) {
	if value == nil {
		return nil, nil
	}

	switch s.Kind {
	case schema.KindIDRef, schema.KindCardIDRef, schema.KindValueIDRef, schema.KindPropertyIDRef:
		return c.reference(ctx, s.Kind, value, path)

	case schema.KindLocalizedString:
		texts, ok := localizedTexts(value)
		if !ok {
			str, isString := value.(string)
			if !isString {
				return nil, fmt.Errorf("%s: localized string must be a string or a language map", pointer(path))
			}
			texts = map[string]string{c.g.DefaultLanguage(): str}
		}
		v, _, err := c.g.GetOrNewValue(ctx, c.g.Symbols.MustResolve(symbols.SchemaLocalizedString), widgetID, texts)
		if err != nil {
			return nil, err
		}
		return &v.Object, nil

	case schema.KindArray:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected an array", pointer(path))
		}
		ids := make([]int64, 0, len(items))
		for i, item := range items {
			member, err := c.convert(ctx, s.ItemAt(i), 0, nil, item, path+"/"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			if member != nil {
				ids = append(ids, member.ID)
			}
		}
		v, err := c.g.GetOrNewIDsArray(ctx, ids, widgetID)
		if err != nil {
			return nil, err
		}
		return &v.Object, nil
	}

	if schemaID == 0 {
		schemaID = c.scalarSchemaID(s, value)
	}
	v, _, err := c.g.GetOrNewValue(ctx, schemaID, widgetID, value)
	if err != nil {
		return nil, err
	}
	return &v.Object, nil
}

// reference resolves a symbol or decimal id to the object it names.
func (c converter) reference(ctx context.Context, kind schema.Kind, value any, path string) (*store.Object, error) {
	var text string
	id, ok := schema.ParseID(value)
	switch {
	case ok:
		text = schema.FormatID(id)
	default:
		switch v := value.(type) {
		case string:
			text = v
			if resolved, err := c.g.Symbols.Resolve(v); err == nil {
				id = resolved
			}
		case map[string]any, []any, bool:
			return nil, fmt.Errorf("%s: %s reference must be a string or an id", pointer(path), kind)
		default:
			text = fmt.Sprint(v)
		}
	}

	var obj *store.Object
	if id != 0 {
		var err error
		if obj, err = c.g.DB.GetObject(ctx, id); err != nil {
			return nil, err
		}
	}
	if obj == nil {
		c.warnings.add(path, UnknownReference, "unknown %s reference %q", kind, text)
		return c.preserve(ctx, text)
	}

	if want, typed := refTypes[kind]; typed && obj.Type != want {
		return nil, fmt.Errorf("%s: %w: %d is a %s, want %s", pointer(path), ErrWrongObjectType, obj.ID, obj.Type, want)
	}
	return obj, nil
}

var refTypes = map[schema.Kind]store.ObjectType{
	schema.KindCardIDRef:     store.TypeCard,
	schema.KindValueIDRef:    store.TypeValue,
	schema.KindPropertyIDRef: store.TypeProperty,
}

// preserve keeps an unresolved reference as a plain string value.
func (c converter) preserve(ctx context.Context, text string) (*store.Object, error) {
	v, _, err := c.g.GetOrNewValue(ctx, c.g.Symbols.MustResolve(symbols.SchemaString), nil, text)
	if err != nil {
		return nil, err
	}
	return &v.Object, nil
}

// scalarSchemaID picks the built-in schema for an array member, from the
// declared type or else from the JSON value itself.
func (c converter) scalarSchemaID(s schema.Schema, value any) int64 {
	typ := s.Type
	if typ == "" {
		switch value.(type) {
		case string:
			typ = "string"
		case bool:
			typ = "boolean"
		case json.Number, float64, int, int64:
			typ = "number"
		default:
			typ = "object"
		}
	}
	symbol := symbols.SchemaObject
	switch typ {
	case "string":
		symbol = symbols.SchemaString
	case "boolean":
		symbol = symbols.SchemaBoolean
	case "number", "integer":
		symbol = symbols.SchemaNumber
	case "null":
		symbol = symbols.SchemaNull
	}
	return c.g.Symbols.MustResolve(symbol)
}

func pointer(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
