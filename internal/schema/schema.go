// Package schema models the small subset of JSON Schema that values carry,
// as a closed set of kinds rather than free-form documents.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Kind identifies how a value payload must be interpreted.
type Kind int

const (
	KindScalar Kind = iota
	KindIDRef
	KindCardIDRef
	KindValueIDRef
	KindPropertyIDRef
	KindLocalizedString
	KindArray
)

var kindNames = map[Kind]string{
	KindScalar:          "scalar",
	KindIDRef:           "id",
	KindCardIDRef:       "card-id",
	KindValueIDRef:      "value-id",
	KindPropertyIDRef:   "property-id",
	KindLocalizedString: "localized-string",
	KindArray:           "array",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// refKinds maps the $ref targets understood by the store to their kind.
var refKinds = map[string]Kind{
	"/schemas/id":               KindIDRef,
	"/schemas/card-id":          KindCardIDRef,
	"/schemas/value-id":         KindValueIDRef,
	"/schemas/property-id":      KindPropertyIDRef,
	"/schemas/localized-string": KindLocalizedString,
}

// Schema is a parsed schema payload.
//
// Arrays are either homogeneous (Items set) or positional (Positional set,
// one schema per index). Everything the store does not need to look into
// is a scalar; Type keeps the declared JSON type for those.
type Schema struct {
	Kind       Kind
	Type       string
	Items      *Schema
	Positional []Schema
}

// IsRef reports whether values of this schema hold an object id.
func (s Schema) IsRef() bool {
	switch s.Kind {
	case KindIDRef, KindCardIDRef, KindValueIDRef, KindPropertyIDRef:
		return true
	}
	return false
}

type rawSchema struct {
	Ref   string          `json:"$ref"`
	Type  string          `json:"type"`
	Items json.RawMessage `json:"items"`
}

// Parse decodes a schema payload.
func Parse(raw []byte) (Schema, error) {
	var r rawSchema
	if err := json.Unmarshal(raw, &r); err != nil {
		return Schema{}, fmt.Errorf("parse schema: %w", err)
	}

	if r.Ref != "" {
		kind, ok := refKinds[r.Ref]
		if !ok {
			return Schema{}, fmt.Errorf("parse schema: unsupported $ref %q", r.Ref)
		}
		return Schema{Kind: kind}, nil
	}

	if r.Type != "array" {
		return Schema{Kind: KindScalar, Type: r.Type}, nil
	}

	items := bytes.TrimSpace(r.Items)
	switch {
	case len(items) == 0:
		// Untyped array: members are opaque.
		return Schema{Kind: KindArray, Items: &Schema{Kind: KindScalar}}, nil
	case items[0] == '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(items, &parts); err != nil {
			return Schema{}, fmt.Errorf("parse schema items: %w", err)
		}
		positional := make([]Schema, 0, len(parts))
		for i, p := range parts {
			sub, err := Parse(p)
			if err != nil {
				return Schema{}, fmt.Errorf("items[%d]: %w", i, err)
			}
			positional = append(positional, sub)
		}
		return Schema{Kind: KindArray, Positional: positional}, nil
	default:
		sub, err := Parse(items)
		if err != nil {
			return Schema{}, fmt.Errorf("items: %w", err)
		}
		return Schema{Kind: KindArray, Items: &sub}, nil
	}
}

// ItemAt returns the schema for the i-th member of an array schema.
// Positional arrays fall back to the last declared schema past their end.
func (s Schema) ItemAt(i int) Schema {
	if s.Items != nil {
		return *s.Items
	}
	if len(s.Positional) == 0 {
		return Schema{Kind: KindScalar}
	}
	if i < len(s.Positional) {
		return s.Positional[i]
	}
	return s.Positional[len(s.Positional)-1]
}

// Match walks value following s and calls visit for every non-array node,
// with the schema that applies to it. Arrays are descended member by member.
func Match(s Schema, value any, visit func(Schema, any)) {
	if s.Kind != KindArray {
		visit(s, value)
		return
	}
	items, ok := value.([]any)
	if !ok {
		visit(Schema{Kind: KindScalar}, value)
		return
	}
	for i, item := range items {
		Match(s.ItemAt(i), item, visit)
	}
}

// ReferencedIDs returns every object id held by value under schema s, in
// order of appearance, without duplicates.
func ReferencedIDs(s Schema, value any) []int64 {
	var ids []int64
	seen := make(map[int64]bool)
	Match(s, value, func(sub Schema, v any) {
		if !sub.IsRef() {
			return
		}
		id, ok := ParseID(v)
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})
	return ids
}

// ParseID reads an object id from a payload node. Ids are written as decimal
// strings but numbers are accepted too.
func ParseID(v any) (int64, bool) {
	switch x := v.(type) {
	case string:
		id, err := strconv.ParseInt(x, 10, 64)
		return id, err == nil && id > 0
	case json.Number:
		id, err := x.Int64()
		return id, err == nil && id > 0
	case float64:
		id := int64(x)
		return id, float64(id) == x && id > 0
	case int64:
		return x, x > 0
	case int:
		return int64(x), x > 0
	}
	return 0, false
}

// FormatID renders an id the way payloads store it.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Decode unmarshals a stored payload keeping numbers exact.
func Decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Canonical re-encodes a JSON document with sorted object keys and no
// insignificant whitespace, so equal documents compare equal as strings.
func Canonical(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		decoded, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("canonical: %w", err)
		}
		v = decoded
	}
	if b, ok := v.([]byte); ok {
		decoded, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("canonical: %w", err)
		}
		v = decoded
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("canonical: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
