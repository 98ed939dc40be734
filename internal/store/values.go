package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/lazypower/argraph/internal/schema"
)

// Value is an immutable typed payload. Value holds canonical JSON.
type Value struct {
	Object
	SchemaID int64
	WidgetID *int64
	Value    json.RawMessage
}

// Decoded returns the payload as generic JSON, numbers kept exact.
func (v *Value) Decoded() (any, error) {
	return schema.Decode(v.Value)
}

// CreateValue inserts a new Value object. The payload is canonicalized; no
// lookup is made, so callers wanting interning must search first.
func (db *DB) CreateValue(ctx context.Context, schemaID int64, widgetID *int64, payload any) (*Value, error) {
	canonical, err := schema.Canonical(payload)
	if err != nil {
		return nil, err
	}
	return db.insertValue(ctx, func(id int64) int64 { return schemaID }, widgetID, canonical)
}

// CreateSelfTypedValue inserts a Value whose schema is itself. Only the
// root schema of the symbol table is built this way.
func (db *DB) CreateSelfTypedValue(ctx context.Context, payload any) (*Value, error) {
	canonical, err := schema.Canonical(payload)
	if err != nil {
		return nil, err
	}
	return db.insertValue(ctx, func(id int64) int64 { return id }, nil, canonical)
}

func (db *DB) insertValue(ctx context.Context, schemaOf func(int64) int64, widgetID *int64, canonical []byte) (*Value, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create value: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO objects (created_at, type) VALUES (?, ?)`, now, string(TypeValue))
	if err != nil {
		return nil, fmt.Errorf("create value object: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create value object: %w", err)
	}
	schemaID := schemaOf(id)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO typed_values (id, schema_id, widget_id, value) VALUES (?, ?, ?, ?)`,
		id, schemaID, nullableID(widgetID), string(canonical)); err != nil {
		return nil, fmt.Errorf("create value row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit value: %w", err)
	}

	return &Value{
		Object:   Object{ID: id, CreatedAt: now, Type: TypeValue},
		SchemaID: schemaID,
		WidgetID: widgetID,
		Value:    json.RawMessage(canonical),
	}, nil
}

const valueColumns = `o.id, o.created_at, o.type, o.properties, o.sub_types, o.tags, o.explicit_tags, o.usages,
	v.schema_id, v.widget_id, v.value`

// GetValue returns a Value by id, or nil if no complete value has this id.
func (db *DB) GetValue(ctx context.Context, id int64) (*Value, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+valueColumns+`
		FROM objects o JOIN typed_values v ON v.id = o.id
		WHERE o.id = ?
	`, id)
	v, err := scanValue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get value %d: %w", id, err)
	}
	return v, nil
}

// GetValues returns the complete values among ids, keyed by id.
func (db *DB) GetValues(ctx context.Context, ids []int64) (map[int64]*Value, error) {
	out := make(map[int64]*Value, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph, args := inPlaceholders(ids)
	rows, err := db.QueryContext(ctx, `
		SELECT `+valueColumns+`
		FROM objects o JOIN typed_values v ON v.id = o.id
		WHERE o.id IN (`+ph+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("get values: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

// FindValue returns the oldest Value with exactly this schema and payload,
// or nil. Payload equality is canonical JSON equality.
func (db *DB) FindValue(ctx context.Context, schemaID int64, payload any) (*Value, error) {
	canonical, err := schema.Canonical(payload)
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx, `
		SELECT `+valueColumns+`
		FROM objects o JOIN typed_values v ON v.id = o.id
		WHERE v.schema_id = ? AND v.value = ?
		ORDER BY o.id LIMIT 1
	`, schemaID, string(canonical))
	v, err := scanValue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find value: %w", err)
	}
	return v, nil
}

// FindContainingValue returns the oldest Value of schemaID whose payload is
// a JSON object containing every entry of texts (it may have more), or nil.
// This is how a localized string finds a superset with extra languages.
func (db *DB) FindContainingValue(ctx context.Context, schemaID int64, texts map[string]string) (*Value, error) {
	if len(texts) == 0 {
		return db.FindValue(ctx, schemaID, map[string]string{})
	}

	langs := make([]string, 0, len(texts))
	for lang := range texts {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	first := langs[0]

	rows, err := db.QueryContext(ctx, `
		SELECT `+valueColumns+`
		FROM objects o JOIN typed_values v ON v.id = o.id
		WHERE v.schema_id = ? AND json_valid(v.value)
			AND json_type(v.value) = 'object'
			AND json_extract(v.value, ?) = ?
		ORDER BY o.id
	`, schemaID, jsonPathKey(first), texts[first])
	if err != nil {
		return nil, fmt.Errorf("find containing value: %w", err)
	}
	candidates, err := scanValues(rows)
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		var existing map[string]any
		if err := json.Unmarshal(c.Value, &existing); err != nil {
			continue
		}
		if containsTexts(existing, texts) {
			return c, nil
		}
	}
	return nil, nil
}

func containsTexts(existing map[string]any, texts map[string]string) bool {
	for lang, text := range texts {
		s, ok := existing[lang].(string)
		if !ok || s != text {
			return false
		}
	}
	return true
}

// jsonPathKey quotes an object key for json_extract.
func jsonPathKey(key string) string {
	b, _ := json.Marshal(key)
	return "$." + string(b)
}

func scanValues(rows *sql.Rows) ([]*Value, error) {
	defer rows.Close()
	var out []*Value
	for rows.Next() {
		v, err := scanValue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan value: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanValue(s rowScanner) (*Value, error) {
	var v Value
	var typ string
	var props, subTypes, tags, explicitTags, usages sql.NullString
	var widget sql.NullInt64
	var payload string
	if err := s.Scan(&v.ID, &v.CreatedAt, &typ, &props, &subTypes, &tags, &explicitTags, &usages,
		&v.SchemaID, &widget, &payload); err != nil {
		return nil, err
	}
	v.Type = ObjectType(typ)
	if err := v.decodeDerived(props, subTypes, tags, explicitTags, usages); err != nil {
		return nil, err
	}
	if widget.Valid {
		w := widget.Int64
		v.WidgetID = &w
	}
	v.Value = json.RawMessage(payload)
	return &v, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
