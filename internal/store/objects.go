package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// ObjectType is the concrete kind of an object.
type ObjectType string

const (
	TypeCard     ObjectType = "Card"
	TypeProperty ObjectType = "Property"
	TypeUser     ObjectType = "User"
	TypeValue    ObjectType = "Value"
)

// Object is the universal graph node. Properties and the classification
// ids are derived by the engine and never written by callers.
type Object struct {
	ID         int64
	CreatedAt  int64 // unix ms
	Type       ObjectType
	Properties PropertyMap
	SubTypeIDs []int64
	TagIDs     []int64
	// ExplicitTagIDs are the tags set on the object itself; TagIDs adds
	// the usages to them.
	ExplicitTagIDs []int64
	UsageIDs       []int64
}

// PropertyMap is the materialized "best value per key" cache of an object:
// key id to the ordered value ids chosen for it. Internally every entry is
// a list; the JSON form writes single-element lists as a bare id.
type PropertyMap map[int64][]int64

// Keys returns the key ids in ascending order.
func (m PropertyMap) Keys() []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a deep copy.
func (m PropertyMap) Clone() PropertyMap {
	out := make(PropertyMap, len(m))
	for k, v := range m {
		out[k] = append([]int64(nil), v...)
	}
	return out
}

// MarshalJSON implements json.Marshaler.
func (m PropertyMap) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := strconv.FormatInt(k, 10)
		if len(v) == 1 {
			out[key] = v[0]
		} else {
			out[key] = v
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Both a bare id and a list of
// ids are accepted for every key.
func (m *PropertyMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(PropertyMap, len(raw))
	for k, v := range raw {
		key, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return fmt.Errorf("property key %q: %w", k, err)
		}
		var one int64
		if err := json.Unmarshal(v, &one); err == nil {
			out[key] = []int64{one}
			continue
		}
		var many []int64
		if err := json.Unmarshal(v, &many); err != nil {
			return fmt.Errorf("property %d: %w", key, err)
		}
		out[key] = many
	}
	*m = out
	return nil
}

// CreateObject inserts a bare object row of the given type.
func (db *DB) CreateObject(ctx context.Context, typ ObjectType) (*Object, error) {
	now := time.Now().UnixMilli()
	result, err := db.ExecContext(ctx,
		`INSERT INTO objects (created_at, type) VALUES (?, ?)`, now, string(typ))
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}
	return &Object{ID: id, CreatedAt: now, Type: typ}, nil
}

// CreateCard inserts a Card object together with its statement row.
func (db *DB) CreateCard(ctx context.Context) (*Object, error) {
	obj, err := db.CreateObject(ctx, TypeCard)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureStatement(ctx, obj.ID); err != nil {
		return nil, err
	}
	return obj, nil
}

const objectColumns = `id, created_at, type, properties, sub_types, tags, explicit_tags, usages`

// GetObject returns an object by id, or nil if not found.
func (db *DB) GetObject(ctx context.Context, id int64) (*Object, error) {
	row := db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id = ?`, id)
	obj, err := scanObject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get object %d: %w", id, err)
	}
	return obj, nil
}

// GetObjects returns the objects that exist among ids, keyed by id.
func (db *DB) GetObjects(ctx context.Context, ids []int64) (map[int64]*Object, error) {
	out := make(map[int64]*Object, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph, args := inPlaceholders(ids)
	rows, err := db.QueryContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get objects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		out[obj.ID] = obj
	}
	return out, rows.Err()
}

// ObjectTypes returns the type of every existing object among ids.
func (db *DB) ObjectTypes(ctx context.Context, ids []int64) (map[int64]ObjectType, error) {
	out := make(map[int64]ObjectType, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ph, args := inPlaceholders(ids)
	rows, err := db.QueryContext(ctx, `SELECT id, type FROM objects WHERE id IN (`+ph+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("object types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var typ string
		if err := rows.Scan(&id, &typ); err != nil {
			return nil, fmt.Errorf("scan object type: %w", err)
		}
		out[id] = ObjectType(typ)
	}
	return out, rows.Err()
}

// SetObjectProperties replaces the materialized properties cache.
func (db *DB) SetObjectProperties(ctx context.Context, id int64, props PropertyMap) error {
	var encoded any
	if len(props) > 0 {
		b, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("encode properties: %w", err)
		}
		encoded = string(b)
	}
	if _, err := db.ExecContext(ctx, `UPDATE objects SET properties = ? WHERE id = ?`, encoded, id); err != nil {
		return fmt.Errorf("set properties of %d: %w", id, err)
	}
	return nil
}

// SetObjectClassification stores the derived sub-types, tags, explicit tags
// and usages.
func (db *DB) SetObjectClassification(ctx context.Context, id int64, subTypes, tags, explicitTags, usages []int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE objects SET sub_types = ?, tags = ?, explicit_tags = ?, usages = ? WHERE id = ?`,
		encodeIDs(subTypes), encodeIDs(tags), encodeIDs(explicitTags), encodeIDs(usages), id)
	if err != nil {
		return fmt.Errorf("set classification of %d: %w", id, err)
	}
	return nil
}

// DeleteObject removes an object; dependent rows go with it.
func (db *DB) DeleteObject(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete object %d: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(s rowScanner) (*Object, error) {
	var o Object
	var typ string
	var props, subTypes, tags, explicitTags, usages sql.NullString
	if err := s.Scan(&o.ID, &o.CreatedAt, &typ, &props, &subTypes, &tags, &explicitTags, &usages); err != nil {
		return nil, err
	}
	o.Type = ObjectType(typ)
	if err := o.decodeDerived(props, subTypes, tags, explicitTags, usages); err != nil {
		return nil, err
	}
	return &o, nil
}

func (o *Object) decodeDerived(props, subTypes, tags, explicitTags, usages sql.NullString) error {
	if props.Valid && props.String != "" {
		if err := json.Unmarshal([]byte(props.String), &o.Properties); err != nil {
			return fmt.Errorf("decode properties of %d: %w", o.ID, err)
		}
	}
	var err error
	if o.SubTypeIDs, err = decodeIDs(subTypes); err != nil {
		return err
	}
	if o.TagIDs, err = decodeIDs(tags); err != nil {
		return err
	}
	if o.ExplicitTagIDs, err = decodeIDs(explicitTags); err != nil {
		return err
	}
	o.UsageIDs, err = decodeIDs(usages)
	return err
}

func encodeIDs(ids []int64) any {
	if len(ids) == 0 {
		return nil
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func decodeIDs(s sql.NullString) ([]int64, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s.String), &ids); err != nil {
		return nil, fmt.Errorf("decode ids: %w", err)
	}
	return ids, nil
}
