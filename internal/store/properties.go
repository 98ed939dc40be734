package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Property is a rated (object, key, value) edge.
type Property struct {
	Object
	Statement
	ObjectID int64
	KeyID    int64
	ValueID  int64
}

const propertyColumns = `o.id, o.created_at, o.type, o.properties, o.sub_types, o.tags, o.explicit_tags, o.usages,
	s.rating_count, s.rating_sum, s.rating, s.trending, s.trashed, s.argument_count,
	p.object_id, p.key_id, p.value_id`

const propertyFrom = `FROM properties p
	JOIN statements s ON s.id = p.id
	JOIN objects o ON o.id = p.id`

// FindProperty returns the edge (objectID, keyID, valueID), or nil.
func (db *DB) FindProperty(ctx context.Context, objectID, keyID, valueID int64) (*Property, error) {
	row := db.QueryRowContext(ctx, `SELECT `+propertyColumns+` `+propertyFrom+`
		WHERE p.object_id = ? AND p.key_id = ? AND p.value_id = ?
	`, objectID, keyID, valueID)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find property: %w", err)
	}
	return p, nil
}

// GetProperty returns a Property by id, or nil.
func (db *DB) GetProperty(ctx context.Context, id int64) (*Property, error) {
	row := db.QueryRowContext(ctx, `SELECT `+propertyColumns+` `+propertyFrom+` WHERE p.id = ?`, id)
	p, err := scanProperty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get property %d: %w", id, err)
	}
	return p, nil
}

// CreateProperty inserts a new edge with a zeroed statement. If a concurrent
// writer created the same edge first, that edge is returned instead.
func (db *DB) CreateProperty(ctx context.Context, objectID, keyID, valueID int64) (*Property, error) {
	p, err := db.insertProperty(ctx, objectID, keyID, valueID)
	if err == nil {
		return p, nil
	}
	existing, findErr := db.FindProperty(ctx, objectID, keyID, valueID)
	if findErr == nil && existing != nil {
		return existing, nil
	}
	return nil, err
}

func (db *DB) insertProperty(ctx context.Context, objectID, keyID, valueID int64) (*Property, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create property: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO objects (created_at, type) VALUES (?, ?)`, now, string(TypeProperty))
	if err != nil {
		return nil, fmt.Errorf("create property object: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create property object: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO statements (id) VALUES (?)`, id); err != nil {
		return nil, fmt.Errorf("create property statement: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO properties (id, object_id, key_id, value_id) VALUES (?, ?, ?, ?)`,
		id, objectID, keyID, valueID); err != nil {
		return nil, fmt.Errorf("create property row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit property: %w", err)
	}

	return &Property{
		Object:   Object{ID: id, CreatedAt: now, Type: TypeProperty},
		ObjectID: objectID,
		KeyID:    keyID,
		ValueID:  valueID,
	}, nil
}

// PropertiesOf returns every edge owned by objectID whose key is one of
// keyIDs, oldest first.
func (db *DB) PropertiesOf(ctx context.Context, objectID int64, keyIDs []int64) ([]*Property, error) {
	if len(keyIDs) == 0 {
		return nil, nil
	}
	ph, args := inPlaceholders(keyIDs)
	rows, err := db.QueryContext(ctx, `SELECT `+propertyColumns+` `+propertyFrom+`
		WHERE p.object_id = ? AND p.key_id IN (`+ph+`)
		ORDER BY p.id
	`, append([]any{objectID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("properties of %d: %w", objectID, err)
	}
	return scanProperties(rows)
}

// BestPropertyValues returns the value ids of the live edges of
// (objectID, keyID): not trashed, positive rating sum, ordered by rating sum
// descending then newest first.
func (db *DB) BestPropertyValues(ctx context.Context, objectID, keyID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT p.value_id
		FROM properties p JOIN statements s ON s.id = p.id
		WHERE p.object_id = ? AND p.key_id = ? AND s.trashed = 0 AND s.rating_sum > 0
		ORDER BY s.rating_sum DESC, p.id DESC
	`, objectID, keyID)
	if err != nil {
		return nil, fmt.Errorf("best property values: %w", err)
	}
	defer rows.Close()

	var ids []int64
	seen := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan value id: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// CountLiveProperties counts non-trashed, positively rated edges of
// objectID whose key is one of keyIDs.
func (db *DB) CountLiveProperties(ctx context.Context, objectID int64, keyIDs []int64) (int, error) {
	if len(keyIDs) == 0 {
		return 0, nil
	}
	ph, args := inPlaceholders(keyIDs)
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM properties p JOIN statements s ON s.id = p.id
		WHERE p.object_id = ? AND p.key_id IN (`+ph+`) AND s.trashed = 0 AND s.rating_sum > 0
	`, append([]any{objectID}, args...)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count live properties: %w", err)
	}
	return n, nil
}

// HasLiveProperty reports whether the edge (objectID, keyID, valueID) exists,
// is not trashed and has a positive rating sum.
func (db *DB) HasLiveProperty(ctx context.Context, objectID, keyID, valueID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM properties p JOIN statements s ON s.id = p.id
		WHERE p.object_id = ? AND p.key_id = ? AND p.value_id = ? AND s.trashed = 0 AND s.rating_sum > 0
	`, objectID, keyID, valueID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has live property: %w", err)
	}
	return n > 0, nil
}

func scanProperties(rows *sql.Rows) ([]*Property, error) {
	defer rows.Close()
	var out []*Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProperty(s rowScanner) (*Property, error) {
	var p Property
	var typ string
	var props, subTypes, tags, explicitTags, usages sql.NullString
	var trashed int
	if err := s.Scan(&p.ID, &p.CreatedAt, &typ, &props, &subTypes, &tags, &explicitTags, &usages,
		&p.RatingCount, &p.RatingSum, &p.Rating, &p.Trending, &trashed, &p.ArgumentCount,
		&p.ObjectID, &p.KeyID, &p.ValueID); err != nil {
		return nil, err
	}
	p.Type = ObjectType(typ)
	p.Trashed = trashed != 0
	if err := p.decodeDerived(props, subTypes, tags, explicitTags, usages); err != nil {
		return nil, err
	}
	return &p, nil
}
