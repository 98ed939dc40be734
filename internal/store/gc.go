package store

import (
	"context"
	"fmt"
)

// unreachable is the reachability test shared by the value passes: the
// object is not a statement, not bound to a symbol, not the owner, key or
// value of a property, not an element of an ids-array value and not the schema or
// widget of another value. The first argument is the ids-array schema id.
const unreachable = `
	NOT EXISTS (SELECT 1 FROM statements s WHERE s.id = o.id)
	AND NOT EXISTS (SELECT 1 FROM symbols y WHERE y.id = o.id)
	AND NOT EXISTS (SELECT 1 FROM properties po WHERE po.object_id = o.id)
	AND NOT EXISTS (SELECT 1 FROM properties pk WHERE pk.key_id = o.id)
	AND NOT EXISTS (SELECT 1 FROM properties pv WHERE pv.value_id = o.id)
	AND NOT EXISTS (
		SELECT 1 FROM typed_values a, json_each(a.value) e
		WHERE a.schema_id = ? AND a.id != o.id AND CAST(e.value AS INTEGER) = o.id
	)
	AND NOT EXISTS (
		SELECT 1 FROM typed_values w
		WHERE w.id != o.id AND (w.schema_id = o.id OR w.widget_id = o.id)
	)`

// IncompleteValueIDs returns Value objects created before the cutoff (unix
// ms) that have no typed_values row and are unreachable.
func (db *DB) IncompleteValueIDs(ctx context.Context, idsArraySchemaID, createdBefore int64) ([]int64, error) {
	ids, err := db.queryIDs(ctx, `
		SELECT o.id FROM objects o
		WHERE o.type = 'Value' AND o.created_at < ?
			AND NOT EXISTS (SELECT 1 FROM typed_values v WHERE v.id = o.id)
			AND `+unreachable+`
		ORDER BY o.id
	`, createdBefore, idsArraySchemaID)
	if err != nil {
		return nil, fmt.Errorf("incomplete values: %w", err)
	}
	return ids, nil
}

// OrphanedValues returns complete Values created before the cutoff that are
// unreachable.
func (db *DB) OrphanedValues(ctx context.Context, idsArraySchemaID, createdBefore int64) ([]*Value, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+valueColumns+`
		FROM objects o JOIN typed_values v ON v.id = o.id
		WHERE o.type = 'Value' AND o.created_at < ?
			AND `+unreachable+`
		ORDER BY o.id
	`, createdBefore, idsArraySchemaID)
	if err != nil {
		return nil, fmt.Errorf("orphaned values: %w", err)
	}
	return scanValues(rows)
}

// IncompletePropertyIDs returns Property objects created before the cutoff
// that have no properties row.
func (db *DB) IncompletePropertyIDs(ctx context.Context, createdBefore int64) ([]int64, error) {
	ids, err := db.queryIDs(ctx, `
		SELECT o.id FROM objects o
		WHERE o.type = 'Property' AND o.created_at < ?
			AND NOT EXISTS (SELECT 1 FROM properties p WHERE p.id = o.id)
		ORDER BY o.id
	`, createdBefore)
	if err != nil {
		return nil, fmt.Errorf("incomplete properties: %w", err)
	}
	return ids, nil
}
