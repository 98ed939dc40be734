package store

import (
	"context"
	"fmt"
	"sort"
)

// ReferencedIDs returns the ids sourceID points to, ascending.
func (db *DB) ReferencedIDs(ctx context.Context, sourceID int64) ([]int64, error) {
	return db.queryIDs(ctx, `SELECT target_id FROM objects_references WHERE source_id = ? ORDER BY target_id`, sourceID)
}

// NeighbourIDs returns the ids linked to id in either direction, ascending.
func (db *DB) NeighbourIDs(ctx context.Context, id int64) ([]int64, error) {
	return db.queryIDs(ctx, `
		SELECT target_id FROM objects_references WHERE source_id = ?
		UNION
		SELECT source_id FROM objects_references WHERE target_id = ?
		ORDER BY 1
	`, id, id)
}

// ReplaceReferences converges the stored edges of sourceID to targets and
// returns the ids that were added and removed.
func (db *DB) ReplaceReferences(ctx context.Context, sourceID int64, targets []int64) (added, removed []int64, err error) {
	existing, err := db.ReferencedIDs(ctx, sourceID)
	if err != nil {
		return nil, nil, err
	}
	want := make(map[int64]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	have := make(map[int64]bool, len(existing))
	for _, t := range existing {
		have[t] = true
		if !want[t] {
			removed = append(removed, t)
		}
	}
	for t := range want {
		if !have[t] {
			added = append(added, t)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	if len(added) == 0 && len(removed) == 0 {
		return nil, nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("replace references of %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	for _, t := range removed {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM objects_references WHERE source_id = ? AND target_id = ?`, sourceID, t); err != nil {
			return nil, nil, fmt.Errorf("delete reference %d -> %d: %w", sourceID, t, err)
		}
	}
	for _, t := range added {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO objects_references (source_id, target_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`, sourceID, t); err != nil {
			return nil, nil, fmt.Errorf("insert reference %d -> %d: %w", sourceID, t, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit references of %d: %w", sourceID, err)
	}
	return added, removed, nil
}

func (db *DB) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
