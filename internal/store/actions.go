package store

import (
	"context"
	"fmt"
	"time"
)

// Reasons an object is queued for recomputation.
const (
	ActionCreated    = "created"
	ActionProperties = "properties"
	ActionRating     = "rating"
	ActionReference  = "reference"
	ActionValue      = "value"
)

// Action is a pending recomputation request.
type Action struct {
	ID        int64
	CreatedAt int64
	ObjectID  int64
	Type      string
}

// EnqueueAction queues (objectID, typ). A pending duplicate makes this a
// no-op. Subscribers of db.Actions are woken when a row is inserted.
func (db *DB) EnqueueAction(ctx context.Context, objectID int64, typ string) error {
	result, err := db.ExecContext(ctx, `
		INSERT INTO actions (created_at, object_id, type) VALUES (?, ?, ?)
		ON CONFLICT (object_id, type) DO NOTHING
	`, time.Now().UnixMilli(), objectID, typ)
	if err != nil {
		return fmt.Errorf("enqueue action %s for %d: %w", typ, objectID, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		db.Actions.Publish()
	}
	return nil
}

// PendingActions returns queued actions, oldest first.
func (db *DB) PendingActions(ctx context.Context) ([]Action, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, created_at, object_id, type FROM actions ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("pending actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	for rows.Next() {
		var a Action
		if err := rows.Scan(&a.ID, &a.CreatedAt, &a.ObjectID, &a.Type); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CountPendingActions returns the queue length.
func (db *DB) CountPendingActions(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count actions: %w", err)
	}
	return n, nil
}

// DeleteAction removes a queued action. Processing deletes the row first, so
// a change arriving mid-processing queues a fresh action.
func (db *DB) DeleteAction(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete action %d: %w", id, err)
	}
	return nil
}
