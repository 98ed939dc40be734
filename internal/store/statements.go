package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Statement is the rating state of a rated object: a Card, a Property, or a
// Value somebody voted on.
type Statement struct {
	RatingCount   int
	RatingSum     int
	Rating        float64
	Trending      float64
	Trashed       bool
	ArgumentCount int
}

// EnsureStatement creates the statement row of an object if it has none.
func (db *DB) EnsureStatement(ctx context.Context, id int64) error {
	if _, err := db.ExecContext(ctx,
		`INSERT INTO statements (id) VALUES (?) ON CONFLICT (id) DO NOTHING`, id); err != nil {
		return fmt.Errorf("ensure statement %d: %w", id, err)
	}
	return nil
}

// GetStatement returns the statement row of an object, or nil if it was
// never rated.
func (db *DB) GetStatement(ctx context.Context, id int64) (*Statement, error) {
	var s Statement
	var trashed int
	err := db.QueryRowContext(ctx, `
		SELECT rating_count, rating_sum, rating, trending, trashed, argument_count
		FROM statements WHERE id = ?
	`, id).Scan(&s.RatingCount, &s.RatingSum, &s.Rating, &s.Trending, &trashed, &s.ArgumentCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get statement %d: %w", id, err)
	}
	s.Trashed = trashed != 0
	return &s, nil
}

// SetRating stores recomputed rating aggregates.
func (db *DB) SetRating(ctx context.Context, id int64, s Statement) error {
	_, err := db.ExecContext(ctx, `
		UPDATE statements SET rating_count = ?, rating_sum = ?, rating = ?, trending = ?
		WHERE id = ?
	`, s.RatingCount, s.RatingSum, s.Rating, s.Trending, id)
	if err != nil {
		return fmt.Errorf("set rating of %d: %w", id, err)
	}
	return nil
}

// SetTrashed stores the trashed flag.
func (db *DB) SetTrashed(ctx context.Context, id int64, trashed bool) error {
	if _, err := db.ExecContext(ctx, `UPDATE statements SET trashed = ? WHERE id = ?`, boolInt(trashed), id); err != nil {
		return fmt.Errorf("set trashed of %d: %w", id, err)
	}
	return nil
}

// SetArgumentCount stores the number of live arguments of a statement.
func (db *DB) SetArgumentCount(ctx context.Context, id int64, n int) error {
	if _, err := db.ExecContext(ctx, `UPDATE statements SET argument_count = ? WHERE id = ?`, n, id); err != nil {
		return fmt.Errorf("set argument count of %d: %w", id, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
