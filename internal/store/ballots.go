package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Ballot is one voter's rating of a statement.
type Ballot struct {
	StatementID int64
	VoterID     int64
	Rating      int // -1, 0 or 1
	UpdatedAt   int64
}

// GetBallot returns the ballot of voterID on statementID, or nil.
func (db *DB) GetBallot(ctx context.Context, statementID, voterID int64) (*Ballot, error) {
	b := Ballot{StatementID: statementID, VoterID: voterID}
	err := db.QueryRowContext(ctx, `
		SELECT rating, updated_at FROM ballots WHERE statement_id = ? AND voter_id = ?
	`, statementID, voterID).Scan(&b.Rating, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ballot: %w", err)
	}
	return &b, nil
}

// UpsertBallot writes the ballot and bumps its updated_at.
func (db *DB) UpsertBallot(ctx context.Context, statementID, voterID int64, rating int) (*Ballot, error) {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO ballots (statement_id, voter_id, rating, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (statement_id, voter_id) DO UPDATE SET rating = excluded.rating, updated_at = excluded.updated_at
	`, statementID, voterID, rating, now)
	if err != nil {
		return nil, fmt.Errorf("upsert ballot: %w", err)
	}
	return &Ballot{StatementID: statementID, VoterID: voterID, Rating: rating, UpdatedAt: now}, nil
}

// DeleteBallot removes a ballot. Deleting a missing ballot is not an error.
func (db *DB) DeleteBallot(ctx context.Context, statementID, voterID int64) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM ballots WHERE statement_id = ? AND voter_id = ?`, statementID, voterID); err != nil {
		return fmt.Errorf("delete ballot: %w", err)
	}
	return nil
}

// BallotTotals returns the number of ballots on a statement and the sum of
// their ratings.
func (db *DB) BallotTotals(ctx context.Context, statementID int64) (count, sum int, err error) {
	err = db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(rating), 0) FROM ballots WHERE statement_id = ?
	`, statementID).Scan(&count, &sum)
	if err != nil {
		return 0, 0, fmt.Errorf("ballot totals: %w", err)
	}
	return count, sum, nil
}
