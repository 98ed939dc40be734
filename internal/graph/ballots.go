package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/store"
)

// ErrInvalidRating is returned for a rating outside -1..1.
var ErrInvalidRating = errors.New("rating must be -1, 0 or 1")

// RateStatement records voterID's rating of statementID and returns the
// previous and the current ballot. Re-casting the same rating changes
// nothing: no action is queued and the ballot keeps its timestamp.
//
// st, when given, is the caller's copy of the statement; its count, sum and
// rating are updated in place so the caller can answer before the engine
// recomputes the durable aggregate.
func (g *Graph) RateStatement(ctx context.Context, st *store.Statement, statementID, voterID int64, rating int) (*store.Ballot, *store.Ballot, error) {
	if rating < -1 || rating > 1 {
		return nil, nil, fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	if err := g.requireType(ctx, statementID, ""); err != nil {
		return nil, nil, fmt.Errorf("rate: %w", err)
	}

	old, err := g.DB.GetBallot(ctx, statementID, voterID)
	if err != nil {
		return nil, nil, err
	}
	if old != nil && old.Rating == rating {
		return old, old, nil
	}

	// Values get a statement row the first time somebody votes on them.
	if err := g.DB.EnsureStatement(ctx, statementID); err != nil {
		return nil, nil, err
	}
	ballot, err := g.DB.UpsertBallot(ctx, statementID, voterID, rating)
	if err != nil {
		return nil, nil, err
	}

	if st != nil {
		if old == nil {
			st.RatingCount++
			st.RatingSum += rating
		} else {
			st.RatingSum += rating - old.Rating
		}
		mirrorRating(st)
	}

	if err := g.DB.EnqueueAction(ctx, statementID, store.ActionRating); err != nil {
		return nil, nil, err
	}
	log.WithFields(logrus.Fields{"object": statementID, "voter": voterID, "rating": rating}).Debug("ballot cast")
	return old, ballot, nil
}

// UnrateStatement removes voterID's ballot on statementID and returns it, or
// nil when there was none.
func (g *Graph) UnrateStatement(ctx context.Context, st *store.Statement, statementID, voterID int64) (*store.Ballot, error) {
	old, err := g.DB.GetBallot(ctx, statementID, voterID)
	if err != nil || old == nil {
		return nil, err
	}
	if err := g.DB.DeleteBallot(ctx, statementID, voterID); err != nil {
		return nil, err
	}

	if st != nil {
		st.RatingCount--
		st.RatingSum -= old.Rating
		mirrorRating(st)
	}

	if err := g.DB.EnqueueAction(ctx, statementID, store.ActionRating); err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"object": statementID, "voter": voterID}).Debug("ballot removed")
	return old, nil
}

func mirrorRating(st *store.Statement) {
	if st.RatingCount <= 0 {
		st.RatingCount = 0
		st.Rating = 0
		return
	}
	st.Rating = float64(st.RatingSum) / float64(st.RatingCount)
}
