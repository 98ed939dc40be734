package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePropertyUnique(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	card, err := db.CreateCard(ctx)
	require.NoError(t, err)

	first, err := db.CreateProperty(ctx, card.ID, 100, 200)
	require.NoError(t, err)

	// A second insert of the same edge hits the unique index and falls back
	// to the existing row.
	second, err := db.CreateProperty(ctx, card.ID, 100, 200)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	found, err := db.FindProperty(ctx, card.ID, 100, 200)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.Equal(t, 0, found.RatingCount)
}

func TestBestPropertyValuesOrdering(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	card, err := db.CreateCard(ctx)
	require.NoError(t, err)

	low, err := db.CreateProperty(ctx, card.ID, 1, 10)
	require.NoError(t, err)
	tieOld, err := db.CreateProperty(ctx, card.ID, 1, 11)
	require.NoError(t, err)
	tieNew, err := db.CreateProperty(ctx, card.ID, 1, 12)
	require.NoError(t, err)
	trashed, err := db.CreateProperty(ctx, card.ID, 1, 13)
	require.NoError(t, err)
	negative, err := db.CreateProperty(ctx, card.ID, 1, 14)
	require.NoError(t, err)

	require.NoError(t, db.SetRating(ctx, low.ID, Statement{RatingCount: 1, RatingSum: 1}))
	require.NoError(t, db.SetRating(ctx, tieOld.ID, Statement{RatingCount: 2, RatingSum: 2}))
	require.NoError(t, db.SetRating(ctx, tieNew.ID, Statement{RatingCount: 2, RatingSum: 2}))
	require.NoError(t, db.SetRating(ctx, trashed.ID, Statement{RatingCount: 5, RatingSum: 5}))
	require.NoError(t, db.SetTrashed(ctx, trashed.ID, true))
	require.NoError(t, db.SetRating(ctx, negative.ID, Statement{RatingCount: 1, RatingSum: -1}))

	ids, err := db.BestPropertyValues(ctx, card.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{12, 11, 10}, ids, "newest wins ties; trashed and non-positive excluded")

	n, err := db.CountLiveProperties(ctx, card.ID, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBallotUpsert(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	card, err := db.CreateCard(ctx)
	require.NoError(t, err)

	b, err := db.GetBallot(ctx, card.ID, 42)
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = db.UpsertBallot(ctx, card.ID, 42, 1)
	require.NoError(t, err)
	_, err = db.UpsertBallot(ctx, card.ID, 43, -1)
	require.NoError(t, err)
	_, err = db.UpsertBallot(ctx, card.ID, 42, 0)
	require.NoError(t, err)

	count, sum, err := db.BallotTotals(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, -1, sum)

	require.NoError(t, db.DeleteBallot(ctx, card.ID, 43))
	count, sum, err = db.BallotTotals(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, sum)
}

func TestEnqueueActionDeduplicates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	signal, cancel := db.Actions.Subscribe()
	defer cancel()

	require.NoError(t, db.EnqueueAction(ctx, 1, ActionRating))
	require.NoError(t, db.EnqueueAction(ctx, 1, ActionRating))
	require.NoError(t, db.EnqueueAction(ctx, 1, ActionProperties))
	require.NoError(t, db.EnqueueAction(ctx, 2, ActionRating))

	actions, err := db.PendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, int64(1), actions[0].ObjectID)
	assert.Equal(t, ActionRating, actions[0].Type)

	select {
	case <-signal:
	default:
		t.Fatal("expected a wake-up signal after enqueue")
	}

	require.NoError(t, db.DeleteAction(ctx, actions[0].ID))
	n, err := db.CountPendingActions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestReplaceReferences(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 4; i++ {
		c, err := db.CreateCard(ctx)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	src := ids[0]

	added, removed, err := db.ReplaceReferences(ctx, src, []int64{ids[1], ids[2]})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, added)
	assert.Empty(t, removed)

	added, removed, err = db.ReplaceReferences(ctx, src, []int64{ids[2], ids[3]})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[3]}, added)
	assert.Equal(t, []int64{ids[1]}, removed)

	neighbours, err := db.NeighbourIDs(ctx, ids[3])
	require.NoError(t, err)
	assert.Equal(t, []int64{src}, neighbours)

	// Deleting an object drops its edges.
	require.NoError(t, db.DeleteObject(ctx, ids[2]))
	refs, err := db.ReferencedIDs(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[3]}, refs)
}

func TestReplaceReferencesIsAtomic(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		c, err := db.CreateCard(ctx)
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, _, err := db.ReplaceReferences(ctx, ids[0], []int64{ids[1], ids[2]})
	require.NoError(t, err)

	// Dropping ids[1] succeeds, adding a missing object does not.
	_, _, err = db.ReplaceReferences(ctx, ids[0], []int64{ids[2], 987654})
	require.Error(t, err)

	refs, err := db.ReferencedIDs(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, refs)
}

func TestIncompleteRows(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	bareValue, err := db.CreateObject(ctx, TypeValue)
	require.NoError(t, err)
	bareProperty, err := db.CreateObject(ctx, TypeProperty)
	require.NoError(t, err)
	complete, err := db.CreateValue(ctx, 999, nil, "x")
	require.NoError(t, err)

	future := bareProperty.CreatedAt + 1000

	ids, err := db.IncompleteValueIDs(ctx, 0, future)
	require.NoError(t, err)
	assert.Equal(t, []int64{bareValue.ID}, ids)

	ids, err = db.IncompletePropertyIDs(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, []int64{bareProperty.ID}, ids)

	orphans, err := db.OrphanedValues(ctx, 0, future)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, complete.ID, orphans[0].ID)

	// Nothing is old enough with a cutoff in the past.
	ids, err = db.IncompleteValueIDs(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
