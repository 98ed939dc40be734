package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := symbols.Bootstrap(context.Background(), db, symbols.Definitions)
	require.NoError(t, err)
	clearActions(t, db)
	return New(db, reg, []string{"en", "fr"})
}

func clearActions(t *testing.T, db *store.DB) {
	t.Helper()
	_, err := db.Exec(`DELETE FROM actions`)
	require.NoError(t, err)
}

func pendingCount(t *testing.T, db *store.DB) int {
	t.Helper()
	n, err := db.CountPendingActions(context.Background())
	require.NoError(t, err)
	return n
}

func TestGetOrNewValueIdempotent(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	str := g.Symbols.MustResolve(symbols.SchemaString)
	textarea := g.Symbols.MustResolve(symbols.WidgetTextarea)

	first, created, err := g.GetOrNewValue(ctx, str, nil, "Paris")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := g.GetOrNewValue(ctx, str, &textarea, "Paris")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID, "widget is not part of identity")
	assert.Nil(t, second.WidgetID, "first widget wins")

	assert.Equal(t, 1, pendingCount(t, g.DB), "one index action for the new value")
}

func TestGetOrNewValueLocalizedContainment(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	loc := g.Symbols.MustResolve(symbols.SchemaLocalizedString)

	both, _, err := g.GetOrNewValue(ctx, loc, nil, map[string]any{"en": "Bread", "fr": "Pain"})
	require.NoError(t, err)

	subset, created, err := g.GetOrNewValue(ctx, loc, nil, map[string]string{"fr": "Pain"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, both.ID, subset.ID)

	other, created, err := g.GetOrNewValue(ctx, loc, nil, map[string]string{"fr": "Pains"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, both.ID, other.ID)
}

func TestConvertLocalizedString(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	loc := g.Symbols.MustResolve(symbols.SchemaLocalizedString)

	obj, warnings, err := g.ConvertJSONToTypedValue(ctx, loc, nil, "Hello")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.NotNil(t, obj)

	v, err := g.DB.GetValue(ctx, obj.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"en":"Hello"}`, string(v.Value))
}

func TestConvertNull(t *testing.T) {
	g := testGraph(t)

	obj, warnings, err := g.ConvertJSONToTypedValue(context.Background(),
		g.Symbols.MustResolve(symbols.SchemaString), nil, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Nil(t, obj)
	assert.Empty(t, warnings)
}

func TestConvertArrayWithUnknownReference(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	card, err := g.NewCard(ctx)
	require.NoError(t, err)

	obj, warnings, err := g.ConvertJSONToTypedValue(ctx, g.Symbols.MustResolve(symbols.SchemaIDsArray), nil,
		[]any{json.Number("0"), "name", "no-such-thing", float64(card.ID)})
	require.NoError(t, err)
	require.NotNil(t, obj)

	require.Len(t, warnings, 2)
	assert.Equal(t, "/0", warnings[0].Path)
	assert.Equal(t, UnknownReference, warnings[0].Kind)
	assert.Equal(t, "/2", warnings[1].Path)

	v, err := g.DB.GetValue(ctx, obj.ID)
	require.NoError(t, err)
	members, isArray, err := g.ArrayMembers(v)
	require.NoError(t, err)
	require.True(t, isArray)
	require.Len(t, members, 4)
	assert.Equal(t, g.Symbols.MustResolve(symbols.KeyName), members[1])
	assert.Equal(t, card.ID, members[3])

	preserved, err := g.DB.GetValue(ctx, members[2])
	require.NoError(t, err)
	assert.Equal(t, g.Symbols.MustResolve(symbols.SchemaString), preserved.SchemaID)
	assert.Equal(t, `"no-such-thing"`, string(preserved.Value))
}

func TestConvertCardReferenceChecksType(t *testing.T) {
	g := testGraph(t)

	_, _, err := g.ConvertJSONToTypedValue(context.Background(),
		g.Symbols.MustResolve(symbols.SchemaCardID), nil, "name")
	assert.ErrorIs(t, err, ErrWrongObjectType)
}

func TestGetOrNewPropertyUnique(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	card, err := g.NewCard(ctx)
	require.NoError(t, err)
	foo, _, err := g.GetOrNewValue(ctx, g.Symbols.MustResolve(symbols.SchemaString), nil, "Foo")
	require.NoError(t, err)
	name := g.Symbols.MustResolve(symbols.KeyName)

	first, err := g.GetOrNewProperty(ctx, card.ID, name, foo.ID, nil)
	require.NoError(t, err)
	second, err := g.GetOrNewProperty(ctx, card.ID, name, foo.ID, nil)
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestGetOrNewPropertyFansOutArrays(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	card, err := g.NewCard(ctx)
	require.NoError(t, err)
	useCase := g.Symbols.MustResolve(symbols.TypeUseCase)
	software := g.Symbols.MustResolve(symbols.TypeSoftware)
	arr, err := g.GetOrNewIDsArray(ctx, []int64{useCase, software}, nil)
	require.NoError(t, err)

	user, err := g.NewUser(ctx)
	require.NoError(t, err)
	props, err := g.GetOrNewProperty(ctx, card.ID, g.Symbols.MustResolve(symbols.KeyTypes), arr.ID,
		&Vote{VoterID: user.ID, Rating: 1})
	require.NoError(t, err)
	require.Len(t, props, 2)
	assert.Equal(t, useCase, props[0].ValueID)
	assert.Equal(t, software, props[1].ValueID)
	assert.Equal(t, 1, props[0].RatingCount)

	none, err := g.DB.FindProperty(ctx, card.ID, g.Symbols.MustResolve(symbols.KeyTypes), arr.ID)
	require.NoError(t, err)
	assert.Nil(t, none, "no edge to the array itself")
}

func TestGetOrNewPropertyMissingOwner(t *testing.T) {
	g := testGraph(t)

	_, err := g.GetOrNewProperty(context.Background(), 424242,
		g.Symbols.MustResolve(symbols.KeyName), g.Symbols.MustResolve(symbols.True), nil)
	assert.ErrorIs(t, err, store.ErrMissingObject)
}

func TestRegeneratePropertiesItem(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()
	str := g.Symbols.MustResolve(symbols.SchemaString)
	name := g.Symbols.MustResolve(symbols.KeyName)

	card, err := g.NewCard(ctx)
	require.NoError(t, err)
	a, _, err := g.GetOrNewValue(ctx, str, nil, "A")
	require.NoError(t, err)
	b, _, err := g.GetOrNewValue(ctx, str, nil, "B")
	require.NoError(t, err)

	pa, err := g.GetOrNewProperty(ctx, card.ID, name, a.ID, nil)
	require.NoError(t, err)
	pb, err := g.GetOrNewProperty(ctx, card.ID, name, b.ID, nil)
	require.NoError(t, err)

	changed, err := g.RegeneratePropertiesItem(ctx, card.ID, name)
	require.NoError(t, err)
	assert.False(t, changed, "nothing rated yet, key stays absent")

	require.NoError(t, g.DB.SetRating(ctx, pa[0].ID, store.Statement{RatingCount: 1, RatingSum: 1}))
	require.NoError(t, g.DB.SetRating(ctx, pb[0].ID, store.Statement{RatingCount: 1, RatingSum: 1}))
	clearActions(t, g.DB)

	changed, err = g.RegeneratePropertiesItem(ctx, card.ID, name)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 1, pendingCount(t, g.DB))

	obj, err := g.GetObject(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b.ID}, obj.Properties[name], "newest wins ties")

	changed, err = g.RegeneratePropertiesItem(ctx, card.ID, name)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, g.DB.SetTrashed(ctx, pb[0].ID, true))
	require.NoError(t, g.DB.SetTrashed(ctx, pa[0].ID, true))
	changed, err = g.RegeneratePropertiesItem(ctx, card.ID, name)
	require.NoError(t, err)
	assert.True(t, changed)
	obj, err = g.GetObject(ctx, card.ID)
	require.NoError(t, err)
	_, present := obj.Properties[name]
	assert.False(t, present)
}

func TestRateStatementIdempotent(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	card, err := g.NewCard(ctx)
	require.NoError(t, err)
	voter, err := g.NewUser(ctx)
	require.NoError(t, err)
	clearActions(t, g.DB)

	var st store.Statement
	old, ballot, err := g.RateStatement(ctx, &st, card.ID, voter.ID, 1)
	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Equal(t, 1, ballot.Rating)
	assert.Equal(t, store.Statement{RatingCount: 1, RatingSum: 1, Rating: 1}, st)
	assert.Equal(t, 1, pendingCount(t, g.DB))

	clearActions(t, g.DB)
	old, again, err := g.RateStatement(ctx, &st, card.ID, voter.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, ballot.UpdatedAt, old.UpdatedAt)
	assert.Equal(t, ballot.UpdatedAt, again.UpdatedAt)
	assert.Equal(t, 0, pendingCount(t, g.DB))
	assert.Equal(t, 1, st.RatingCount)

	_, _, err = g.RateStatement(ctx, &st, card.ID, voter.ID, -1)
	require.NoError(t, err)
	assert.Equal(t, store.Statement{RatingCount: 1, RatingSum: -1, Rating: -1}, st)

	removed, err := g.UnrateStatement(ctx, &st, card.ID, voter.ID)
	require.NoError(t, err)
	require.NotNil(t, removed)
	assert.Equal(t, store.Statement{}, st)

	_, _, err = g.RateStatement(ctx, nil, card.ID, voter.ID, 2)
	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestRateValueCreatesStatement(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	v, _, err := g.GetOrNewValue(ctx, g.Symbols.MustResolve(symbols.SchemaString), nil, "ground")
	require.NoError(t, err)
	st, err := g.DB.GetStatement(ctx, v.ID)
	require.NoError(t, err)
	assert.Nil(t, st)

	_, _, err = g.RateStatement(ctx, nil, v.ID, 1, 1)
	require.NoError(t, err)
	st, err = g.DB.GetStatement(ctx, v.ID)
	require.NoError(t, err)
	assert.NotNil(t, st)
}

func TestView(t *testing.T) {
	g := testGraph(t)
	ctx := context.Background()

	view, err := g.View(ctx, g.Symbols.MustResolve(symbols.KeyName))
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, symbols.KeyName, view.Symbol)
	assert.Equal(t, store.TypeValue, view.Type)
	assert.JSONEq(t, `{"en":"Name"}`, string(view.Value))
	assert.Nil(t, view.RatingCount)

	missing, err := g.View(ctx, 999999)
	require.NoError(t, err)
	assert.Nil(t, missing)
}
