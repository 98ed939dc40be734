package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSelfTypedValue(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	root, err := db.CreateSelfTypedValue(ctx, map[string]any{"type": "object"})
	require.NoError(t, err)
	assert.Equal(t, root.ID, root.SchemaID)

	got, err := db.GetValue(ctx, root.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"type":"object"}`, string(got.Value))
	assert.Equal(t, TypeValue, got.Type)
}

func TestFindValueCanonical(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	schemaID := int64(1)

	created, err := db.CreateValue(ctx, schemaID, nil, json.RawMessage(`{"b": 1, "a": [1, 2]}`))
	require.NoError(t, err)

	found, err := db.FindValue(ctx, schemaID, map[string]any{"a": []any{1, 2}, "b": 1})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	other, err := db.FindValue(ctx, schemaID+1, map[string]any{"a": []any{1, 2}, "b": 1})
	require.NoError(t, err)
	assert.Nil(t, other, "schema is part of identity")
}

func TestFindContainingValue(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	localized := int64(7)

	both, err := db.CreateValue(ctx, localized, nil, map[string]string{"en": "Paris", "fr": "Paris"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		texts map[string]string
		want  int64
	}{
		{"subset finds superset", map[string]string{"en": "Paris"}, both.ID},
		{"exact match", map[string]string{"en": "Paris", "fr": "Paris"}, both.ID},
		{"different text", map[string]string{"en": "London"}, 0},
		{"extra language missing from stored", map[string]string{"en": "Paris", "es": "París"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.FindContainingValue(ctx, localized, tt.texts)
			require.NoError(t, err)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestPropertyMapJSON(t *testing.T) {
	m := PropertyMap{3: {10}, 4: {11, 12}}
	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"3":10,"4":[11,12]}`, string(b))

	var back PropertyMap
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m, back)
}

func TestObjectDerivedStateRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	card, err := db.CreateCard(ctx)
	require.NoError(t, err)

	require.NoError(t, db.SetObjectProperties(ctx, card.ID, PropertyMap{5: {6}}))
	require.NoError(t, db.SetObjectClassification(ctx, card.ID, []int64{1}, []int64{2, 3}, []int64{2, 3}, []int64{3}))

	got, err := db.GetObject(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, PropertyMap{5: {6}}, got.Properties)
	assert.Equal(t, []int64{1}, got.SubTypeIDs)
	assert.Equal(t, []int64{2, 3}, got.TagIDs)
	assert.Equal(t, []int64{2, 3}, got.ExplicitTagIDs, "an explicit tag may also be a usage")
	assert.Equal(t, []int64{3}, got.UsageIDs)

	require.NoError(t, db.SetObjectProperties(ctx, card.ID, nil))
	got, err = db.GetObject(ctx, card.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Properties)
}

func TestGetObjectMissing(t *testing.T) {
	db := testDB(t)

	got, err := db.GetObject(context.Background(), 999)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAutocomplete(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := db.CreateValue(ctx, 1, nil, "Paris")
	require.NoError(t, err)
	require.NoError(t, db.ReplaceAutocompletions(ctx, v.ID, map[string][]string{
		"Paris": {"fr", "en"},
	}))

	got, err := db.Autocomplete(ctx, "en", "par", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, v.ID, got[0].ValueID)
	assert.Equal(t, []string{"en", "fr"}, got[0].Languages)

	got, err = db.Autocomplete(ctx, "es", "par", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAutocompleteBadLanguagesSet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := db.CreateValue(ctx, 1, nil, "Paris")
	require.NoError(t, err)
	res, err := db.Exec(`INSERT INTO languages_sets (languages) VALUES ('["en", 1]')`)
	require.NoError(t, err)
	setID, err := res.LastInsertId()
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO values_autocompletions (value_id, languages_set_id, autocomplete) VALUES (?, ?, 'Paris')`, v.ID, setID)
	require.NoError(t, err)

	_, err = db.Autocomplete(ctx, "en", "par", 10)
	assert.Error(t, err)
}

func TestLanguagesSetInterned(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	a, err := db.GetOrNewLanguagesSet(ctx, []string{"fr", "en"})
	require.NoError(t, err)
	b, err := db.GetOrNewLanguagesSet(ctx, []string{"EN", "fr", "fr"})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, []string{"en", "fr"}, b.Languages)
}
