package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMemory(t *testing.T) {
	db := testDB(t)
	assert.Equal(t, ":memory:", db.Path)
}

func TestSchemaVersion(t *testing.T) {
	db := testDB(t)

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.Equal(t, LatestVersion(), v)
}

func TestTablesExist(t *testing.T) {
	db := testDB(t)

	tables := []string{
		"schema_versions", "objects", "typed_values", "statements", "properties",
		"ballots", "actions", "symbols", "objects_references",
		"languages_sets", "values_autocompletions",
	}
	for _, table := range tables {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found", table)
	}
}

func TestObjectTypeConstraint(t *testing.T) {
	db := testDB(t)

	_, err := db.Exec(`INSERT INTO objects (created_at, type) VALUES (1000, 'Card')`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO objects (created_at, type) VALUES (1000, 'Spaceship')`)
	assert.Error(t, err, "expected error for invalid object type")
}

func TestBallotRatingConstraint(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	card, err := db.CreateCard(ctx)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO ballots (statement_id, voter_id, rating, updated_at) VALUES (?, 1, 2, 0)`, card.ID)
	assert.Error(t, err, "expected error for rating out of range")
}

func TestMigrationsIdempotent(t *testing.T) {
	db := testDB(t)

	// Running migrate again should be a no-op
	require.NoError(t, db.migrate())

	v, err := db.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), v)
}

func TestVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "argraph.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO schema_versions (version, description) VALUES (?, 'from the future')`, LatestVersion()+1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestForeignKeysEnabled(t *testing.T) {
	db := testDB(t)

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestWALMode(t *testing.T) {
	db := testDB(t)

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	// In-memory databases may use "memory" mode instead of WAL
	assert.Contains(t, []string{"wal", "memory"}, mode)
}
