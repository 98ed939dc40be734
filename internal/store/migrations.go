package store

import (
	"errors"
	"fmt"
)

// ErrVersionMismatch is returned at startup when the database was written by
// a newer build than this one. Running against it could corrupt derived state.
var ErrVersionMismatch = errors.New("database schema version mismatch")

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "objects, values, statements, properties, ballots",
		SQL: `
CREATE TABLE objects (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at  INTEGER NOT NULL,
    type        TEXT NOT NULL CHECK (type IN ('Card', 'Property', 'User', 'Value')),

    -- Derived state, maintained by the engine
    properties  TEXT,
    sub_types   TEXT,
    tags        TEXT,
    usages      TEXT
);

CREATE INDEX idx_objects_type ON objects(type);

CREATE TABLE typed_values (
    id         INTEGER PRIMARY KEY,
    schema_id  INTEGER NOT NULL,
    widget_id  INTEGER,
    value      TEXT NOT NULL,
    FOREIGN KEY (id) REFERENCES objects(id) ON DELETE CASCADE
);

CREATE INDEX idx_values_schema_value ON typed_values(schema_id, value);

CREATE TABLE statements (
    id              INTEGER PRIMARY KEY,
    rating          REAL NOT NULL DEFAULT 0,
    rating_count    INTEGER NOT NULL DEFAULT 0,
    rating_sum      INTEGER NOT NULL DEFAULT 0,
    trending        REAL NOT NULL DEFAULT 0,
    trashed         INTEGER NOT NULL DEFAULT 0,
    argument_count  INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (id) REFERENCES objects(id) ON DELETE CASCADE
);

CREATE INDEX idx_statements_trending ON statements(trending DESC);

CREATE TABLE properties (
    id         INTEGER PRIMARY KEY,
    object_id  INTEGER NOT NULL,
    key_id     INTEGER NOT NULL,
    value_id   INTEGER NOT NULL,
    FOREIGN KEY (id) REFERENCES statements(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX idx_properties_edge  ON properties(object_id, key_id, value_id);
CREATE INDEX idx_properties_key          ON properties(key_id);
CREATE INDEX idx_properties_value        ON properties(value_id);

CREATE TABLE ballots (
    statement_id  INTEGER NOT NULL,
    voter_id      INTEGER NOT NULL,
    rating        INTEGER NOT NULL CHECK (rating IN (-1, 0, 1)),
    updated_at    INTEGER NOT NULL,
    PRIMARY KEY (statement_id, voter_id),
    FOREIGN KEY (statement_id) REFERENCES statements(id) ON DELETE CASCADE
);

CREATE INDEX idx_ballots_voter ON ballots(voter_id);
`,
	},
	{
		Version:     2,
		Description: "actions, symbols, objects_references",
		SQL: `
CREATE TABLE actions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at  INTEGER NOT NULL,
    object_id   INTEGER NOT NULL,
    type        TEXT NOT NULL
);

CREATE UNIQUE INDEX idx_actions_object_type ON actions(object_id, type);
CREATE INDEX idx_actions_created            ON actions(created_at, id);

CREATE TABLE symbols (
    id      INTEGER PRIMARY KEY,
    symbol  TEXT NOT NULL UNIQUE,
    FOREIGN KEY (id) REFERENCES objects(id) ON DELETE CASCADE
);

CREATE TABLE objects_references (
    source_id  INTEGER NOT NULL,
    target_id  INTEGER NOT NULL,
    PRIMARY KEY (source_id, target_id),
    FOREIGN KEY (source_id) REFERENCES objects(id) ON DELETE CASCADE,
    FOREIGN KEY (target_id) REFERENCES objects(id) ON DELETE CASCADE
);

CREATE INDEX idx_references_target ON objects_references(target_id);
`,
	},
	{
		Version:     3,
		Description: "languages_sets, values_autocompletions: text index",
		SQL: `
CREATE TABLE languages_sets (
    id         INTEGER PRIMARY KEY,
    languages  TEXT NOT NULL UNIQUE
);

CREATE TABLE values_autocompletions (
    value_id          INTEGER NOT NULL,
    languages_set_id  INTEGER NOT NULL,
    autocomplete      TEXT NOT NULL,
    PRIMARY KEY (value_id, languages_set_id),
    FOREIGN KEY (value_id) REFERENCES objects(id) ON DELETE CASCADE,
    FOREIGN KEY (languages_set_id) REFERENCES languages_sets(id)
);

CREATE INDEX idx_autocompletions_text ON values_autocompletions(autocomplete);
`,
	},
	{
		Version:     4,
		Description: "objects.explicit_tags: tags before usages are merged in",
		SQL: `
ALTER TABLE objects ADD COLUMN explicit_tags TEXT;
`,
	},
}

// LatestVersion is the schema version this build writes.
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	current, err := db.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > LatestVersion() {
		return fmt.Errorf("%w: database is at %d, this build knows up to %d",
			ErrVersionMismatch, current, LatestVersion())
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
