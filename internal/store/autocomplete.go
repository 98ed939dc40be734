package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LanguagesSet is an interned set of language codes. Index rows whose text
// is identical across several languages share one set instead of being
// written once per language.
type LanguagesSet struct {
	ID        int64
	Languages []string
}

// GetOrNewLanguagesSet returns the set for languages, creating it if needed.
// Order and duplicates in languages do not matter.
func (db *DB) GetOrNewLanguagesSet(ctx context.Context, languages []string) (*LanguagesSet, error) {
	langs := normalizeLanguages(languages)
	encoded, err := json.Marshal(langs)
	if err != nil {
		return nil, fmt.Errorf("encode languages: %w", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO languages_sets (languages) VALUES (?) ON CONFLICT (languages) DO NOTHING`,
		string(encoded)); err != nil {
		return nil, fmt.Errorf("insert languages set: %w", err)
	}
	var id int64
	if err := db.QueryRowContext(ctx,
		`SELECT id FROM languages_sets WHERE languages = ?`, string(encoded)).Scan(&id); err != nil {
		return nil, fmt.Errorf("get languages set: %w", err)
	}
	return &LanguagesSet{ID: id, Languages: langs}, nil
}

func normalizeLanguages(languages []string) []string {
	seen := make(map[string]bool, len(languages))
	out := make([]string, 0, len(languages))
	for _, l := range languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Autocompletion is one index row of a value.
type Autocompletion struct {
	ValueID   int64
	Languages []string
	Text      string
}

// ReplaceAutocompletions rewrites the index rows of valueID. texts maps a
// derived text to the languages it applies to.
func (db *DB) ReplaceAutocompletions(ctx context.Context, valueID int64, texts map[string][]string) error {
	if _, err := db.ExecContext(ctx,
		`DELETE FROM values_autocompletions WHERE value_id = ?`, valueID); err != nil {
		return fmt.Errorf("clear autocompletions of %d: %w", valueID, err)
	}
	for text, langs := range texts {
		set, err := db.GetOrNewLanguagesSet(ctx, langs)
		if err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, `
			INSERT INTO values_autocompletions (value_id, languages_set_id, autocomplete) VALUES (?, ?, ?)
			ON CONFLICT (value_id, languages_set_id) DO UPDATE SET autocomplete = excluded.autocomplete
		`, valueID, set.ID, text); err != nil {
			return fmt.Errorf("insert autocompletion of %d: %w", valueID, err)
		}
	}
	return nil
}

// Autocomplete returns values whose indexed text in language starts with
// prefix (case-insensitive), shortest text first.
func (db *DB) Autocomplete(ctx context.Context, language, prefix string, limit int) ([]Autocompletion, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, `
		SELECT a.value_id, l.languages, a.autocomplete
		FROM values_autocompletions a
		JOIN languages_sets l ON l.id = a.languages_set_id
		WHERE a.autocomplete LIKE ? ESCAPE '\'
			AND EXISTS (SELECT 1 FROM json_each(l.languages) e WHERE e.value = ?)
		ORDER BY length(a.autocomplete), a.value_id
		LIMIT ?
	`, escapeLike(prefix)+"%", strings.ToLower(language), limit)
	if err != nil {
		return nil, fmt.Errorf("autocomplete: %w", err)
	}
	defer rows.Close()

	var out []Autocompletion
	for rows.Next() {
		var a Autocompletion
		var langs sql.NullString
		if err := rows.Scan(&a.ValueID, &langs, &a.Text); err != nil {
			return nil, fmt.Errorf("scan autocompletion: %w", err)
		}
		if langs.Valid {
			if err := json.Unmarshal([]byte(langs.String), &a.Languages); err != nil {
				return nil, fmt.Errorf("decode languages of %d: %w", a.ValueID, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
