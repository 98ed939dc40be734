package engine

import (
	"context"
	"sort"

	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// RegenerateTextIndex rewrites the autocomplete rows of a Value. Plain
// strings, emails and URIs are indexed under every configured language.
// A localized string is indexed per language with its own text, falling
// back to the default language and then to any text it has. Languages
// sharing a text share one row. Other values have no rows.
func (e *Engine) RegenerateTextIndex(ctx context.Context, value *store.Value) error {
	texts, err := e.indexTexts(value)
	if err != nil {
		return err
	}
	return e.DB.ReplaceAutocompletions(ctx, value.ID, texts)
}

func (e *Engine) indexTexts(value *store.Value) (map[string][]string, error) {
	switch value.SchemaID {
	case e.Symbols.MustResolve(symbols.SchemaString),
		e.Symbols.MustResolve(symbols.SchemaEmail),
		e.Symbols.MustResolve(symbols.SchemaURI):
		decoded, err := value.Decoded()
		if err != nil {
			return nil, err
		}
		text, _ := decoded.(string)
		if text == "" {
			return nil, nil
		}
		return map[string][]string{text: append([]string(nil), e.Graph.Languages...)}, nil

	case e.Symbols.MustResolve(symbols.SchemaLocalizedString):
		decoded, err := value.Decoded()
		if err != nil {
			return nil, err
		}
		raw, _ := decoded.(map[string]any)
		localized := make(map[string]string, len(raw))
		for lang, text := range raw {
			if s, ok := text.(string); ok && s != "" {
				localized[lang] = s
			}
		}
		if len(localized) == 0 {
			return nil, nil
		}

		languages := append([]string(nil), e.Graph.Languages...)
		for lang := range localized {
			languages = append(languages, lang)
		}
		fallback := localized[e.Graph.DefaultLanguage()]
		if fallback == "" {
			available := make([]string, 0, len(localized))
			for lang := range localized {
				available = append(available, lang)
			}
			sort.Strings(available)
			fallback = localized[available[0]]
		}

		out := make(map[string][]string)
		seen := make(map[string]bool)
		for _, lang := range languages {
			if seen[lang] {
				continue
			}
			seen[lang] = true
			text := localized[lang]
			if text == "" {
				text = fallback
			}
			out[text] = append(out[text], lang)
		}
		return out, nil
	}
	return nil, nil
}
