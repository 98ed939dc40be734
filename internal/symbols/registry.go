// Package symbols binds stable mnemonic names to the ids of well-known
// objects. The registry is built once at startup and read-only afterwards.
package symbols

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/store"
)

var log = logrus.WithField("component", "symbols")

var (
	// ErrUnknownSymbol is returned when resolving a name nothing is bound to.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrCyclicOrMissingSymbol is returned by Bootstrap when a definition
	// names a schema or widget that is not defined before it.
	ErrCyclicOrMissingSymbol = errors.New("cyclic or missing symbol")
)

// Registry maps symbols to ids and back.
type Registry struct {
	byName map[string]int64
	byID   map[int64]string

	debate      map[int64]int
	multiValued map[int64]bool
}

func newRegistry() *Registry {
	return &Registry{
		byName:      make(map[string]int64),
		byID:        make(map[int64]string),
		debate:      make(map[int64]int),
		multiValued: make(map[int64]bool),
	}
}

func (r *Registry) bind(symbol string, id int64) {
	r.byName[symbol] = id
	r.byID[id] = symbol
}

// finish derives the key sets once every definition is bound.
func (r *Registry) finish() {
	for symbol, weight := range debateWeights {
		if id, ok := r.byName[symbol]; ok {
			r.debate[id] = weight
		}
	}
	for _, symbol := range multiValued {
		if id, ok := r.byName[symbol]; ok {
			r.multiValued[id] = true
		}
	}
}

// Resolve returns the id bound to symbol.
func (r *Registry) Resolve(symbol string) (int64, error) {
	id, ok := r.byName[symbol]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return id, nil
}

// MustResolve is Resolve for the built-in symbols; it panics on a miss.
func (r *Registry) MustResolve(symbol string) int64 {
	id, err := r.Resolve(symbol)
	if err != nil {
		panic(err)
	}
	return id
}

// Unresolve returns the symbol bound to id, or id in decimal.
func (r *Registry) Unresolve(id int64) string {
	if symbol, ok := r.byID[id]; ok {
		return symbol
	}
	return strconv.FormatInt(id, 10)
}

// Symbol returns the symbol bound to id, if any.
func (r *Registry) Symbol(id int64) (string, bool) {
	symbol, ok := r.byID[id]
	return symbol, ok
}

// Len returns the number of bound symbols.
func (r *Registry) Len() int {
	return len(r.byName)
}

// DebateWeight returns the weight of a debate key, and whether keyID is one.
func (r *Registry) DebateWeight(keyID int64) (int, bool) {
	w, ok := r.debate[keyID]
	return w, ok
}

// DebateKeyIDs returns the ids of the debate keys.
func (r *Registry) DebateKeyIDs() []int64 {
	ids := make([]int64, 0, len(r.debate))
	for _, symbol := range []string{KeyCon, KeyPro} {
		if id, ok := r.byName[symbol]; ok {
			if _, debate := r.debate[id]; debate {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// IsMultiValued reports whether keyID keeps a list in the properties cache.
func (r *Registry) IsMultiValued(keyID int64) bool {
	return r.multiValued[keyID]
}

// MultiValuedKeyIDs returns the ids of the multi-valued keys.
func (r *Registry) MultiValuedKeyIDs() []int64 {
	ids := make([]int64, 0, len(r.multiValued))
	for _, symbol := range multiValued {
		if id, ok := r.byName[symbol]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Bootstrap binds every definition, in order. Symbols already recorded in
// the database are reused as is; the others are interned as Values and
// bound. Values created here are queued for text indexing.
func Bootstrap(ctx context.Context, db *store.DB, defs []Definition) (*Registry, error) {
	bound, err := db.AllSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	r := newRegistry()
	for id, symbol := range invert(bound) {
		r.byID[id] = symbol
	}

	created := 0
	for i, def := range defs {
		if id, ok := bound[def.Symbol]; ok {
			r.bind(def.Symbol, id)
			continue
		}

		v, isNew, err := r.materialize(ctx, db, def)
		if err != nil {
			return nil, fmt.Errorf("bootstrap %s (#%d): %w", def.Symbol, i, err)
		}
		if err := db.BindSymbol(ctx, def.Symbol, v.ID); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		r.bind(def.Symbol, v.ID)
		if isNew {
			created++
			if err := db.EnqueueAction(ctx, v.ID, store.ActionValue); err != nil {
				return nil, fmt.Errorf("bootstrap: %w", err)
			}
		}
	}
	r.finish()

	log.WithFields(logrus.Fields{"symbols": len(r.byName), "created": created}).Debug("registry ready")
	return r, nil
}

// materialize finds or creates the Value of a definition.
func (r *Registry) materialize(ctx context.Context, db *store.DB, def Definition) (*store.Value, bool, error) {
	if def.Schema == def.Symbol {
		if def.Widget != "" {
			return nil, false, fmt.Errorf("%w: self-typed %s cannot have a widget", ErrCyclicOrMissingSymbol, def.Symbol)
		}
		v, err := db.CreateSelfTypedValue(ctx, def.Payload)
		return v, true, err
	}

	schemaID, ok := r.byName[def.Schema]
	if !ok {
		return nil, false, fmt.Errorf("%w: schema %q", ErrCyclicOrMissingSymbol, def.Schema)
	}
	var widgetID *int64
	if def.Widget != "" {
		id, ok := r.byName[def.Widget]
		if !ok {
			return nil, false, fmt.Errorf("%w: widget %q", ErrCyclicOrMissingSymbol, def.Widget)
		}
		widgetID = &id
	}

	var existing *store.Value
	var err error
	if texts, ok := def.Payload.(map[string]string); ok && def.Schema == SchemaLocalizedString {
		existing, err = db.FindContainingValue(ctx, schemaID, texts)
	} else {
		existing, err = db.FindValue(ctx, schemaID, def.Payload)
	}
	if err != nil {
		return nil, false, err
	}
	// A value can carry one symbol only.
	if existing != nil {
		if _, taken := r.byID[existing.ID]; !taken {
			return existing, false, nil
		}
	}

	v, err := db.CreateValue(ctx, schemaID, widgetID, def.Payload)
	return v, true, err
}

func invert(m map[string]int64) map[int64]string {
	out := make(map[int64]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
