// Package graph is the write surface of the store: value interning,
// property edges and ballots. Every mutation here queues the actions the
// engine needs to bring derived state back in line.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

var log = logrus.WithField("component", "graph")

// ErrWrongObjectType is returned when an id names an object of another type
// than the schema or operation expects.
var ErrWrongObjectType = errors.New("wrong object type")

// Graph ties the store to the symbol registry.
type Graph struct {
	DB      *store.DB
	Symbols *symbols.Registry

	// Languages are the languages text is indexed for. The first one is
	// the default for plain strings given where a localized string is
	// expected.
	Languages []string
}

// New creates a Graph. languages defaults to English.
func New(db *store.DB, reg *symbols.Registry, languages []string) *Graph {
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &Graph{DB: db, Symbols: reg, Languages: languages}
}

// DefaultLanguage returns the first configured language.
func (g *Graph) DefaultLanguage() string {
	return g.Languages[0]
}

// GetObject returns the object with this id, or nil.
func (g *Graph) GetObject(ctx context.Context, id int64) (*store.Object, error) {
	return g.DB.GetObject(ctx, id)
}

// NewCard creates a Card and queues its first recomputation.
func (g *Graph) NewCard(ctx context.Context) (*store.Object, error) {
	card, err := g.DB.CreateCard(ctx)
	if err != nil {
		return nil, err
	}
	if err := g.DB.EnqueueAction(ctx, card.ID, store.ActionCreated); err != nil {
		return nil, err
	}
	log.WithField("object", card.ID).Debug("card created")
	return card, nil
}

// NewUser creates a User object. Users vote; they are never rated.
func (g *Graph) NewUser(ctx context.Context) (*store.Object, error) {
	user, err := g.DB.CreateObject(ctx, store.TypeUser)
	if err != nil {
		return nil, fmt.Errorf("new user: %w", err)
	}
	return user, nil
}

// requireType fails unless id exists and has type want.
func (g *Graph) requireType(ctx context.Context, id int64, want store.ObjectType) error {
	types, err := g.DB.ObjectTypes(ctx, []int64{id})
	if err != nil {
		return err
	}
	typ, ok := types[id]
	if !ok {
		return fmt.Errorf("%w: %d", store.ErrMissingObject, id)
	}
	if want != "" && typ != want {
		return fmt.Errorf("%w: %d is a %s, want %s", ErrWrongObjectType, id, typ, want)
	}
	return nil
}
