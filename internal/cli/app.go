package cli

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/engine"
	"github.com/lazypower/argraph/internal/graph"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

// app is everything a command needs, wired from cfg.
type app struct {
	db     *store.DB
	graph  *graph.Graph
	engine *engine.Engine
}

// openApp opens the database and binds the symbol table. New symbols are
// created on first use.
func openApp(ctx context.Context) (*app, error) {
	path := cfg.Database.Path
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	reg, err := symbols.Bootstrap(ctx, db, symbols.Definitions)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap symbols: %w", err)
	}
	log.WithFields(logrus.Fields{"db": path, "symbols": reg.Len()}).Debug("database ready")

	g := graph.New(db, reg, cfg.Languages)
	eng := engine.New(g, engine.Options{
		PollInterval: cfg.Queue.PollInterval,
		GCGrace:      cfg.GC.Grace,
		GCAfterDrain: cfg.GC.AfterDrain,
	})
	return &app{db: db, graph: g, engine: eng}, nil
}

func (a *app) Close() error {
	a.engine.Stop()
	return a.db.Close()
}
