// Package engine keeps derived state correct as the graph mutates. It
// drains the action queue one object at a time, recomputing references,
// classification, rating and trashed state, and queues the neighbours whose
// own derived state may now be stale.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/graph"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

var log = logrus.WithField("component", "engine")

// Options tune the background loop and the collector.
type Options struct {
	PollInterval time.Duration
	GCGrace      time.Duration
	GCAfterDrain bool
}

// Engine owns the drain loop of one process. Nothing stops two processes
// from draining the same database at once; run a single worker.
type Engine struct {
	DB      *store.DB
	Graph   *graph.Graph
	Symbols *symbols.Registry
	Options Options

	// permit makes Drain non-reentrant; dirty records that someone asked
	// for a drain while it was held.
	permit sync.Mutex
	dirty  atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Engine.
func New(g *graph.Graph, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Engine{
		DB:      g.DB,
		Graph:   g,
		Symbols: g.Symbols,
		Options: opts,
	}
}

// Start runs the drain loop in the background until Stop.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		e.Run(ctx)
	}()
}

// Stop shuts down the background loop and waits for the current action.
func (e *Engine) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
}

// Run drains the queue whenever an action is queued in this process, and
// every poll interval to catch actions queued by other processes. It
// returns when ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	wake, unsubscribe := e.DB.Actions.Subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(e.Options.PollInterval)
	defer ticker.Stop()

	for {
		e.cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wake:
		case <-ticker.C:
		}
	}
}

func (e *Engine) cycle(ctx context.Context) {
	n, err := e.Drain(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("drain failed")
	}
	if n == 0 || !e.Options.GCAfterDrain || ctx.Err() != nil {
		return
	}
	if _, err := e.Collect(ctx); err != nil {
		log.WithError(err).Error("gc failed")
	}
}

// Drain processes pending actions until the queue is empty and returns how
// many it processed. If another drain is in progress it only flags that
// more work arrived, and returns 0 at once; the running drain checks the
// queue again before it stops.
func (e *Engine) Drain(ctx context.Context) (int, error) {
	if !e.permit.TryLock() {
		e.dirty.Store(true)
		return 0, nil
	}
	defer e.permit.Unlock()

	runLog := log.WithField("run", uuid.Must(uuid.NewV7()).String())
	start := time.Now()
	processed := 0
	for {
		e.dirty.Store(false)
		actions, err := e.DB.PendingActions(ctx)
		if err != nil {
			return processed, err
		}
		if len(actions) == 0 {
			if e.dirty.Load() {
				continue
			}
			break
		}
		for _, a := range actions {
			if err := ctx.Err(); err != nil {
				return processed, err
			}
			e.process(ctx, runLog, a)
			processed++
		}
	}

	if processed > 0 {
		runLog.WithFields(logrus.Fields{
			"actions":  processed,
			"duration": time.Since(start).String(),
		}).Info("queue drained")
	}
	return processed, nil
}

// process handles one action as its own unit of work. Failures are logged
// and never reach the caller.
func (e *Engine) process(ctx context.Context, runLog *logrus.Entry, a store.Action) {
	entry := runLog.WithFields(logrus.Fields{"object": a.ObjectID, "reason": a.Type})
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("action panicked")
		}
	}()

	// Deleted first: a change made while this object is processed queues a
	// fresh action instead of being lost.
	if err := e.DB.DeleteAction(ctx, a.ID); err != nil {
		entry.WithError(err).Error("dequeue failed")
		return
	}

	err := e.ProcessObject(ctx, a.ObjectID, a.Type)
	switch {
	case errors.Is(err, store.ErrMissingObject):
		entry.Debug("object is gone, action dropped")
	case err != nil:
		entry.WithError(err).Error("action failed")
	default:
		entry.Debug("action processed")
	}
}

// ProcessObject recomputes the derived state of one object and queues the
// objects affected by any change.
func (e *Engine) ProcessObject(ctx context.Context, id int64, reason string) error {
	obj, err := e.DB.GetObject(ctx, id)
	if err != nil {
		return err
	}
	if obj == nil {
		return fmt.Errorf("object %d: %w", id, store.ErrMissingObject)
	}

	var value *store.Value
	var prop *store.Property
	switch obj.Type {
	case store.TypeValue:
		if value, err = e.DB.GetValue(ctx, id); err != nil {
			return err
		}
	case store.TypeProperty:
		if prop, err = e.DB.GetProperty(ctx, id); err != nil {
			return err
		}
		if prop == nil {
			return fmt.Errorf("property %d: %w", id, store.ErrMissingObject)
		}
	}

	if reason == store.ActionValue {
		if value == nil {
			return fmt.Errorf("value %d: %w", id, store.ErrMissingObject)
		}
		return e.RegenerateTextIndex(ctx, value)
	}

	added, removed, err := e.recomputeReferences(ctx, obj, value, prop)
	if err != nil {
		return fmt.Errorf("references of %d: %w", id, err)
	}
	contentChanged := len(added) > 0 || len(removed) > 0

	cls, err := e.recomputeClassification(ctx, obj)
	if err != nil {
		return fmt.Errorf("classification of %d: %w", id, err)
	}
	if cls.changed {
		contentChanged = true
		if value != nil {
			if err := e.RegenerateTextIndex(ctx, value); err != nil {
				return err
			}
		}
	}

	var ratingChanged, trashedChanged bool
	st, err := e.DB.GetStatement(ctx, id)
	if err != nil {
		return err
	}
	if st != nil {
		if ratingChanged, err = e.recomputeRating(ctx, obj, prop, st); err != nil {
			return fmt.Errorf("rating of %d: %w", id, err)
		}
		if trashedChanged, err = e.recomputeTrashed(ctx, obj, st); err != nil {
			return fmt.Errorf("trashed of %d: %w", id, err)
		}
	}

	var targets []int64
	switch {
	case ratingChanged || trashedChanged || cls.explicitChanged:
		if targets, err = e.DB.NeighbourIDs(ctx, id); err != nil {
			return err
		}
		if prop != nil {
			targets = append(targets, prop.ObjectID)
		}
	case contentChanged:
		targets = append(added, removed...)
	}
	for _, target := range targets {
		if err := e.DB.EnqueueAction(ctx, target, store.ActionReference); err != nil {
			return err
		}
	}

	if prop != nil && (ratingChanged || trashedChanged) {
		if err := e.refreshOwner(ctx, prop); err != nil {
			return err
		}
	}
	return nil
}

// refreshOwner re-derives what the owner of a Property caches about it.
func (e *Engine) refreshOwner(ctx context.Context, prop *store.Property) error {
	if _, err := e.Graph.RegeneratePropertiesItem(ctx, prop.ObjectID, prop.KeyID); err != nil {
		return err
	}
	if _, debate := e.Symbols.DebateWeight(prop.KeyID); !debate {
		return nil
	}
	n, err := e.DB.CountLiveProperties(ctx, prop.ObjectID, e.Symbols.DebateKeyIDs())
	if err != nil {
		return err
	}
	if err := e.DB.EnsureStatement(ctx, prop.ObjectID); err != nil {
		return err
	}
	return e.DB.SetArgumentCount(ctx, prop.ObjectID, n)
}
