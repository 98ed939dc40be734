package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/symbols"
)

// GCReport summarizes one collection.
type GCReport struct {
	Run                  string `json:"run"`
	IncompleteValues     int    `json:"incompleteValues"`
	OrphanedValues       int    `json:"orphanedValues"`
	IncompleteProperties int    `json:"incompleteProperties"`
}

// Total returns the number of objects removed.
func (r GCReport) Total() int {
	return r.IncompleteValues + r.OrphanedValues + r.IncompleteProperties
}

// Collect deletes unreachable objects older than the grace period:
// Value objects whose typed row was never written, complete Values nothing
// refers to, and Property objects whose edge row was never written. A
// Value is reachable when it is a statement, is bound to a symbol, is a
// property key or value, is an element of an ids-array, or is the schema or
// widget of another Value. Reachability through an ids-array is checked one
// level deep; arrays that contain themselves through deeper nesting are
// not supported.
//
// Collection shares the drain permit, so it never races the engine.
func (e *Engine) Collect(ctx context.Context) (GCReport, error) {
	e.permit.Lock()
	defer e.permit.Unlock()

	report := GCReport{Run: uuid.Must(uuid.NewV7()).String()}
	runLog := log.WithField("run", report.Run)
	cutoff := time.Now().Add(-e.Options.GCGrace).UnixMilli() + 1
	idsArray := e.Symbols.MustResolve(symbols.SchemaIDsArray)

	incomplete, err := e.DB.IncompleteValueIDs(ctx, idsArray, cutoff)
	if err != nil {
		return report, err
	}
	for _, id := range incomplete {
		if err := e.DB.DeleteObject(ctx, id); err != nil {
			return report, fmt.Errorf("gc incomplete value %d: %w", id, err)
		}
		report.IncompleteValues++
	}

	orphans, err := e.DB.OrphanedValues(ctx, idsArray, cutoff)
	if err != nil {
		return report, err
	}
	for _, v := range orphans {
		if err := e.DB.DeleteObject(ctx, v.ID); err != nil {
			return report, fmt.Errorf("gc orphaned value %d: %w", v.ID, err)
		}
		runLog.WithFields(logrus.Fields{
			"object": v.ID,
			"schema": e.Symbols.Unresolve(v.SchemaID),
			"value":  e.Graph.Describe(v),
		}).Info("orphaned value deleted")
		report.OrphanedValues++
	}

	properties, err := e.DB.IncompletePropertyIDs(ctx, cutoff)
	if err != nil {
		return report, err
	}
	for _, id := range properties {
		if err := e.DB.DeleteObject(ctx, id); err != nil {
			return report, fmt.Errorf("gc incomplete property %d: %w", id, err)
		}
		report.IncompleteProperties++
	}

	if report.Total() > 0 {
		runLog.WithFields(logrus.Fields{
			"incompleteValues":     report.IncompleteValues,
			"orphanedValues":       report.OrphanedValues,
			"incompleteProperties": report.IncompleteProperties,
		}).Info("garbage collected")
	}
	return report, nil
}
