package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/lazypower/argraph/internal/engine"
	"github.com/lazypower/argraph/internal/graph"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

var log = logrus.WithField("component", "server")

// Server is the argraph HTTP API server.
type Server struct {
	db      *store.DB
	graph   *graph.Graph
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the graph. eng runs collections on
// request; its drain loop is started by the caller.
func New(g *graph.Graph, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      g.DB,
		graph:   g,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/objects/{id}", s.handleGetObject)
		r.Post("/cards", s.handleNewCard)
		r.Post("/users", s.handleNewUser)
		r.Post("/values", s.handleNewValue)
		r.Post("/properties", s.handleNewProperty)
		r.Post("/statements/{id}/ballots", s.handleRate)
		r.Delete("/statements/{id}/ballots/{voterID}", s.handleUnrate)
		r.Get("/autocomplete", s.handleAutocomplete)
		r.Post("/gc", s.handleGC)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}
	pending, _ := s.db.CountPendingActions(r.Context())

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
		"pending": pending,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps well-known errors to a status; anything else is a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrMissingObject):
		status = http.StatusNotFound
	case errors.Is(err, graph.ErrWrongObjectType),
		errors.Is(err, graph.ErrInvalidRating),
		errors.Is(err, symbols.ErrUnknownSymbol),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.WithFields(logrus.Fields{
			"method":  r.Method,
			"path":    r.URL.Path,
			"request": middleware.GetReqID(r.Context()),
		}).WithError(err).Error("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
