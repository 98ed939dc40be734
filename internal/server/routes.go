package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/argraph/internal/graph"
	"github.com/lazypower/argraph/internal/schema"
	"github.com/lazypower/argraph/internal/store"
)

var errBadRequest = errors.New("bad request")

// decode reads a JSON body keeping numbers exact.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", errBadRequest, err)
	}
	return nil
}

// resolve reads an object reference given as an id, a decimal string or a
// symbol.
func (s *Server) resolve(ref any) (int64, error) {
	if id, ok := schema.ParseID(ref); ok {
		return id, nil
	}
	if symbol, ok := ref.(string); ok && symbol != "" {
		return s.graph.Symbols.Resolve(symbol)
	}
	return 0, fmt.Errorf("%w: %v is not an id or a symbol", errBadRequest, ref)
}

func (s *Server) resolveOptional(ref any) (*int64, error) {
	if ref == nil {
		return nil, nil
	}
	id, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (s *Server) pathID(r *http.Request, param string) (int64, error) {
	return s.resolve(chi.URLParam(r, param))
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, status int, id int64) {
	view, err := s.graph.View(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if view == nil {
		writeError(w, r, fmt.Errorf("object %d: %w", id, store.ErrMissingObject))
		return
	}
	writeJSON(w, status, view)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	id, err := s.pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeView(w, r, http.StatusOK, id)
}

func (s *Server) handleNewCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.graph.NewCard(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeView(w, r, http.StatusCreated, card.ID)
}

func (s *Server) handleNewUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.graph.NewUser(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeView(w, r, http.StatusCreated, user.ID)
}

func (s *Server) handleNewValue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Schema any             `json:"schema"`
		Widget any             `json:"widget"`
		Value  json.RawMessage `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	schemaID, err := s.resolve(req.Schema)
	if err != nil {
		writeError(w, r, err)
		return
	}
	widgetID, err := s.resolveOptional(req.Widget)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(bytes.TrimSpace(req.Value)) == 0 {
		writeError(w, r, fmt.Errorf("%w: value required", errBadRequest))
		return
	}

	obj, warnings, err := s.graph.ConvertJSONToTypedValue(r.Context(), schemaID, widgetID, req.Value)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if warnings == nil {
		warnings = graph.Warnings{}
	}
	resp := map[string]any{"warnings": warnings}
	if obj != nil {
		view, err := s.graph.View(r.Context(), obj.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp["object"] = view
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNewProperty(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Object any  `json:"object"`
		Key    any  `json:"key"`
		Value  any  `json:"value"`
		Voter  any  `json:"voter"`
		Rating *int `json:"rating"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids := make([]int64, 3)
	for i, ref := range []any{req.Object, req.Key, req.Value} {
		id, err := s.resolve(ref)
		if err != nil {
			writeError(w, r, err)
			return
		}
		ids[i] = id
	}

	var vote *graph.Vote
	if req.Voter != nil {
		voterID, err := s.resolve(req.Voter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		vote = &graph.Vote{VoterID: voterID, Rating: 1}
		if req.Rating != nil {
			vote.Rating = *req.Rating
		}
	}

	props, err := s.graph.GetOrNewProperty(r.Context(), ids[0], ids[1], ids[2], vote)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]*graph.ObjectView, 0, len(props))
	for _, p := range props {
		view, err := s.graph.View(r.Context(), p.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"properties": views})
}

type ballotJSON struct {
	StatementID int64 `json:"statementId"`
	VoterID     int64 `json:"voterId"`
	Rating      int   `json:"rating"`
	UpdatedAt   int64 `json:"updatedAt"`
}

func toBallotJSON(b *store.Ballot) *ballotJSON {
	if b == nil {
		return nil
	}
	return &ballotJSON{b.StatementID, b.VoterID, b.Rating, b.UpdatedAt}
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	statementID, err := s.pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Voter  any `json:"voter"`
		Rating int `json:"rating"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	voterID, err := s.resolve(req.Voter)
	if err != nil {
		writeError(w, r, err)
		return
	}

	st, err := s.db.GetStatement(r.Context(), statementID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if st == nil {
		st = &store.Statement{}
	}
	old, ballot, err := s.graph.RateStatement(r.Context(), st, statementID, voterID, req.Rating)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"old":         toBallotJSON(old),
		"ballot":      toBallotJSON(ballot),
		"ratingCount": st.RatingCount,
		"ratingSum":   st.RatingSum,
		"rating":      st.Rating,
	})
}

func (s *Server) handleUnrate(w http.ResponseWriter, r *http.Request) {
	statementID, err := s.pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	voterID, err := s.pathID(r, "voterID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	st, err := s.db.GetStatement(r.Context(), statementID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	old, err := s.graph.UnrateStatement(r.Context(), st, statementID, voterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if old == nil {
		writeError(w, r, fmt.Errorf("ballot of %d on %d: %w", voterID, statementID, store.ErrMissingObject))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"old": toBallotJSON(old)})
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, r, fmt.Errorf("%w: q parameter required", errBadRequest))
		return
	}
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = s.graph.DefaultLanguage()
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	found, err := s.db.Autocomplete(r.Context(), lang, query, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type resultJSON struct {
		ValueID   int64    `json:"valueId"`
		Text      string   `json:"text"`
		Languages []string `json:"languages"`
	}
	out := make([]resultJSON, len(found))
	for i, a := range found {
		out[i] = resultJSON{a.ValueID, a.Text, a.Languages}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"lang":    lang,
		"count":   len(out),
		"results": out,
	})
}

func (s *Server) handleGC(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "engine not configured"})
		return
	}
	report, err := s.engine.Collect(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
