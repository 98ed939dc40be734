package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/argraph/internal/engine"
	"github.com/lazypower/argraph/internal/graph"
	"github.com/lazypower/argraph/internal/store"
	"github.com/lazypower/argraph/internal/symbols"
)

func testServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	db, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := symbols.Bootstrap(context.Background(), db, symbols.Definitions)
	require.NoError(t, err)
	g := graph.New(db, reg, []string{"en", "fr"})
	eng := engine.New(g, engine.Options{})
	_, err = eng.Drain(context.Background())
	require.NoError(t, err)
	return New(g, eng, "test-version"), eng
}

func do(t *testing.T, srv *Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	}
	return w.Code, out
}

func idOf(t *testing.T, m map[string]any) int64 {
	t.Helper()
	id, ok := m["id"].(float64)
	require.True(t, ok, "no id in %v", m)
	return int64(id)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-version", body["version"])
	assert.Equal(t, true, body["db"])
	assert.Equal(t, float64(0), body["pending"])
}

func TestCardLifecycle(t *testing.T) {
	srv, eng := testServer(t)
	ctx := context.Background()

	code, user := do(t, srv, "POST", "/api/users", "")
	require.Equal(t, http.StatusCreated, code)
	voter := idOf(t, user)

	code, card := do(t, srv, "POST", "/api/cards", "")
	require.Equal(t, http.StatusCreated, code)
	cardID := idOf(t, card)
	assert.Equal(t, "Card", card["type"])

	code, created := do(t, srv, "POST", "/api/values",
		`{"schema":"schema:localized-string","value":{"en":"Foo","fr":"Fou"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, created["warnings"])
	nameID := idOf(t, created["object"].(map[string]any))

	code, props := do(t, srv, "POST", "/api/properties",
		fmt.Sprintf(`{"object":%d,"key":"name","value":"%d","voter":%d}`, cardID, nameID, voter))
	require.Equal(t, http.StatusOK, code)
	edges := props["properties"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, float64(cardID), edges[0].(map[string]any)["objectId"])

	_, err := eng.Drain(ctx)
	require.NoError(t, err)

	code, view := do(t, srv, "GET", "/api/objects/"+strconv.FormatInt(cardID, 10), "")
	require.Equal(t, http.StatusOK, code)
	nameKey := strconv.FormatInt(srv.graph.Symbols.MustResolve(symbols.KeyName), 10)
	assert.Equal(t, float64(nameID), view["properties"].(map[string]any)[nameKey])

	code, found := do(t, srv, "GET", "/api/autocomplete?q=fo&lang=fr", "")
	require.Equal(t, http.StatusOK, code)
	results := found["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "Fou", results[0].(map[string]any)["text"])
}

func TestGetObjectBySymbol(t *testing.T) {
	srv, _ := testServer(t)

	code, view := do(t, srv, "GET", "/api/objects/name", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "name", view["symbol"])
	assert.Equal(t, "Value", view["type"])

	code, _ = do(t, srv, "GET", "/api/objects/987654", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, srv, "GET", "/api/objects/no-such-symbol", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestNewValueWarnings(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "POST", "/api/values",
		`{"schema":"schema:ids-array","value":["name","no-such-thing"]}`)
	require.Equal(t, http.StatusOK, code)
	warnings := body["warnings"].([]any)
	require.Len(t, warnings, 1)
	w := warnings[0].(map[string]any)
	assert.Equal(t, "/1", w["path"])
	assert.Equal(t, "UnknownReference", w["kind"])
	assert.NotNil(t, body["object"])

	code, body = do(t, srv, "POST", "/api/values", `{"schema":"schema:string","value":null}`)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["object"])

	code, _ = do(t, srv, "POST", "/api/values", `{"schema":"schema:string"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, "POST", "/api/values", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBallots(t *testing.T) {
	srv, _ := testServer(t)

	_, user := do(t, srv, "POST", "/api/users", "")
	voter := idOf(t, user)
	_, card := do(t, srv, "POST", "/api/cards", "")
	path := fmt.Sprintf("/api/statements/%d/ballots", idOf(t, card))

	code, body := do(t, srv, "POST", path, fmt.Sprintf(`{"voter":%d,"rating":1}`, voter))
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, body["old"])
	assert.Equal(t, float64(1), body["ratingCount"])
	assert.Equal(t, float64(1), body["rating"])

	code, body = do(t, srv, "POST", path, fmt.Sprintf(`{"voter":%d,"rating":1}`, voter))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, body["old"], body["ballot"], "same rating is a no-op")

	code, _ = do(t, srv, "POST", path, fmt.Sprintf(`{"voter":%d,"rating":5}`, voter))
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, srv, "POST", "/api/statements/987654/ballots", fmt.Sprintf(`{"voter":%d,"rating":1}`, voter))
	assert.Equal(t, http.StatusNotFound, code)

	code, body = do(t, srv, "DELETE", fmt.Sprintf("%s/%d", path, voter), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["old"].(map[string]any)["rating"])

	code, _ = do(t, srv, "DELETE", fmt.Sprintf("%s/%d", path, voter), "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGCEndpoint(t *testing.T) {
	srv, _ := testServer(t)
	ctx := context.Background()

	_, err := srv.db.CreateValue(ctx, srv.graph.Symbols.MustResolve(symbols.SchemaString), nil, "stray")
	require.NoError(t, err)

	code, report := do(t, srv, "POST", "/api/gc", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), report["orphanedValues"])
	assert.NotEmpty(t, report["run"])
}

func TestAutocompleteRequiresQuery(t *testing.T) {
	srv, _ := testServer(t)

	code, body := do(t, srv, "GET", "/api/autocomplete", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, body["error"])
}
