// Package client talks to a running argraph server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"
)

const httpTimeout = 5 * time.Second

// Client talks to the argraph HTTP API.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for the server at serverURL. The ARGRAPH_URL
// environment variable wins when set.
func New(serverURL string) *Client {
	if env := os.Getenv("ARGRAPH_URL"); env != "" {
		serverURL = env
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: serverURL,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}

// Completion is one autocomplete match.
type Completion struct {
	ValueID   int64    `json:"valueId"`
	Text      string   `json:"text"`
	Languages []string `json:"languages"`
}

// Autocomplete returns the values whose text in lang starts with prefix.
// An empty lang uses the server's default language.
func (c *Client) Autocomplete(ctx context.Context, lang, prefix string, limit int) ([]Completion, error) {
	q := url.Values{"q": {prefix}}
	if lang != "" {
		q.Set("lang", lang)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Results []Completion `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/autocomplete?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Rate casts voter's rating of statement and returns the statement's
// ballot-only rating as seen right after the vote.
func (c *Client) Rate(ctx context.Context, statement, voter string, rating int) (float64, error) {
	var resp struct {
		Rating float64 `json:"rating"`
	}
	path := "/api/statements/" + url.PathEscape(statement) + "/ballots"
	err := c.do(ctx, http.MethodPost, path, map[string]any{"voter": voter, "rating": rating}, &resp)
	return resp.Rating, err
}

// Object returns the JSON view of an object, by id or symbol.
func (c *Client) Object(ctx context.Context, ref string) (map[string]any, error) {
	var view map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/objects/"+url.PathEscape(ref), nil, &view); err != nil {
		return nil, err
	}
	return view, nil
}
