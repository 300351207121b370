// Package client implements the retry-wrapped HTTP transport and the typed
// endpoint calls consumed by the sync engines. Retries apply to transport
// failures only; HTTP error statuses are returned to the caller untouched.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/0x0BSoD/feedSync/internal/model"
)

// ErrOffline is returned without any network attempt when the device is
// known to be offline.
var ErrOffline = errors.New("device is offline")

// ErrNotModified signals that the server has no state changes since the
// supplied cursor.
var ErrNotModified = errors.New("user state not modified")

// StatusError carries a non-2xx HTTP response status. It is never retried.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %s", e.Status)
}

type Client struct {
	baseURL        string
	httpClient     *http.Client
	maxRetries     int
	initialBackoff time.Duration
	offline        func() bool
}

// New creates a Client for the server at baseURL. offline reports whether
// the device is currently known to be offline; nil means always online.
func New(baseURL string, timeout time.Duration, maxRetries int, initialBackoff time.Duration, offline func() bool) *Client {
	return &Client{
		baseURL:        baseURL,
		httpClient:     &http.Client{Timeout: timeout},
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
		offline:        offline,
	}
}

// Offline reports whether the injected connectivity probe considers the
// device offline.
func (c *Client) Offline() bool {
	return c.offline != nil && c.offline()
}

// do issues the request, retrying transport-level failures with doubling
// backoff. The request body is rebuilt from the marshalled payload on every
// attempt. A response with an HTTP error status is a success at this layer.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, payload any) (*http.Response, error) {
	if c.Offline() {
		return nil, ErrOffline
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoff *= 2
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

// doJSON performs the request and decodes a 2xx response body into dest.
func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, payload, dest any) error {
	resp, err := c.do(ctx, method, path, headers, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return ErrNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	if dest == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ServerTime fetches the authoritative server clock used for staleness math.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	var out struct {
		Time string `json:"time"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/time", nil, nil, &out); err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, out.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse server time %q: %w", out.Time, err)
	}
	return t, nil
}

// GUIDs fetches the full current set of item ids known to the server.
func (c *Client) GUIDs(ctx context.Context) ([]string, error) {
	var guids []string
	if err := c.doJSON(ctx, http.MethodGet, "/guids", nil, nil, &guids); err != nil {
		return nil, err
	}
	return guids, nil
}

// ItemsByGUID fetches full item content for the given ids. The caller is
// responsible for keeping batches at or below the server's batch convention.
func (c *Client) ItemsByGUID(ctx context.Context, guids []string) (map[string]model.Item, error) {
	payload := map[string][]string{"guids": guids}
	items := make(map[string]model.Item)
	if err := c.doJSON(ctx, http.MethodPost, "/items", nil, payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// StateChanges is the server's response to an incremental state pull.
type StateChanges struct {
	Changes    map[string]json.RawMessage `json:"changes"`
	ServerTime string                     `json:"serverTime"`
}

// PullState requests user-state changes since cursor. An empty cursor asks
// for the full state. Returns ErrNotModified on a 304.
func (c *Client) PullState(ctx context.Context, cursor string) (*StateChanges, error) {
	headers := map[string]string{}
	if cursor != "" {
		headers["If-None-Match"] = cursor
	}
	path := "/user-state?since=" + url.QueryEscape(cursor)
	var out StateChanges
	if err := c.doJSON(ctx, http.MethodGet, path, headers, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PushState uploads the buffered key/value changes and returns the server
// time to advance the cursor to.
func (c *Client) PushState(ctx context.Context, changes map[string]json.RawMessage) (string, error) {
	payload := map[string]any{"changes": changes}
	var out struct {
		ServerTime string `json:"serverTime"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/user-state", nil, payload, &out); err != nil {
		return "", err
	}
	return out.ServerTime, nil
}

// HiddenDelta propagates a single hidden-marker toggle.
func (c *Client) HiddenDelta(ctx context.Context, d model.Delta) error {
	payload := map[string]any{"id": d.ID, "action": d.Action, "hiddenAt": d.Timestamp}
	return c.doJSON(ctx, http.MethodPost, "/user-state/hidden/delta", nil, payload, nil)
}

// StarredDelta propagates a single starred-marker toggle.
func (c *Client) StarredDelta(ctx context.Context, d model.Delta) error {
	payload := map[string]any{"id": d.ID, "action": d.Action, "starredAt": d.Timestamp}
	return c.doJSON(ctx, http.MethodPost, "/user-state/starred/delta", nil, payload, nil)
}

// LoadConfigFile reads an auxiliary text configuration file (feed list,
// keyword filters) from the server. Contents are opaque to the engine.
func (c *Client) LoadConfigFile(ctx context.Context, filename string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	path := "/load-config?filename=" + url.QueryEscape(filename)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// SaveConfigFile writes an auxiliary text configuration file back to the
// server.
func (c *Client) SaveConfigFile(ctx context.Context, filename, content string) error {
	payload := map[string]string{"content": content}
	path := "/save-config?filename=" + url.QueryEscape(filename)
	return c.doJSON(ctx, http.MethodPost, path, nil, payload, nil)
}
