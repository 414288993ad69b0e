// Package remote is the HTTP client for the inventory sync server.
//
// Endpoints:
//   - POST /sync     batch upload, returns canonical collections
//   - GET  /health   reachability probe
//   - POST /token    form login (used by package auth)
//   - POST /logout, GET /users/me
//
// Failures are reported as *TransportError (nothing structured came back)
// or *ServerError (non-2xx). A 401 additionally matches ErrAuthExpired.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stockmaster/stocksync/internal/schema"
)

// DefaultBaseURL is the hosted sync server.
const DefaultBaseURL = "https://inventry-mn6a.onrender.com"

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// Config holds configuration for the client.
type Config struct {
	// BaseURL is the server root, without a trailing slash.
	BaseURL string

	// Timeout bounds each request end to end. Zero means no timeout.
	Timeout time.Duration

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client

	// Logger for request activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: DefaultBaseURL,
		Timeout: 60 * time.Second,
		Logger:  log.New(os.Stderr, "[remote] ", log.LstdFlags),
	}
}

// Client talks to the sync server.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// New creates a Client. A nil config uses DefaultConfig.
func New(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(base, "/"),
		http:    hc,
		logger:  logger,
	}
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Response is a sync response body keyed by top-level field, so callers
// can tell an absent collection from an empty one.
type Response map[string]json.RawMessage

// Field returns the raw value of key. ok is false when the key is absent
// or explicitly null.
func (r Response) Field(key string) (json.RawMessage, bool) {
	v, ok := r[key]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// LastSyncTime returns the server's last_sync_time, if present and valid.
func (r Response) LastSyncTime() *time.Time {
	raw, ok := r.Field("last_sync_time")
	if !ok {
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil
	}
	return &t
}

// Sync uploads batch and returns the server's canonical state.
func (c *Client) Sync(ctx context.Context, token string, batch *schema.Batch) (Response, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sync batch: %w", err)
	}

	var resp Response
	if err := c.Do(ctx, http.MethodPost, "/sync", token, "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		resp = Response{}
	}
	return resp, nil
}

// Health probes the server. It returns nil only for a 2xx response.
func (c *Client) Health(ctx context.Context) error {
	endpoint := c.baseURL + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: http.MethodGet, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Status: resp.StatusCode}
	}
	return nil
}

// PostForm submits form-encoded values and decodes the JSON reply into out.
func (c *Client) PostForm(ctx context.Context, path string, values url.Values, out any) error {
	return c.Do(ctx, http.MethodPost, path, "", "application/x-www-form-urlencoded",
		strings.NewReader(values.Encode()), out)
}

// Do performs one request. token, when set, is sent as a bearer credential.
// A 2xx body is decoded into out unless out is nil.
func (c *Client) Do(ctx context.Context, method, path, token, contentType string, body io.Reader, out any) error {
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Printf("%s %s [%s] failed: %v", method, path, requestID, err)
		return &TransportError{Op: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	c.logger.Printf("%s %s [%s] %d in %v", method, path, requestID, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ServerError{Status: resp.StatusCode, Detail: parseDetail(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &TransportError{Op: method, URL: endpoint, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
