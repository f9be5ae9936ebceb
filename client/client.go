// Package client is the Go client for the bead graph server: snapshot
// queries plus per-node write operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mistakeknot/beadscope/internal/graph"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
	APIKey  string
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.APIKey = strings.TrimSpace(key)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.HTTP = httpClient
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot retrieves the full node/edge/stats view.
func (c *Client) Snapshot(ctx context.Context) (graph.Snapshot, error) {
	resp, err := c.get(ctx, "/api/graph")
	if err != nil {
		return graph.Snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return graph.Snapshot{}, fmt.Errorf("snapshot failed: %d", resp.StatusCode)
	}
	var out graph.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return graph.Snapshot{}, err
	}
	return out, nil
}

// UpdateIssue sets one field on one issue.
func (c *Client) UpdateIssue(ctx context.Context, id, field, value string) error {
	path := "/api/issues/" + url.PathEscape(id)
	resp, err := c.patchJSON(ctx, path, map[string]string{field: value})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update %s failed: %d", field, resp.StatusCode)
	}
	return nil
}

// CloseIssue closes one issue.
func (c *Client) CloseIssue(ctx context.Context, id string) error {
	resp, err := c.postJSON(ctx, "/api/issues/"+url.PathEscape(id)+"/close", map[string]string{})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("close failed: %d", resp.StatusCode)
	}
	return nil
}

// ClaimIssue assigns one issue to an agent or user identity.
func (c *Client) ClaimIssue(ctx context.Context, id, assignee string) error {
	return c.UpdateIssue(ctx, id, "assignee", assignee)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPost, path, payload)
}

func (c *Client) patchJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	return c.sendJSON(ctx, http.MethodPatch, path, payload)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	c.applyHeaders(req)
	return c.HTTP.Do(req)
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
}
