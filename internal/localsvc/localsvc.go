// Package localsvc is the thin client for the local HTTP service the tunnel
// exposes. All calls target http://127.0.0.1:<port> and authenticate with
// the shared action secret header.
package localsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SecretHeader carries the shared action secret on every local call.
const SecretHeader = "X-Action-Secret"

const refreshPath = "/ifttt/refresh-triggers"

// Client calls the local service by port.
type Client struct {
	http *http.Client
}

// New creates a local service client.
func New() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Health probes GET /health and returns an error when the service is not
// answering with a 2xx.
func (c *Client) Health(ctx context.Context, port int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("http://127.0.0.1:%d/health", port), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health returned %s", resp.Status)
	}
	return nil
}

// ExecuteAction posts a queued action's fields to a local route.
func (c *Client) ExecuteAction(ctx context.Context, port int, path, secret string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://127.0.0.1:%d%s", port, path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SecretHeader, secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("action returned %s: %s", resp.Status, bytes.TrimSpace(b))
	}
	return nil
}

// RefreshTriggers asks the local service to push fresh trigger state
// outward and returns the number of events pushed.
func (c *Client) RefreshTriggers(ctx context.Context, port int, secret string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("http://127.0.0.1:%d%s", port, refreshPath), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set(SecretHeader, secret)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("refresh returned %s", resp.Status)
	}
	var out struct {
		Pushed int `json:"pushed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Older service builds return an empty body; count is best-effort.
		return 0, nil
	}
	return out.Pushed, nil
}
