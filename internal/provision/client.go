// Package provision talks to the remote control-plane API that allocates
// subdomains, DNS, and routing for the tunnel.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

const maxErrorBody = 4096

// Client is a typed HTTP client for the control-plane API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// New creates a control-plane client for baseURL.
func New(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// do performs a JSON request against the control plane. Non-2xx responses
// become a [domain.APIError] carrying the server's `error` field when
// present, else a synthesized "HTTP <status>" message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func parseAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &domain.APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
	}
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &errResp) == nil && strings.TrimSpace(errResp.Error) != "" {
		apiErr.Message = errResp.Error
	}
	return apiErr
}
