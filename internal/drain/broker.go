package drain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// Broker authentication headers sent on every request.
const (
	HeaderSubdomain     = "X-Eclosion-Subdomain"
	HeaderManagementKey = "X-Management-Key"
)

type brokerClient struct {
	baseURL string
	http    *http.Client
}

func newBrokerClient(baseURL string) *brokerClient {
	return &brokerClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (b *brokerClient) pending(ctx context.Context, subdomain, key string) ([]domain.QueuedAction, error) {
	var out struct {
		Actions []domain.QueuedAction `json:"actions"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/queue/pending", subdomain, key, nil, &out); err != nil {
		return nil, fmt.Errorf("poll pending actions: %w", err)
	}
	return out.Actions, nil
}

func (b *brokerClient) actionSecret(ctx context.Context, subdomain, key string) (string, error) {
	var out struct {
		Secret string `json:"secret"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/action-secret", subdomain, key, nil, &out); err != nil {
		return "", fmt.Errorf("fetch action secret: %w", err)
	}
	return out.Secret, nil
}

func (b *brokerClient) pushHistory(ctx context.Context, subdomain, key string, rec domain.ActionRecord) error {
	if err := b.do(ctx, http.MethodPost, "/api/action-history", subdomain, key, rec, nil); err != nil {
		return fmt.Errorf("push action history: %w", err)
	}
	return nil
}

func (b *brokerClient) ack(ctx context.Context, subdomain, key, id string) error {
	body := map[string]string{"id": id}
	if err := b.do(ctx, http.MethodPost, "/api/queue/ack", subdomain, key, body, nil); err != nil {
		return fmt.Errorf("ack action %s: %w", id, err)
	}
	return nil
}

func (b *brokerClient) do(ctx context.Context, method, path, subdomain, key string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderSubdomain, subdomain)
	req.Header.Set(HeaderManagementKey, key)

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &domain.APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && strings.TrimSpace(errResp.Error) != "" {
			apiErr.Message = errResp.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
