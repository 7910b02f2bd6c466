package provision

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Availability is the best-effort answer to "can this subdomain be claimed".
// A transport failure is reported as not available with the error surfaced
// in Err, never as a Go error.
type Availability struct {
	Available bool   `json:"available"`
	Err       string `json:"error,omitempty"`
}

// ClaimResult carries everything the control plane issues at claim time.
// The tunnel secret is transmitted exactly once; the caller must persist it
// before reporting success.
type ClaimResult struct {
	Subdomain     string `json:"subdomain"`
	TunnelID      string `json:"tunnelId"`
	AccountTag    string `json:"accountTag"`
	TunnelSecret  string `json:"tunnelSecret"`
	ManagementKey string `json:"managementKey"`
}

// Check asks whether subdomain is free to claim.
func (c *Client) Check(ctx context.Context, subdomain string) Availability {
	var out Availability
	err := c.do(ctx, http.MethodGet, "/api/check/"+url.PathEscape(subdomain), nil, &out)
	if err != nil {
		c.log.Warn("availability check failed", "subdomain", subdomain, "err", err)
		return Availability{Available: false, Err: err.Error()}
	}
	return out
}

// Claim allocates subdomain and returns the one-time credential set.
func (c *Client) Claim(ctx context.Context, subdomain string) (ClaimResult, error) {
	var out ClaimResult
	err := c.do(ctx, http.MethodPost, "/api/claim", map[string]string{
		"subdomain": subdomain,
	}, &out)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim %q: %w", subdomain, err)
	}
	return out, nil
}

// UpdateIngress points the remote route at the current local port. It must
// complete before the tunnel client process is spawned.
func (c *Client) UpdateIngress(ctx context.Context, subdomain, managementKey string, port int) error {
	err := c.do(ctx, http.MethodPost, "/api/tunnel/update-ingress", map[string]any{
		"subdomain":     subdomain,
		"managementKey": managementKey,
		"port":          port,
	}, nil)
	if err != nil {
		return fmt.Errorf("update ingress for %q: %w", subdomain, err)
	}
	return nil
}

// Unclaim deletes the remote tunnel, DNS, and routing for subdomain.
func (c *Client) Unclaim(ctx context.Context, subdomain, managementKey string) error {
	err := c.do(ctx, http.MethodPost, "/api/unclaim", map[string]string{
		"subdomain":     subdomain,
		"managementKey": managementKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("unclaim %q: %w", subdomain, err)
	}
	return nil
}

// RegisterOTP registers email as the out-of-band one-time-passcode contact
// for subdomain.
func (c *Client) RegisterOTP(ctx context.Context, subdomain, managementKey, email string) error {
	err := c.do(ctx, http.MethodPost, "/api/otp/register", map[string]string{
		"subdomain":     subdomain,
		"managementKey": managementKey,
		"email":         email,
	}, nil)
	if err != nil {
		return fmt.Errorf("register otp for %q: %w", subdomain, err)
	}
	return nil
}

// DeregisterOTP removes the OTP contact for subdomain.
func (c *Client) DeregisterOTP(ctx context.Context, subdomain, managementKey string) error {
	err := c.do(ctx, http.MethodPost, "/api/otp/deregister", map[string]string{
		"subdomain":     subdomain,
		"managementKey": managementKey,
	}, nil)
	if err != nil {
		return fmt.Errorf("deregister otp for %q: %w", subdomain, err)
	}
	return nil
}
