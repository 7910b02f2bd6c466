// Package domain holds the shared data model and error taxonomy of the
// tunnel lifecycle manager.
package domain

import "time"

// TunnelCredentials is the secret material issued exactly once by the
// control plane at claim time. The JSON field names match the credentials
// file format consumed by the tunnel client binary.
type TunnelCredentials struct {
	AccountTag   string `json:"AccountTag"`
	TunnelID     string `json:"TunnelID"`
	TunnelSecret string `json:"TunnelSecret"`
}

// TunnelConfig is the persisted, unencrypted tunnel configuration.
// Enabled reflects "should auto-start", never "is currently running".
type TunnelConfig struct {
	Subdomain string     `json:"subdomain"`
	TunnelID  string     `json:"tunnel_id"`
	Enabled   bool       `json:"enabled"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Configured reports whether a subdomain has been claimed.
func (c TunnelConfig) Configured() bool {
	return c.Subdomain != "" && c.TunnelID != ""
}

// QueuedAction is a remote action the broker buffered while the tunnel was
// offline. Fields is an opaque payload owned by the local service.
type QueuedAction struct {
	ID         string         `json:"id"`
	ActionSlug string         `json:"action_slug"`
	Fields     map[string]any `json:"fields"`
	QueuedAt   string         `json:"queued_at"`
}

// ActionOutcome records how a single queued action fared locally.
type ActionOutcome struct {
	ID      string `json:"id"`
	Slug    string `json:"action_slug"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DrainResult aggregates one drain cycle for UI display.
type DrainResult struct {
	Processed int             `json:"processed"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Actions   []ActionOutcome `json:"actions"`
}

// ActionRecord is the audit-trail entry persisted for every executed
// queued action, successful or not.
type ActionRecord struct {
	ID         string         `json:"id"`
	ActionSlug string         `json:"action_slug"`
	Fields     map[string]any `json:"fields"`
	QueuedAt   string         `json:"queued_at,omitempty"`
	ExecutedAt time.Time      `json:"executed_at"`
	Success    bool           `json:"success"`
	Error      string         `json:"error,omitempty"`
}

// StatusSnapshot is the single status-changed event payload. It is computed
// fresh from current state at emission time; consumers must treat it as a
// snapshot, not a diff.
type StatusSnapshot struct {
	Active     bool   `json:"active"`
	URL        string `json:"url,omitempty"`
	Enabled    bool   `json:"enabled"`
	Subdomain  string `json:"subdomain,omitempty"`
	Configured bool   `json:"configured"`
}
