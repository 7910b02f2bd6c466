package sqlite

import (
	"context"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// Persisted key names. These are the serialization boundary between the
// typed [domain.TunnelConfig] and the kv table.
const (
	KeySubdomain = "tunnel.subdomain"
	KeyTunnelID  = "tunnel.tunnelId"
	KeyEnabled   = "tunnel.enabled"
	KeyCreatedAt = "tunnel.createdAt"

	KeyEncryptedCredentials   = "tunnel.encryptedCredentials"
	KeyEncryptedManagementKey = "tunnel.encryptedManagementKey"
	KeyEncryptedActionSecret  = "tunnel.encryptedIftttActionSecret"
)

// TunnelConfig loads the persisted tunnel configuration. Absent keys yield
// the zero value, never an error.
func (s *Store) TunnelConfig(ctx context.Context) (domain.TunnelConfig, error) {
	var cfg domain.TunnelConfig
	var err error
	if cfg.Subdomain, err = s.Get(ctx, KeySubdomain); err != nil {
		return cfg, err
	}
	if cfg.TunnelID, err = s.Get(ctx, KeyTunnelID); err != nil {
		return cfg, err
	}
	enabled, err := s.Get(ctx, KeyEnabled)
	if err != nil {
		return cfg, err
	}
	cfg.Enabled = enabled == "true"
	createdAt, err := s.Get(ctx, KeyCreatedAt)
	if err != nil {
		return cfg, err
	}
	if createdAt != "" {
		if ts, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
			cfg.CreatedAt = &ts
		}
	}
	return cfg, nil
}

// SetEnabled persists the auto-start flag.
func (s *Store) SetEnabled(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.Set(ctx, KeyEnabled, v)
}

// ClearTunnelState removes every tunnel key, configuration and encrypted
// blobs alike. Used by unclaim so the user is never left with a half-cleared
// local state.
func (s *Store) ClearTunnelState(ctx context.Context) error {
	return s.Delete(ctx,
		KeySubdomain, KeyTunnelID, KeyEnabled, KeyCreatedAt,
		KeyEncryptedCredentials, KeyEncryptedManagementKey, KeyEncryptedActionSecret,
	)
}
