package secrets

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
	"github.com/312-dev/eclosion-tunnel/internal/store/sqlite"
)

// Store is the secret store adapter: typed getters and setters for tunnel
// credentials, the management key, and the action secret, layered over the
// sealer and the kv database. Encrypted blobs are persisted base64-encoded.
type Store struct {
	db     *sqlite.Store
	sealer Sealer
	log    *slog.Logger
}

// NewStore creates a secret store over db and sealer.
func NewStore(db *sqlite.Store, sealer Sealer, logger *slog.Logger) *Store {
	return &Store{db: db, sealer: sealer, log: logger}
}

// Available reports whether the encryption capability can be used.
func (s *Store) Available() bool {
	return s.sealer.Available()
}

// DB exposes the underlying state database for plain config access.
func (s *Store) DB() *sqlite.Store {
	return s.db
}

// StoreCredentials seals and persists the tunnel credentials.
func (s *Store) StoreCredentials(ctx context.Context, creds domain.TunnelCredentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.storeBlob(ctx, sqlite.KeyEncryptedCredentials, raw)
}

// Credentials returns the decrypted tunnel credentials, or nil when they are
// absent or cannot be decrypted. A corrupted blob is logged and treated as
// absent so callers re-provision instead of crashing.
func (s *Store) Credentials(ctx context.Context) (*domain.TunnelCredentials, error) {
	raw, err := s.openBlob(ctx, sqlite.KeyEncryptedCredentials)
	if err != nil || raw == nil {
		return nil, err
	}
	var creds domain.TunnelCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		s.log.Warn("stored tunnel credentials are malformed; treating as absent", "err", err)
		return nil, nil
	}
	return &creds, nil
}

// StoreManagementKey seals and persists the management key.
func (s *Store) StoreManagementKey(ctx context.Context, key string) error {
	return s.storeBlob(ctx, sqlite.KeyEncryptedManagementKey, []byte(key))
}

// ManagementKey returns the decrypted management key, or "" when absent.
func (s *Store) ManagementKey(ctx context.Context) (string, error) {
	raw, err := s.openBlob(ctx, sqlite.KeyEncryptedManagementKey)
	if err != nil || raw == nil {
		return "", err
	}
	return string(raw), nil
}

// StoreActionSecret seals and persists the broker action secret.
func (s *Store) StoreActionSecret(ctx context.Context, secret string) error {
	return s.storeBlob(ctx, sqlite.KeyEncryptedActionSecret, []byte(secret))
}

// ActionSecret returns the decrypted action secret, or "" when absent.
func (s *Store) ActionSecret(ctx context.Context) (string, error) {
	raw, err := s.openBlob(ctx, sqlite.KeyEncryptedActionSecret)
	if err != nil || raw == nil {
		return "", err
	}
	return string(raw), nil
}

// SaveClaim persists everything a successful claim returns in a single
// transaction: sealed credentials, sealed management key, and the tunnel
// configuration keys. Either all of it lands or none of it does.
func (s *Store) SaveClaim(ctx context.Context, subdomain, tunnelID string, creds domain.TunnelCredentials, managementKey string, createdAt time.Time) error {
	if !s.sealer.Available() {
		return domain.ErrSealerUnavailable
	}
	rawCreds, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	credsBlob, err := s.sealer.Seal(rawCreds)
	if err != nil {
		return fmt.Errorf("seal credentials: %w", err)
	}
	keyBlob, err := s.sealer.Seal([]byte(managementKey))
	if err != nil {
		return fmt.Errorf("seal management key: %w", err)
	}
	return s.db.SetMany(ctx, map[string]string{
		sqlite.KeySubdomain:              subdomain,
		sqlite.KeyTunnelID:               tunnelID,
		sqlite.KeyEnabled:                "false",
		sqlite.KeyCreatedAt:              createdAt.UTC().Format(time.RFC3339),
		sqlite.KeyEncryptedCredentials:   base64.StdEncoding.EncodeToString(credsBlob),
		sqlite.KeyEncryptedManagementKey: base64.StdEncoding.EncodeToString(keyBlob),
	})
}

func (s *Store) storeBlob(ctx context.Context, key string, plaintext []byte) error {
	if !s.sealer.Available() {
		return domain.ErrSealerUnavailable
	}
	blob, err := s.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.db.Set(ctx, key, base64.StdEncoding.EncodeToString(blob))
}

// openBlob returns nil with no error when the blob is absent, undecodable,
// or fails authentication; decrypt failures must not be fatal.
func (s *Store) openBlob(ctx context.Context, key string) ([]byte, error) {
	encoded, err := s.db.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if encoded == "" {
		return nil, nil
	}
	if !s.sealer.Available() {
		return nil, nil
	}
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		s.log.Warn("stored blob is not valid base64; treating as absent", "key", key, "err", err)
		return nil, nil
	}
	plaintext, err := s.sealer.Open(blob)
	if err != nil {
		s.log.Warn("stored blob failed to decrypt; treating as absent", "key", key, "err", err)
		return nil, nil
	}
	return plaintext, nil
}
