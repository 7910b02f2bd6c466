// Package secrets wraps the machine-bound encryption capability and exposes
// typed accessors for the tunnel's encrypted credentials, management key,
// and action secret.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// Sealer encrypts and decrypts small secrets at rest. Implementations must
// never fall back to plaintext; when the capability is unavailable, store
// operations fail instead.
type Sealer interface {
	Available() bool
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

const saltSize = 16

// scrypt cost parameters; interactive-grade since the input already has
// machine-secret entropy.
const scryptN = 1 << 15
const scryptR = 8
const scryptP = 1

// MachineSealer seals secrets with XChaCha20-Poly1305 under a key derived
// from a machine-bound secret via scrypt. Each blob carries its own salt and
// nonce, so the derived key differs per blob.
type MachineSealer struct {
	secret []byte
}

// NewMachineSealer resolves the machine secret and returns a sealer. When no
// OS machine id is available it falls back to a random per-install secret
// file under dataDir. A sealer with no resolvable secret is still returned;
// it reports Available() == false.
func NewMachineSealer(dataDir string) *MachineSealer {
	if v := strings.TrimSpace(os.Getenv("ECLOSION_MACHINE_SECRET")); v != "" {
		return &MachineSealer{secret: []byte(v)}
	}
	if id := readMachineID(); id != "" {
		return &MachineSealer{secret: []byte("eclosion-sealer:" + id)}
	}
	if secret := ensureInstallSecret(dataDir); len(secret) > 0 {
		return &MachineSealer{secret: secret}
	}
	return &MachineSealer{}
}

// Available reports whether a machine secret could be resolved.
func (m *MachineSealer) Available() bool {
	return len(m.secret) > 0
}

// Seal encrypts plaintext. Blob layout: salt || nonce || ciphertext.
func (m *MachineSealer) Seal(plaintext []byte) ([]byte, error) {
	if !m.Available() {
		return nil, errors.New("no machine secret resolved")
	}
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := m.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	blob := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	return aead.Seal(blob, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal. Corrupted or foreign blobs return
// an error; callers treat that as "absent" and re-provision.
func (m *MachineSealer) Open(blob []byte) ([]byte, error) {
	if !m.Available() {
		return nil, errors.New("no machine secret resolved")
	}
	if len(blob) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	salt := blob[:saltSize]
	aead, err := m.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := blob[saltSize : saltSize+aead.NonceSize()]
	ct := blob[saltSize+aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("open sealed blob: %w", err)
	}
	return plaintext, nil
}

func (m *MachineSealer) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(m.secret, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

func readMachineID() string {
	for _, p := range []string{
		"/etc/machine-id",
		"/var/lib/dbus/machine-id",
	} {
		if b, err := os.ReadFile(p); err == nil {
			if v := strings.TrimSpace(string(b)); v != "" {
				return v
			}
		}
	}
	return ""
}

func ensureInstallSecret(dataDir string) []byte {
	if strings.TrimSpace(dataDir) == "" {
		return nil
	}
	path := filepath.Join(dataDir, "sealer.key")
	if b, err := os.ReadFile(path); err == nil && len(b) >= 32 {
		return b
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil
	}
	if err := os.WriteFile(path, secret, 0o600); err != nil {
		return nil
	}
	return secret
}
