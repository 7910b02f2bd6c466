package supervisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// writeCredentialsFile materializes the decrypted credentials into the
// single-use file the tunnel client reads. Written once per session with
// restrictive permissions; every exit path must delete it.
func (s *Supervisor) writeCredentialsFile(creds domain.TunnelCredentials) (string, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.cfg.DataDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(s.cfg.DataDir, fmt.Sprintf("tunnel-creds-%d.json", os.Getpid()))
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Supervisor) removeCredentialsFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("credentials file removal failed", "path", path, "err", err)
	}
}
