// Package binfetch ensures a platform-appropriate tunnel client binary is
// present locally, downloading and unpacking it on first use.
package binfetch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

const defaultDownloadBase = "https://github.com/cloudflare/cloudflared/releases/latest/download"

// Provisioner downloads the tunnel client binary into a directory and
// reuses it on subsequent calls.
type Provisioner struct {
	dir  string
	base string
	log  *slog.Logger
}

// New creates a Provisioner that stores the binary under dir.
func New(dir string, logger *slog.Logger) *Provisioner {
	return &Provisioner{dir: dir, base: defaultDownloadBase, log: logger}
}

// SetDownloadBase overrides the release download base URL.
func (p *Provisioner) SetDownloadBase(base string) {
	p.base = base
}

// BinaryPath returns where the tunnel client binary lives once provisioned.
func (p *Provisioner) BinaryPath() string {
	return filepath.Join(p.dir, binaryName(runtime.GOOS))
}

// EnsureBinary returns the path to the tunnel client binary, downloading it
// first if needed. When the binary already exists no network call is made.
// An unsupported OS/architecture pair is a hard error; the caller must not
// retry.
func (p *Provisioner) EnsureBinary(ctx context.Context) (string, error) {
	path := p.BinaryPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	a, err := assetForPlatform(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}

	p.log.Info("downloading tunnel client binary", "asset", a.name)
	data, err := p.download(ctx, p.base+"/"+a.name)
	if err != nil {
		return "", fmt.Errorf("download tunnel client: %w", err)
	}
	if a.archive {
		data, err = extractBinary(data, binaryName(runtime.GOOS))
		if err != nil {
			return "", fmt.Errorf("extract tunnel client: %w", err)
		}
	}

	if err := os.MkdirAll(p.dir, 0o700); err != nil {
		return "", err
	}
	// Write to a temp name first so a partial download never looks like a
	// usable binary.
	tmp := path + ".partial"
	if err := os.WriteFile(tmp, data, binaryMode(runtime.GOOS)); err != nil {
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	p.log.Info("tunnel client binary ready", "path", path)
	return path, nil
}

func binaryName(goos string) string {
	if goos == "windows" {
		return "cloudflared.exe"
	}
	return "cloudflared"
}

func binaryMode(goos string) os.FileMode {
	if goos == "windows" {
		return 0o644
	}
	return 0o755
}
