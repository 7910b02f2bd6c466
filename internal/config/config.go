// Package config parses flags and environment variables into the tunnel
// manager configuration.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the tunnel lifecycle manager needs: the two
// remote API endpoints, the local service port, and the data directory that
// holds the state database, the tunnel client binary, and session files.
type Config struct {
	ControlPlaneURL string
	BrokerURL       string
	PublicDomain    string
	DataDir         string
	LocalPort       int
	OTPEmail        string
	ControlAddr     string
	LogLevel        string
	ConfirmTimeout  time.Duration
	RefreshInterval time.Duration
}

const defaultControlPlaneURL = "https://provision.eclosion.app"
const defaultBrokerURL = "https://broker.eclosion.app"
const defaultPublicDomain = "eclosion.app"
const defaultControlAddr = "127.0.0.1:48741"
const defaultConfirmTimeout = 60 * time.Second
const defaultRefreshInterval = 15 * time.Minute

// ParseFlags builds a Config from args with ECLOSION_* environment
// variables as defaults.
func ParseFlags(name string, args []string) (Config, error) {
	cfg := Config{
		ControlPlaneURL: envOrDefault("ECLOSION_CONTROL_PLANE_URL", defaultControlPlaneURL),
		BrokerURL:       envOrDefault("ECLOSION_BROKER_URL", defaultBrokerURL),
		PublicDomain:    envOrDefault("ECLOSION_PUBLIC_DOMAIN", defaultPublicDomain),
		DataDir:         envOrDefault("ECLOSION_DATA_DIR", defaultDataDir()),
		LocalPort:       envIntOrDefault("ECLOSION_LOCAL_PORT", 0),
		OTPEmail:        envOrDefault("ECLOSION_OTP_EMAIL", ""),
		ControlAddr:     envOrDefault("ECLOSION_CONTROL_ADDR", defaultControlAddr),
		LogLevel:        envOrDefault("ECLOSION_LOG_LEVEL", "info"),
		ConfirmTimeout:  defaultConfirmTimeout,
		RefreshInterval: defaultRefreshInterval,
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.ControlPlaneURL, "control-plane", cfg.ControlPlaneURL, "Control plane API base URL")
	fs.StringVar(&cfg.BrokerURL, "broker", cfg.BrokerURL, "Action broker API base URL")
	fs.StringVar(&cfg.PublicDomain, "public-domain", cfg.PublicDomain, "Public base domain claimed subdomains live under")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Directory for state db, tunnel binary and session files")
	fs.IntVar(&cfg.LocalPort, "port", cfg.LocalPort, "Local service port on 127.0.0.1")
	fs.StringVar(&cfg.OTPEmail, "otp-email", cfg.OTPEmail, "Email registered for out-of-band OTP delivery (optional)")
	fs.StringVar(&cfg.ControlAddr, "control-addr", cfg.ControlAddr, "Loopback address for the local control API")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	var err error
	cfg.ControlPlaneURL, err = NormalizeBaseURL(cfg.ControlPlaneURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid control plane URL: %w", err)
	}
	cfg.BrokerURL, err = NormalizeBaseURL(cfg.BrokerURL)
	if err != nil {
		return cfg, fmt.Errorf("invalid broker URL: %w", err)
	}
	if cfg.LocalPort != 0 && (cfg.LocalPort < 0 || cfg.LocalPort > 65535) {
		return cfg, errors.New("local port must be between 1 and 65535")
	}
	if !strings.HasPrefix(cfg.ControlAddr, "127.0.0.1:") && !strings.HasPrefix(cfg.ControlAddr, "localhost:") {
		return cfg, errors.New("control API must bind to loopback")
	}

	return cfg, nil
}

// NormalizeBaseURL trims, defaults the scheme to https, and strips any
// trailing slash. Plain http is allowed only for loopback hosts so tests and
// local brokers work without TLS.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("missing URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("URL must include host")
	}
	switch u.Scheme {
	case "https":
	case "http":
		host := u.Hostname()
		if host != "127.0.0.1" && host != "localhost" && host != "::1" {
			return "", errors.New("http is only allowed for loopback hosts")
		}
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), nil
}

func defaultDataDir() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, ".eclosion-tunnel")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
