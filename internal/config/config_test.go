package config

import (
	"strings"
	"testing"
)

func TestNormalizeBaseURL(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"provision.eclosion.app":          "https://provision.eclosion.app",
		"https://provision.eclosion.app/": "https://provision.eclosion.app",
		"http://127.0.0.1:9090":           "http://127.0.0.1:9090",
		"http://localhost:8080/base/":     "http://localhost:8080/base",
	}

	for in, want := range tests {
		got, err := NormalizeBaseURL(in)
		if err != nil {
			t.Fatalf("NormalizeBaseURL(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("NormalizeBaseURL(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeBaseURLRejectsNonLoopbackHTTP(t *testing.T) {
	t.Parallel()

	if _, err := NormalizeBaseURL("http://example.com"); err == nil {
		t.Fatal("expected error for non-loopback http URL")
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	t.Setenv("ECLOSION_CONTROL_PLANE_URL", "")
	t.Setenv("ECLOSION_BROKER_URL", "")
	t.Setenv("ECLOSION_CONTROL_ADDR", "")

	cfg, err := ParseFlags("test", nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ControlPlaneURL != defaultControlPlaneURL {
		t.Fatalf("unexpected control plane URL: %s", cfg.ControlPlaneURL)
	}
	if cfg.ConfirmTimeout != defaultConfirmTimeout {
		t.Fatalf("unexpected confirm timeout: %s", cfg.ConfirmTimeout)
	}
	if !strings.HasPrefix(cfg.ControlAddr, "127.0.0.1:") {
		t.Fatalf("control addr should default to loopback, got %s", cfg.ControlAddr)
	}
}

func TestParseFlagsRejectsNonLoopbackControlAddr(t *testing.T) {
	t.Setenv("ECLOSION_CONTROL_ADDR", "")

	if _, err := ParseFlags("test", []string{"--control-addr", "0.0.0.0:48741"}); err == nil {
		t.Fatal("expected error for non-loopback control addr")
	}
}

func TestParseFlagsPortValidation(t *testing.T) {
	t.Setenv("ECLOSION_LOCAL_PORT", "")

	if _, err := ParseFlags("test", []string{"--port", "70000"}); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}
