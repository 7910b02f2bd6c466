// Package otp registers and deregisters the out-of-band one-time-passcode
// contact with the control plane so remote visitors can authenticate.
// Everything here is best-effort: the tunnel works without OTP, so failures
// are logged and never surfaced to the start/stop paths.
package otp

import (
	"context"
	"log/slog"
	"strings"

	"github.com/312-dev/eclosion-tunnel/internal/provision"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
)

// Agent wires the control-plane OTP endpoints to the stored management key
// and the configured contact email.
type Agent struct {
	prov  *provision.Client
	store *secrets.Store
	email string
	log   *slog.Logger
}

// New creates an OTP agent. email may be empty; registration is then
// skipped entirely.
func New(prov *provision.Client, store *secrets.Store, email string, logger *slog.Logger) *Agent {
	return &Agent{prov: prov, store: store, email: strings.TrimSpace(email), log: logger}
}

// Register registers the OTP contact for subdomain. Missing management key
// or email is a silent skip, not an error.
func (a *Agent) Register(ctx context.Context, subdomain string) {
	if a.email == "" {
		a.log.Debug("no otp email configured; skipping registration")
		return
	}
	key, err := a.store.ManagementKey(ctx)
	if err != nil {
		a.log.Warn("otp registration skipped: management key lookup failed", "err", err)
		return
	}
	if key == "" {
		a.log.Debug("no management key; skipping otp registration")
		return
	}
	if err := a.prov.RegisterOTP(ctx, subdomain, key, a.email); err != nil {
		a.log.Warn("otp registration failed", "subdomain", subdomain, "err", err)
		return
	}
	a.log.Info("otp contact registered", "subdomain", subdomain)
}

// Deregister removes the OTP contact for subdomain. Callers run this in a
// background goroutine so it never delays tunnel shutdown.
func (a *Agent) Deregister(ctx context.Context, subdomain string) {
	key, err := a.store.ManagementKey(ctx)
	if err != nil || key == "" {
		a.log.Debug("no management key; skipping otp deregistration")
		return
	}
	if err := a.prov.DeregisterOTP(ctx, subdomain, key); err != nil {
		a.log.Warn("otp deregistration failed", "subdomain", subdomain, "err", err)
		return
	}
	a.log.Info("otp contact deregistered", "subdomain", subdomain)
}
