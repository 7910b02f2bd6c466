package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// Start brings the tunnel up for the local service on port and returns the
// public URL. Calling Start while connected returns the existing URL
// without spawning a second process; calling it during a start or stop in
// flight fails with [domain.ErrStartInProgress].
func (s *Supervisor) Start(ctx context.Context, port int) (string, error) {
	s.mu.Lock()
	switch s.state {
	case stateConnected:
		url := s.active.URL
		s.mu.Unlock()
		s.log.Debug("start ignored: tunnel already connected", "url", url)
		return url, nil
	case stateStarting, stateStopping:
		s.mu.Unlock()
		return "", domain.ErrStartInProgress
	}
	s.state = stateStarting
	s.mu.Unlock()

	url, err := s.establish(ctx, port)
	if err != nil {
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		return "", err
	}
	return url, nil
}

func (s *Supervisor) establish(ctx context.Context, port int) (string, error) {
	cfg, err := s.store.DB().TunnelConfig(ctx)
	if err != nil {
		return "", err
	}
	if !cfg.Configured() {
		return "", &domain.OpError{Op: "start", Err: domain.ErrNotClaimed}
	}
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", &domain.OpError{Op: "start", Err: domain.ErrCredentialsMissing}
	}
	if err := s.local.Health(ctx, port); err != nil {
		return "", fmt.Errorf("%w on port %d: %v", domain.ErrLocalServiceDown, port, err)
	}

	binPath, err := s.bin.EnsureBinary(ctx)
	if err != nil {
		return "", err
	}

	// The remote route must point at the current port before the process
	// spawns, so no connection ever arrives at a stale port.
	key, err := s.store.ManagementKey(ctx)
	if err != nil {
		s.log.Warn("management key lookup failed", "err", err)
	}
	if key == "" {
		s.log.Warn("no management key; skipping ingress update", "subdomain", cfg.Subdomain)
	} else if err := s.prov.UpdateIngress(ctx, cfg.Subdomain, key, port); err != nil {
		return "", err
	}

	credsPath, err := s.writeCredentialsFile(*creds)
	if err != nil {
		return "", fmt.Errorf("write credentials file: %w", err)
	}

	proc, err := spawnTunnel(binPath, credsPath, cfg.TunnelID, s.log)
	if err != nil {
		s.removeCredentialsFile(credsPath)
		return "", err
	}

	if err := s.awaitConfirmation(ctx, proc); err != nil {
		s.removeCredentialsFile(credsPath)
		return "", err
	}

	url := s.publicURL(cfg.Subdomain)
	s.mu.Lock()
	s.active = &ActiveTunnel{URL: url, Port: port, credsPath: credsPath, proc: proc}
	s.state = stateConnected
	s.mu.Unlock()
	s.log.Info("tunnel connected", "url", url, "port", port)

	if err := s.store.DB().SetEnabled(ctx, true); err != nil {
		s.log.Warn("enabled flag persist failed", "err", err)
	}
	s.publishStatus(ctx)

	// Post-connect agents run in the background with a context independent
	// of the caller's; their failures are logged, never surfaced here.
	bg := context.WithoutCancel(ctx)
	go s.otp.Register(bg, cfg.Subdomain)
	if s.drain != nil {
		go s.drain.Drain(bg)
	}
	s.fresh.Start(bg, port)
	go s.watchExit(proc)

	return url, nil
}

// awaitConfirmation races the confirmation marker against process exit and
// the configured timeout. On timeout the process is killed.
func (s *Supervisor) awaitConfirmation(ctx context.Context, proc *tunnelProcess) error {
	select {
	case <-proc.confirmed:
		return nil
	case <-proc.exited:
		return proc.exitError()
	case <-time.After(s.confirmTimeout):
		if err := proc.kill(); err != nil {
			s.log.Warn("kill after confirmation timeout failed", "err", err)
		}
		return domain.ErrConfirmTimeout
	case <-ctx.Done():
		if err := proc.kill(); err != nil {
			s.log.Warn("kill after cancellation failed", "err", err)
		}
		return ctx.Err()
	}
}

// watchExit handles the tunnel client dying underneath a connected session:
// release resources and report the tunnel as down.
func (s *Supervisor) watchExit(proc *tunnelProcess) {
	<-proc.exited

	s.mu.Lock()
	if s.active == nil || s.active.proc != proc {
		// A deliberate stop already reclaimed this session.
		s.mu.Unlock()
		return
	}
	active := s.active
	s.active = nil
	s.state = stateIdle
	s.mu.Unlock()

	s.log.Warn("tunnel process exited unexpectedly")
	s.fresh.Stop()
	s.removeCredentialsFile(active.credsPath)

	ctx := context.Background()
	if err := s.store.DB().SetEnabled(ctx, false); err != nil {
		s.log.Warn("enabled flag persist failed", "err", err)
	}
	s.publishStatus(ctx)
}
