package supervisor

import "context"

// Stop tears the tunnel down. It never fails outwardly: every step is
// best-effort with internal logging, and all resources (process, temporary
// credentials file, active handle) are released by the time it returns.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return nil
	}
	active := s.active
	s.state = stateStopping
	s.mu.Unlock()

	s.fresh.Stop()

	// Deregistration is initiated before the kill but never awaited, so a
	// slow control plane cannot delay shutdown.
	cfg, err := s.store.DB().TunnelConfig(ctx)
	if err == nil && cfg.Subdomain != "" {
		go s.otp.Deregister(context.WithoutCancel(ctx), cfg.Subdomain)
	}

	if err := active.proc.kill(); err != nil {
		s.log.Warn("tunnel process kill failed", "err", err)
	}
	s.removeCredentialsFile(active.credsPath)

	s.mu.Lock()
	s.active = nil
	s.state = stateIdle
	s.mu.Unlock()

	if err := s.store.DB().SetEnabled(ctx, false); err != nil {
		s.log.Warn("enabled flag persist failed", "err", err)
	}
	s.log.Info("tunnel stopped")
	s.publishStatus(ctx)
	return nil
}

// Cleanup is the app-quit path: release the process and the credentials
// file without network calls or status events. The requirement is "no
// orphaned child process and no leftover credentials file", not a
// perfectly synchronized remote state.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	active := s.active
	s.active = nil
	s.state = stateIdle
	s.mu.Unlock()

	s.fresh.Stop()
	if active == nil {
		return
	}
	if err := active.proc.kill(); err != nil {
		s.log.Warn("tunnel process kill failed during cleanup", "err", err)
	}
	s.removeCredentialsFile(active.credsPath)

	if err := s.store.DB().SetEnabled(context.Background(), false); err != nil {
		s.log.Warn("enabled flag persist failed during cleanup", "err", err)
	}
}
