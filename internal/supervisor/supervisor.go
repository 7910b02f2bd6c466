// Package supervisor owns the tunnel lifecycle: it composes binary
// provisioning, remote ingress updates, process supervision, and the
// post-connect agents (OTP registration, queue drain, periodic refresh)
// behind a single start/stop surface.
//
// At most one tunnel session exists process-wide. The in-memory
// [ActiveTunnel] handle is the sole source of truth for "is the tunnel
// active"; the persisted enabled flag only means "should auto-start".
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/binfetch"
	"github.com/312-dev/eclosion-tunnel/internal/config"
	"github.com/312-dev/eclosion-tunnel/internal/domain"
	"github.com/312-dev/eclosion-tunnel/internal/drain"
	"github.com/312-dev/eclosion-tunnel/internal/localsvc"
	"github.com/312-dev/eclosion-tunnel/internal/otp"
	"github.com/312-dev/eclosion-tunnel/internal/provision"
	"github.com/312-dev/eclosion-tunnel/internal/refresh"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
	"github.com/312-dev/eclosion-tunnel/internal/statusbus"
)

type state int

const (
	stateIdle state = iota
	stateStarting
	stateConnected
	stateStopping
)

// ActiveTunnel is the single in-memory handle for a confirmed tunnel
// session.
type ActiveTunnel struct {
	URL  string
	Port int

	credsPath string
	proc      *tunnelProcess
}

// Deps are the supervisor's collaborators. Drain is attached after
// construction because its port callback points back at the supervisor.
type Deps struct {
	Store     *secrets.Store
	Provision *provision.Client
	Binary    *binfetch.Provisioner
	Local     *localsvc.Client
	OTP       *otp.Agent
	Refresh   *refresh.Agent
	Bus       *statusbus.Bus
	Logger    *slog.Logger
}

// Supervisor is constructed once at process start and torn down once at
// process exit.
type Supervisor struct {
	cfg   config.Config
	store *secrets.Store
	prov  *provision.Client
	bin   *binfetch.Provisioner
	local *localsvc.Client
	otp   *otp.Agent
	drain *drain.Agent
	fresh *refresh.Agent
	bus   *statusbus.Bus
	log   *slog.Logger

	confirmTimeout time.Duration

	mu     sync.Mutex
	state  state
	active *ActiveTunnel
}

// New creates a supervisor.
func New(cfg config.Config, deps Deps) *Supervisor {
	return &Supervisor{
		cfg:            cfg,
		store:          deps.Store,
		prov:           deps.Provision,
		bin:            deps.Binary,
		local:          deps.Local,
		otp:            deps.OTP,
		fresh:          deps.Refresh,
		bus:            deps.Bus,
		log:            deps.Logger,
		confirmTimeout: cfg.ConfirmTimeout,
	}
}

// SetDrain attaches the queue drain agent.
func (s *Supervisor) SetDrain(d *drain.Agent) {
	s.drain = d
}

// ActivePort reports the local service port behind the active tunnel.
func (s *Supervisor) ActivePort() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return 0, false
	}
	return s.active.Port, true
}

// Status computes a fresh snapshot of the tunnel state.
func (s *Supervisor) Status(ctx context.Context) domain.StatusSnapshot {
	cfg, err := s.store.DB().TunnelConfig(ctx)
	if err != nil {
		s.log.Warn("status: config load failed", "err", err)
	}
	snap := domain.StatusSnapshot{
		Enabled:    cfg.Enabled,
		Subdomain:  cfg.Subdomain,
		Configured: cfg.Configured(),
	}
	s.mu.Lock()
	if s.active != nil {
		snap.Active = true
		snap.URL = s.active.URL
	}
	s.mu.Unlock()
	return snap
}

// Claim allocates subdomain on the control plane and persists the issued
// credential set. The credentials and management key land atomically with
// the configuration keys, or not at all.
func (s *Supervisor) Claim(ctx context.Context, subdomain string) (provision.ClaimResult, error) {
	// The secret material is transmitted exactly once, so refuse up front
	// when it could never be persisted.
	if !s.store.Available() {
		return provision.ClaimResult{}, &domain.OpError{Op: "claim", Err: domain.ErrSealerUnavailable}
	}
	res, err := s.prov.Claim(ctx, subdomain)
	if err != nil {
		return provision.ClaimResult{}, err
	}
	creds := domain.TunnelCredentials{
		AccountTag:   res.AccountTag,
		TunnelID:     res.TunnelID,
		TunnelSecret: res.TunnelSecret,
	}
	if err := s.store.SaveClaim(ctx, res.Subdomain, res.TunnelID, creds, res.ManagementKey, time.Now()); err != nil {
		return provision.ClaimResult{}, fmt.Errorf("claim succeeded but could not be persisted: %w", err)
	}
	s.log.Info("subdomain claimed", "subdomain", res.Subdomain, "tunnel_id", res.TunnelID)
	s.publishStatus(ctx)
	return res, nil
}

// Unclaim releases the subdomain. Without a management key the remote
// deletion is skipped with a logged degradation, and local state is still
// cleared so the user is never permanently stuck.
func (s *Supervisor) Unclaim(ctx context.Context) error {
	cfg, err := s.store.DB().TunnelConfig(ctx)
	if err != nil {
		return err
	}
	if !cfg.Configured() {
		return nil
	}
	if err := s.Stop(ctx); err != nil {
		s.log.Warn("stop before unclaim failed", "err", err)
	}

	key, err := s.store.ManagementKey(ctx)
	if err != nil {
		s.log.Warn("management key lookup failed during unclaim", "err", err)
	}
	if key == "" {
		s.log.Warn("no management key; remote tunnel state will be orphaned", "subdomain", cfg.Subdomain)
	} else if err := s.prov.Unclaim(ctx, cfg.Subdomain, key); err != nil {
		return err
	}

	if err := s.store.DB().ClearTunnelState(ctx); err != nil {
		return fmt.Errorf("clear local tunnel state: %w", err)
	}
	s.log.Info("subdomain unclaimed", "subdomain", cfg.Subdomain)
	s.publishStatus(ctx)
	return nil
}

func (s *Supervisor) publishStatus(ctx context.Context) {
	s.bus.Publish(s.Status(ctx))
}

func (s *Supervisor) publicURL(subdomain string) string {
	return fmt.Sprintf("https://%s.%s", subdomain, s.cfg.PublicDomain)
}
