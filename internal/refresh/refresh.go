// Package refresh periodically asks the local service to push fresh trigger
// state outward while the tunnel is active.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/localsvc"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
)

// Agent runs the refresh loop. A single tick failure is logged and sampled
// again at the next interval; the refresh is cheap and idempotent, so no
// backoff is needed.
type Agent struct {
	local    *localsvc.Client
	store    *secrets.Store
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	stop context.CancelFunc
}

// New creates a refresh agent ticking at interval.
func New(local *localsvc.Client, store *secrets.Store, interval time.Duration, logger *slog.Logger) *Agent {
	return &Agent{local: local, store: store, interval: interval, log: logger}
}

// Start begins the loop against the local service port. A previous loop, if
// any, is stopped first so at most one ticker runs.
func (a *Agent) Start(ctx context.Context, port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		a.stop()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	a.stop = cancel
	go a.loop(loopCtx, port)
}

// Stop halts the loop. Safe to call when not running.
func (a *Agent) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		a.stop()
		a.stop = nil
	}
}

func (a *Agent) loop(ctx context.Context, port int) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, port)
		}
	}
}

func (a *Agent) tick(ctx context.Context, port int) {
	secret, err := a.store.ActionSecret(ctx)
	if err != nil {
		a.log.Warn("trigger refresh skipped: action secret lookup failed", "err", err)
		return
	}
	pushed, err := a.local.RefreshTriggers(ctx, port, secret)
	if err != nil {
		a.log.Warn("trigger refresh failed", "err", err)
		return
	}
	a.log.Info("trigger refresh pushed events", "count", pushed)
}
