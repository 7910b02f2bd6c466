// Package drain reconciles the broker's offline action queue once the
// tunnel is back: it polls pending actions, executes each against the local
// service, records history, and acknowledges delivery.
//
// Every polled action is ACKed exactly once regardless of local execution
// outcome. That guarantees forward progress (the queue can never wedge on a
// permanently failing action) at the cost of not retrying failures; the
// history record is the audit trail for anything that went wrong.
package drain

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
	"github.com/312-dev/eclosion-tunnel/internal/localsvc"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
)

const pollAttempts = 3

// PortFunc reports the active tunnel's local service port, or false when no
// tunnel is up.
type PortFunc func() (int, bool)

// Agent drains the broker queue.
type Agent struct {
	broker *brokerClient
	store  *secrets.Store
	local  *localsvc.Client
	port   PortFunc
	log    *slog.Logger
}

// New creates a drain agent against the broker at brokerURL.
func New(brokerURL string, store *secrets.Store, local *localsvc.Client, port PortFunc, logger *slog.Logger) *Agent {
	return &Agent{
		broker: newBrokerClient(brokerURL),
		store:  store,
		local:  local,
		port:   port,
		log:    logger,
	}
}

// Drain runs one full drain cycle. Missing preconditions (no subdomain, no
// management key) and poll failures yield a zero result, not an error:
// "nothing to drain" is a normal outcome and the next cycle is independent.
func (a *Agent) Drain(ctx context.Context) domain.DrainResult {
	var result domain.DrainResult

	cfg, err := a.store.DB().TunnelConfig(ctx)
	if err != nil {
		a.log.Warn("drain skipped: config load failed", "err", err)
		return result
	}
	if !cfg.Configured() {
		a.log.Debug("drain skipped: no subdomain claimed")
		return result
	}
	key, err := a.store.ManagementKey(ctx)
	if err != nil || key == "" {
		a.log.Debug("drain skipped: no management key")
		return result
	}

	actions, err := a.poll(ctx, cfg.Subdomain, key)
	if err != nil {
		a.log.Warn("drain aborted: broker poll failed", "err", err)
		return result
	}
	if len(actions) == 0 {
		return result
	}
	a.log.Info("draining queued actions", "count", len(actions))

	secret := a.ensureActionSecret(ctx, cfg.Subdomain, key)

	for _, action := range actions {
		outcome := a.execute(ctx, action, secret)
		result.Processed++
		if outcome.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Actions = append(result.Actions, outcome)

		rec := domain.ActionRecord{
			ID:         uuid.NewString(),
			ActionSlug: action.ActionSlug,
			Fields:     action.Fields,
			QueuedAt:   action.QueuedAt,
			ExecutedAt: time.Now().UTC(),
			Success:    outcome.Success,
			Error:      outcome.Error,
		}
		if err := a.store.DB().AppendActionHistory(ctx, rec); err != nil {
			a.log.Warn("local history append failed", "action", action.ID, "err", err)
		}
		if err := a.broker.pushHistory(ctx, cfg.Subdomain, key, rec); err != nil {
			a.log.Warn("history push failed", "action", action.ID, "err", err)
		}
		// ACK regardless of execution outcome so the queue always moves.
		if err := a.broker.ack(ctx, cfg.Subdomain, key, action.ID); err != nil {
			a.log.Warn("ack failed; broker may redeliver", "action", action.ID, "err", err)
		}
	}

	a.log.Info("drain finished",
		"processed", result.Processed, "succeeded", result.Succeeded, "failed", result.Failed)
	return result
}

// poll fetches pending actions, retrying transient failures with jittered
// backoff before giving up on the whole cycle.
func (a *Agent) poll(ctx context.Context, subdomain, key string) ([]domain.QueuedAction, error) {
	b := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    2 * time.Second,
		Jitter: true,
	}
	for attempt := 1; ; attempt++ {
		actions, err := a.broker.pending(ctx, subdomain, key)
		if err == nil {
			return actions, nil
		}
		if attempt >= pollAttempts {
			return nil, err
		}
		a.log.Debug("broker poll failed; retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
}

func (a *Agent) execute(ctx context.Context, action domain.QueuedAction, secret string) domain.ActionOutcome {
	outcome := domain.ActionOutcome{ID: action.ID, Slug: action.ActionSlug}

	port, ok := a.port()
	if !ok {
		// No active tunnel port: fail locally without touching the service.
		outcome.Error = "no active tunnel"
		return outcome
	}

	route := routeFor(action.ActionSlug)
	if err := a.local.ExecuteAction(ctx, port, route.path, secret, route.build(action.Fields)); err != nil {
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Success = true
	return outcome
}

// ensureActionSecret returns the stored action secret, fetching it from the
// broker and persisting it encrypted on first use. Failures degrade to an
// empty secret; the local service then rejects the calls and the outcomes
// record why.
func (a *Agent) ensureActionSecret(ctx context.Context, subdomain, key string) string {
	secret, err := a.store.ActionSecret(ctx)
	if err == nil && secret != "" {
		return secret
	}
	secret, err = a.broker.actionSecret(ctx, subdomain, key)
	if err != nil {
		a.log.Warn("action secret fetch failed", "err", err)
		return ""
	}
	if err := a.store.StoreActionSecret(ctx, secret); err != nil {
		if !errors.Is(err, domain.ErrSealerUnavailable) {
			a.log.Warn("action secret store failed", "err", err)
		}
	}
	return secret
}
