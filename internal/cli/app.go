package cli

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/312-dev/eclosion-tunnel/internal/binfetch"
	"github.com/312-dev/eclosion-tunnel/internal/config"
	"github.com/312-dev/eclosion-tunnel/internal/control"
	"github.com/312-dev/eclosion-tunnel/internal/drain"
	"github.com/312-dev/eclosion-tunnel/internal/localsvc"
	ilog "github.com/312-dev/eclosion-tunnel/internal/log"
	"github.com/312-dev/eclosion-tunnel/internal/otp"
	"github.com/312-dev/eclosion-tunnel/internal/provision"
	"github.com/312-dev/eclosion-tunnel/internal/refresh"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
	"github.com/312-dev/eclosion-tunnel/internal/statusbus"
	"github.com/312-dev/eclosion-tunnel/internal/store/sqlite"
	"github.com/312-dev/eclosion-tunnel/internal/supervisor"
)

// app wires the full component graph for one CLI invocation.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	db      *sqlite.Store
	store   *secrets.Store
	prov    *provision.Client
	sup     *supervisor.Supervisor
	drain   *drain.Agent
	bus     *statusbus.Bus
	control *control.Server
}

func newApp(name string, args []string) (*app, error) {
	cfg, err := config.ParseFlags(name, args)
	if err != nil {
		return nil, err
	}
	logger := ilog.New(cfg.LogLevel)

	db, err := sqlite.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	store := secrets.NewStore(db, secrets.NewMachineSealer(cfg.DataDir), logger)
	prov := provision.New(cfg.ControlPlaneURL, ilog.Component(logger, "provision"))
	local := localsvc.New()
	bus := statusbus.New(ilog.Component(logger, "statusbus"))

	sup := supervisor.New(cfg, supervisor.Deps{
		Store:     store,
		Provision: prov,
		Binary:    binfetch.New(cfg.DataDir, ilog.Component(logger, "binfetch")),
		Local:     local,
		OTP:       otp.New(prov, store, cfg.OTPEmail, ilog.Component(logger, "otp")),
		Refresh:   refresh.New(local, store, cfg.RefreshInterval, ilog.Component(logger, "refresh")),
		Bus:       bus,
		Logger:    ilog.Component(logger, "supervisor"),
	})
	dr := drain.New(cfg.BrokerURL, store, local, sup.ActivePort, ilog.Component(logger, "drain"))
	sup.SetDrain(dr)

	return &app{
		cfg:     cfg,
		log:     logger,
		db:      db,
		store:   store,
		prov:    prov,
		sup:     sup,
		drain:   dr,
		bus:     bus,
		control: control.New(cfg, sup, dr, prov, store, bus, ilog.Component(logger, "control")),
	}, nil
}

// Close releases the tunnel session, child process, and database.
func (a *app) Close() {
	a.sup.Cleanup()
	_ = a.db.Close()
}
