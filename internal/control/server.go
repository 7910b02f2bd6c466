// Package control serves the local control API: a loopback-only HTTP
// surface the desktop UI drives the tunnel lifecycle through, plus a
// websocket stream of status-changed events.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/312-dev/eclosion-tunnel/internal/config"
	"github.com/312-dev/eclosion-tunnel/internal/domain"
	"github.com/312-dev/eclosion-tunnel/internal/drain"
	"github.com/312-dev/eclosion-tunnel/internal/provision"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
	"github.com/312-dev/eclosion-tunnel/internal/statusbus"
	"github.com/312-dev/eclosion-tunnel/internal/supervisor"
)

// Server is the local control API server.
type Server struct {
	cfg   config.Config
	sup   *supervisor.Supervisor
	drain *drain.Agent
	prov  *provision.Client
	store *secrets.Store
	bus   *statusbus.Bus
	log   *slog.Logger

	http *http.Server
}

// New creates a control server. It does not listen until ListenAndServe.
func New(cfg config.Config, sup *supervisor.Supervisor, dr *drain.Agent, prov *provision.Client, store *secrets.Store, bus *statusbus.Bus, logger *slog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		sup:   sup,
		drain: dr,
		prov:  prov,
		store: store,
		bus:   bus,
		log:   logger,
	}
}

// Router builds the HTTP routes. Exposed for tests.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/check/{subdomain}", s.handleCheck).Methods(http.MethodGet)
	v1.HandleFunc("/claim", s.handleClaim).Methods(http.MethodPost)
	v1.HandleFunc("/unclaim", s.handleUnclaim).Methods(http.MethodPost)
	v1.HandleFunc("/start", s.handleStart).Methods(http.MethodPost)
	v1.HandleFunc("/stop", s.handleStop).Methods(http.MethodPost)
	v1.HandleFunc("/drain", s.handleDrain).Methods(http.MethodPost)
	v1.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return r
}

// ListenAndServe serves the control API until ctx is cancelled, then shuts
// down gracefully. The bind address must be loopback; config validation
// enforces that before we ever get here.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ControlAddr)
	if err != nil {
		return err
	}
	s.http = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("control api listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.http.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto HTTP statuses. Control-plane
// failures pass their status through so the UI can distinguish "name taken"
// from "service down".
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var apiErr *domain.APIError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.StatusCode
	case errors.Is(err, domain.ErrNotClaimed),
		errors.Is(err, domain.ErrCredentialsMissing):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStartInProgress):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrLocalServiceDown):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrConfirmTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrSealerUnavailable):
		status = http.StatusPreconditionFailed
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// decodeBody decodes a JSON request body. An empty body is valid; the
// handler then runs on defaults.
func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
