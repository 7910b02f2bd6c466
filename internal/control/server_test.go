package control

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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
	"github.com/312-dev/eclosion-tunnel/internal/store/sqlite"
	"github.com/312-dev/eclosion-tunnel/internal/supervisor"
)

type testServer struct {
	api   *httptest.Server
	srv   *Server
	store *secrets.Store
	bus   *statusbus.Bus
}

func newTestServer(t *testing.T, controlPlane http.HandlerFunc) *testServer {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("ECLOSION_MACHINE_SECRET", "control-test-secret")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := sqlite.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := secrets.NewStore(db, secrets.NewMachineSealer(dir), logger)

	if controlPlane == nil {
		controlPlane = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}
	}
	cp := httptest.NewServer(controlPlane)
	t.Cleanup(cp.Close)

	prov := provision.New(cp.URL, logger)
	local := localsvc.New()
	bus := statusbus.New(logger)
	cfg := config.Config{
		PublicDomain:    "eclosion.test",
		DataDir:         dir,
		LocalPort:       0,
		ConfirmTimeout:  time.Second,
		RefreshInterval: time.Hour,
	}
	sup := supervisor.New(cfg, supervisor.Deps{
		Store:     store,
		Provision: prov,
		Binary:    binfetch.New(dir, logger),
		Local:     local,
		OTP:       otp.New(prov, store, "", logger),
		Refresh:   refresh.New(local, store, time.Hour, logger),
		Bus:       bus,
		Logger:    logger,
	})
	dr := drain.New(cp.URL, store, local, sup.ActivePort, logger)
	sup.SetDrain(dr)

	srv := New(cfg, sup, dr, prov, store, bus, logger)
	api := httptest.NewServer(srv.Router())
	t.Cleanup(api.Close)
	return &testServer{api: api, srv: srv, store: store, bus: bus}
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(ts.api.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func (ts *testServer) post(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := http.Post(ts.api.URL+path, "application/json", body)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, raw
}

func TestStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.get(t, "/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.Active || snap.Configured {
		t.Fatalf("fresh install snapshot = %+v", snap)
	}
}

func TestClaimEndpointOmitsSecrets(t *testing.T) {
	ts := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/claim" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"subdomain":     "acme",
			"tunnelId":      "tid-1",
			"accountTag":    "acct",
			"tunnelSecret":  "super-secret",
			"managementKey": "mk-1",
		})
	})

	resp, body := ts.post(t, "/v1/claim", map[string]string{"subdomain": "acme"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim = %d, body %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "super-secret") || strings.Contains(string(body), "mk-1") {
		t.Fatalf("secret material leaked over control api: %s", body)
	}
	var out claimResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Success || out.Subdomain != "acme" || out.TunnelID != "tid-1" {
		t.Fatalf("claim response = %+v", out)
	}

	// The material must still have landed sealed in the store.
	creds, err := ts.store.Credentials(context.Background())
	if err != nil || creds == nil || creds.TunnelSecret != "super-secret" {
		t.Fatalf("stored credentials = %+v, %v", creds, err)
	}
}

func TestClaimEndpointRequiresSubdomain(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.post(t, "/v1/claim", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStartMapsNotClaimedToConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, body := ts.post(t, "/v1/start", map[string]int{"port": 8080})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, body %s, want 409", resp.StatusCode, body)
	}
	var out errorResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Success || out.Error == "" {
		t.Fatalf("error response = %+v", out)
	}
}

func TestStartRequiresPort(t *testing.T) {
	ts := newTestServer(t, nil)
	resp, _ := ts.post(t, "/v1/start", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.get(t, "/v1/history")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if strings.TrimSpace(string(body)) != "[]" {
		t.Fatalf("empty history = %s, want []", body)
	}

	rec := domain.ActionRecord{
		ID:         "rec-1",
		ActionSlug: "budget_to",
		Fields:     map[string]any{"amount": "25.00"},
		ExecutedAt: time.Now().UTC(),
		Success:    true,
	}
	if err := ts.store.DB().AppendActionHistory(context.Background(), rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	_, body = ts.get(t, "/v1/history?limit=10")
	var records []domain.ActionRecord
	if err := json.Unmarshal(body, &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].ID != "rec-1" {
		t.Fatalf("records = %+v", records)
	}

	resp, _ = ts.get(t, "/v1/history?limit=9999")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("oversized limit = %d, want 400", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.api.URL, "http") + "/v1/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var initial domain.StatusSnapshot
	if err := conn.ReadJSON(&initial); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if initial.Active {
		t.Fatalf("initial snapshot = %+v", initial)
	}

	ts.bus.Publish(domain.StatusSnapshot{Active: true, URL: "https://acme.eclosion.test"})
	var next domain.StatusSnapshot
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read published snapshot: %v", err)
	}
	if !next.Active || next.URL != "https://acme.eclosion.test" {
		t.Fatalf("published snapshot = %+v", next)
	}
}
