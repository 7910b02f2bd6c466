package otp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	ilog "github.com/312-dev/eclosion-tunnel/internal/log"
	"github.com/312-dev/eclosion-tunnel/internal/provision"
	"github.com/312-dev/eclosion-tunnel/internal/secrets"
	"github.com/312-dev/eclosion-tunnel/internal/store/sqlite"
)

func testSecrets(t *testing.T) *secrets.Store {
	t.Helper()
	t.Setenv("ECLOSION_MACHINE_SECRET", "test-secret")
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return secrets.NewStore(db, secrets.NewMachineSealer(t.TempDir()), ilog.New("error"))
}

func TestRegisterSendsEmailAndKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/otp/register" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["subdomain"] != "myhome" || body["managementKey"] != "mk" || body["email"] != "me@example.com" {
			t.Fatalf("unexpected body: %v", body)
		}
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testSecrets(t)
	ctx := context.Background()
	if err := store.StoreManagementKey(ctx, "mk"); err != nil {
		t.Fatal(err)
	}

	agent := New(provision.New(srv.URL, ilog.New("error")), store, "me@example.com", ilog.New("error"))
	agent.Register(ctx, "myhome")
	if calls.Load() != 1 {
		t.Fatalf("expected one register call, got %d", calls.Load())
	}
}

func TestRegisterSkipsWithoutEmailOrKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("control plane must not be called")
	}))
	defer srv.Close()

	store := testSecrets(t)
	ctx := context.Background()
	prov := provision.New(srv.URL, ilog.New("error"))

	// No email configured.
	if err := store.StoreManagementKey(ctx, "mk"); err != nil {
		t.Fatal(err)
	}
	New(prov, store, "", ilog.New("error")).Register(ctx, "myhome")

	// Email configured but no management key.
	noKey := testSecrets(t)
	New(prov, noKey, "me@example.com", ilog.New("error")).Register(ctx, "myhome")
}

func TestDeregisterSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := testSecrets(t)
	ctx := context.Background()
	if err := store.StoreManagementKey(ctx, "mk"); err != nil {
		t.Fatal(err)
	}

	// Must not panic or propagate.
	New(provision.New(srv.URL, ilog.New("error")), store, "me@example.com", ilog.New("error")).Deregister(ctx, "myhome")
}
