package localsvc

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serverPort(t *testing.T, handler http.HandlerFunc) int {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return ts.Listener.Addr().(*net.TCPAddr).Port
}

func TestHealth(t *testing.T) {
	port := serverPort(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if err := New().Health(context.Background(), port); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestHealthFailsOn5xx(t *testing.T) {
	port := serverPort(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if err := New().Health(context.Background(), port); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestExecuteActionSendsSecretAndFields(t *testing.T) {
	var gotSecret string
	var gotFields map[string]any
	port := serverPort(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ifttt/actions/budget-to" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotSecret = r.Header.Get(SecretHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotFields)
		w.WriteHeader(http.StatusOK)
	})

	err := New().ExecuteAction(context.Background(), port, "/ifttt/actions/budget-to", "s3cret",
		map[string]any{"amount": "25.00"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("secret header = %q", gotSecret)
	}
	if gotFields["amount"] != "25.00" {
		t.Fatalf("fields = %v", gotFields)
	}
}

func TestExecuteActionSurfacesRejection(t *testing.T) {
	port := serverPort(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad secret", http.StatusUnauthorized)
	})
	err := New().ExecuteAction(context.Background(), port, "/ifttt/actions/budget-to", "wrong", nil)
	if err == nil {
		t.Fatal("expected error on 401")
	}
}

func TestRefreshTriggersCount(t *testing.T) {
	port := serverPort(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(SecretHeader) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"pushed": 3})
	})
	pushed, err := New().RefreshTriggers(context.Background(), port, "s3cret")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pushed != 3 {
		t.Fatalf("pushed = %d, want 3", pushed)
	}
}
