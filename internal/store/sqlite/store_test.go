package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestKVRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if v, err := store.Get(ctx, "missing"); err != nil || v != "" {
		t.Fatalf("absent key: got %q, %v", v, err)
	}
	if err := store.Set(ctx, KeySubdomain, "myhome"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, KeySubdomain, "myhome2"); err != nil {
		t.Fatal(err)
	}
	v, err := store.Get(ctx, KeySubdomain)
	if err != nil {
		t.Fatal(err)
	}
	if v != "myhome2" {
		t.Fatalf("expected upserted value, got %q", v)
	}
}

func TestSetManyIsAtomicUnit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.SetMany(ctx, map[string]string{
		KeySubdomain: "myhome",
		KeyTunnelID:  "t-1",
		KeyEnabled:   "false",
	})
	if err != nil {
		t.Fatal(err)
	}

	cfg, err := store.TunnelConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Subdomain != "myhome" || cfg.TunnelID != "t-1" || cfg.Enabled {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !cfg.Configured() {
		t.Fatal("expected config to report configured")
	}
}

func TestClearTunnelState(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.SetMany(ctx, map[string]string{
		KeySubdomain:              "myhome",
		KeyTunnelID:               "t-1",
		KeyEnabled:                "true",
		KeyCreatedAt:              time.Now().UTC().Format(time.RFC3339),
		KeyEncryptedCredentials:   "blob",
		KeyEncryptedManagementKey: "blob",
	}); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearTunnelState(ctx); err != nil {
		t.Fatal(err)
	}
	cfg, err := store.TunnelConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Configured() || cfg.Enabled || cfg.CreatedAt != nil {
		t.Fatalf("expected cleared config, got %+v", cfg)
	}
	if blob, _ := store.Get(ctx, KeyEncryptedCredentials); blob != "" {
		t.Fatal("expected encrypted credentials blob to be cleared")
	}
}

func TestActionHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	recs := []domain.ActionRecord{
		{
			ID:         "a-1",
			ActionSlug: "budget_to",
			Fields:     map[string]any{"amount": "25.00", "category": "groceries"},
			QueuedAt:   "2026-08-01T10:00:00Z",
			ExecutedAt: time.Now().Add(-time.Minute),
			Success:    true,
		},
		{
			ID:         "a-2",
			ActionSlug: "foo",
			Fields:     map[string]any{"x": "y"},
			ExecutedAt: time.Now(),
			Success:    false,
			Error:      "unknown action",
		},
	}
	for _, rec := range recs {
		if err := store.AppendActionHistory(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := store.ListActionHistory(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].ID != "a-2" || got[0].Success {
		t.Fatalf("expected newest failed record first, got %+v", got[0])
	}
	if got[1].Fields["category"] != "groceries" {
		t.Fatalf("fields did not round-trip: %+v", got[1].Fields)
	}
}
