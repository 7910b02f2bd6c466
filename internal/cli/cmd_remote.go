package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/312-dev/eclosion-tunnel/internal/config"
	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

// stop, status, and drain act on a running `serve` instance through the
// loopback control API. The tunnel client process belongs to that instance,
// so there is nothing a fresh process could stop directly.

var controlHTTP = &http.Client{Timeout: 10 * time.Second}

func controlCall(ctx context.Context, cfg config.Config, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, "http://"+cfg.ControlAddr+path, nil)
	if err != nil {
		return err
	}
	resp, err := controlHTTP.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("control api returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runStop(ctx context.Context, args []string) int {
	cfg, err := config.ParseFlags("stop", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	if err := controlCall(ctx, cfg, http.MethodPost, "/v1/stop", nil); err != nil {
		fmt.Fprintln(os.Stderr, "stop error (is `eclosion-tunnel serve` running?):", err)
		return 1
	}
	fmt.Println("Tunnel stopped.")
	return 0
}

func runDrain(ctx context.Context, args []string) int {
	cfg, err := config.ParseFlags("drain", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	var result domain.DrainResult
	if err := controlCall(ctx, cfg, http.MethodPost, "/v1/drain", &result); err != nil {
		fmt.Fprintln(os.Stderr, "drain error (is `eclosion-tunnel serve` running?):", err)
		return 1
	}
	fmt.Printf("Drained %d queued action(s): %d succeeded, %d failed.\n",
		result.Processed, result.Succeeded, result.Failed)
	for _, a := range result.Actions {
		if a.Success {
			fmt.Printf("  ok   %s (%s)\n", a.Slug, a.ID)
		} else {
			fmt.Printf("  fail %s (%s): %s\n", a.Slug, a.ID, a.Error)
		}
	}
	return 0
}

func runStatus(ctx context.Context, args []string) int {
	cfg, err := config.ParseFlags("status", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}

	// Prefer the live view from a running serve instance; fall back to the
	// state database when none is up.
	var snap domain.StatusSnapshot
	if err := controlCall(ctx, cfg, http.MethodGet, "/v1/status", &snap); err != nil {
		app, aerr := newApp("status", args)
		if aerr != nil {
			fmt.Fprintln(os.Stderr, "config error:", aerr)
			return 2
		}
		defer app.Close()
		snap = app.sup.Status(ctx)
	}

	if !snap.Configured {
		fmt.Println("No subdomain claimed.")
		return 0
	}
	fmt.Printf("Subdomain: %s\n", snap.Subdomain)
	if snap.Active {
		fmt.Printf("Tunnel:    active (%s)\n", snap.URL)
	} else {
		fmt.Println("Tunnel:    inactive")
	}
	fmt.Printf("Enabled:   %v\n", snap.Enabled)
	return 0
}

func runHistory(ctx context.Context, args []string) int {
	app, err := newApp("history", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	records, err := app.store.DB().ListActionHistory(ctx, 50)
	if err != nil {
		fmt.Fprintln(os.Stderr, "history error:", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Println("No executed queued actions.")
		return 0
	}
	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "fail"
		}
		fmt.Printf("%s  %-4s %s", rec.ExecutedAt.Local().Format(time.RFC3339), status, rec.ActionSlug)
		if rec.Error != "" {
			fmt.Printf("  (%s)", rec.Error)
		}
		fmt.Println()
	}
	return 0
}
