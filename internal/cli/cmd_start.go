package cli

import (
	"context"
	"fmt"
	"os"
)

func runStart(ctx context.Context, args []string) int {
	app, err := newApp("start", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	port := app.cfg.LocalPort
	if port == 0 {
		fmt.Fprintln(os.Stderr, "local port required (--port or ECLOSION_LOCAL_PORT)")
		return 2
	}

	url, err := app.sup.Start(ctx, port)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start error:", err)
		return 1
	}
	fmt.Printf("Tunnel up: %s -> http://127.0.0.1:%d\n", url, port)
	fmt.Println("Press Ctrl+C to stop.")

	<-ctx.Done()
	// Signal received: graceful stop, deregistration included.
	if err := app.sup.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "stop error:", err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	app, err := newApp("serve", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	// The enabled flag means "the tunnel was up when we last ran"; honor it
	// by reconnecting in the background while the control API comes up.
	if app.cfg.LocalPort != 0 {
		if cfg, err := app.store.DB().TunnelConfig(ctx); err == nil && cfg.Enabled {
			go func() {
				if _, err := app.sup.Start(ctx, app.cfg.LocalPort); err != nil {
					app.log.Warn("tunnel auto-start failed", "err", err)
				}
			}()
		}
	}

	if err := app.control.ListenAndServe(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "control api error:", err)
		return 1
	}
	if err := app.sup.Stop(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "stop error:", err)
		return 1
	}
	return 0
}
