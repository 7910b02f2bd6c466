package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
)

func runClaim(ctx context.Context, args []string) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: eclosion-tunnel claim <subdomain>")
		return 2
	}
	subdomain := args[0]

	app, err := newApp("claim", args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	res, err := app.sup.Claim(ctx, subdomain)
	if err != nil {
		fmt.Fprintln(os.Stderr, "claim error:", err)
		return 1
	}
	fmt.Printf("Claimed https://%s.%s (tunnel %s)\n", res.Subdomain, app.cfg.PublicDomain, res.TunnelID)
	fmt.Println("Run `eclosion-tunnel start --port <port>` to bring the tunnel up.")
	return 0
}

func runUnclaim(ctx context.Context, args []string) int {
	app, err := newApp("unclaim", args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	if err := app.sup.Unclaim(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "unclaim error:", err)
		return 1
	}
	fmt.Println("Subdomain released.")
	return 0
}

func runCheck(ctx context.Context, args []string) int {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		fmt.Fprintln(os.Stderr, "usage: eclosion-tunnel check <subdomain>")
		return 2
	}
	subdomain := args[0]

	app, err := newApp("check", args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}
	defer app.Close()

	avail := app.prov.Check(ctx, subdomain)
	if !avail.Available {
		if avail.Err != "" {
			fmt.Printf("%s is not available: %s\n", subdomain, avail.Err)
		} else {
			fmt.Printf("%s is taken.\n", subdomain)
		}
		return 1
	}
	fmt.Printf("%s is available.\n", subdomain)
	return 0
}
