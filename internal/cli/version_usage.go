package cli

import "fmt"

func printUsage() {
	fmt.Println(`eclosion-tunnel - remote access tunnel lifecycle manager

Exposes the local Eclosion service under a claimed subdomain through an
outbound tunnel, keeps remote ingress in sync, and drains actions queued
while the tunnel was offline.

Usage:
  eclosion-tunnel check <subdomain>     Check whether a subdomain is free
  eclosion-tunnel claim <subdomain>     Claim a subdomain and store credentials
  eclosion-tunnel unclaim               Release the claimed subdomain
  eclosion-tunnel start --port 3000     Start the tunnel and block until signalled
  eclosion-tunnel serve                 Run the local control API (auto-starts
                                        the tunnel when it was left enabled)
  eclosion-tunnel stop                  Stop the tunnel via a running serve instance
  eclosion-tunnel status                Show tunnel status
  eclosion-tunnel drain                 Drain queued actions via a running serve instance
  eclosion-tunnel history               Show executed queued-action history
  eclosion-tunnel version               Print version
  eclosion-tunnel help                  Show this help

Environment Variables:
  ECLOSION_CONTROL_PLANE_URL  Control plane API base URL
  ECLOSION_BROKER_URL         Action broker API base URL
  ECLOSION_PUBLIC_DOMAIN      Public base domain for claimed subdomains
  ECLOSION_DATA_DIR           Directory for state db, tunnel binary and session files
  ECLOSION_LOCAL_PORT         Local service port on 127.0.0.1
  ECLOSION_OTP_EMAIL          Email registered for out-of-band OTP delivery
  ECLOSION_CONTROL_ADDR       Loopback address for the local control API
  ECLOSION_LOG_LEVEL          Log level: debug|info|warn|error (default: info)
  ECLOSION_MACHINE_SECRET     Override for the machine-bound sealing secret`)
}

// Version is set at build time via -ldflags.
var Version = "dev"

func printVersion() {
	fmt.Println("eclosion-tunnel", Version)
}
