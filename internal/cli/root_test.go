package cli

import (
	"context"
	"testing"
)

func TestRunDispatch(t *testing.T) {
	t.Setenv("ECLOSION_DATA_DIR", t.TempDir())

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"no args prints usage", nil, 0},
		{"help", []string{"help"}, 0},
		{"version", []string{"version"}, 0},
		{"unknown command", []string{"frobnicate"}, 2},
		{"claim without subdomain", []string{"claim"}, 2},
		{"check without subdomain", []string{"check"}, 2},
		{"start without port", []string{"start"}, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Run(tc.args); got != tc.want {
				t.Fatalf("Run(%v) = %d, want %d", tc.args, got, tc.want)
			}
		})
	}
}

func TestStatusWithoutClaim(t *testing.T) {
	t.Setenv("ECLOSION_DATA_DIR", t.TempDir())
	// Point the control address at a port nothing listens on so status falls
	// back to the state database.
	t.Setenv("ECLOSION_CONTROL_ADDR", "127.0.0.1:1")

	if got := runStatus(context.Background(), nil); got != 0 {
		t.Fatalf("status = %d, want 0", got)
	}
}
