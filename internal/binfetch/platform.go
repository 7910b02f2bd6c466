package binfetch

import (
	"fmt"

	"github.com/312-dev/eclosion-tunnel/internal/domain"
)

type platformKey struct {
	goos   string
	goarch string
}

type platformAsset struct {
	name    string
	archive bool
}

// Static lookup of release asset names by (OS, architecture) pair. Darwin
// releases ship as tarballs; everything else is a bare binary.
var platformAssets = map[platformKey]platformAsset{
	{"linux", "amd64"}:   {name: "cloudflared-linux-amd64"},
	{"linux", "arm64"}:   {name: "cloudflared-linux-arm64"},
	{"linux", "arm"}:     {name: "cloudflared-linux-arm"},
	{"linux", "386"}:     {name: "cloudflared-linux-386"},
	{"darwin", "amd64"}:  {name: "cloudflared-darwin-amd64.tgz", archive: true},
	{"darwin", "arm64"}:  {name: "cloudflared-darwin-arm64.tgz", archive: true},
	{"windows", "amd64"}: {name: "cloudflared-windows-amd64.exe"},
	{"windows", "386"}:   {name: "cloudflared-windows-386.exe"},
}

func assetForPlatform(goos, goarch string) (platformAsset, error) {
	a, ok := platformAssets[platformKey{goos, goarch}]
	if !ok {
		return platformAsset{}, fmt.Errorf("%w: %s/%s", domain.ErrUnsupportedPlatform, goos, goarch)
	}
	return a, nil
}
