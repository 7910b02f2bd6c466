package main

import (
	"os"

	"github.com/312-dev/eclosion-tunnel/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
