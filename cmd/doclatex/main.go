// doclatex - command-line client for the Word-to-LaTeX conversion service
package main

import (
	"os"

	"github.com/doclatex/doclatex/internal/cli"
	"github.com/doclatex/doclatex/internal/version"
)

// Version information, injected via LDFLAGS for releases
var (
	Version   = "v0.4.0"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
