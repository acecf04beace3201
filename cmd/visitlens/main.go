package main

import (
	"fmt"
	"os"

	"github.com/visitlens/visitlens/internal/cmd"
)

// Version information set via ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "visitlens: %v\n", err)
		os.Exit(1)
	}
}
