// Package main is the entry point for the gitviz dashboard backend.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Configuration, wiring and the
// commands themselves live in internal/cli; main only runs the root command
// and turns an error into a non-zero exit status.
//
// USAGE:
//
//	gitviz serve --config gitviz.yaml
//	GITVIZ_ACCESS_TOKEN=... gitviz stats --repo 3 --branch main
package main

import (
	"os"

	"github.com/sakif/gitviz/internal/cli"
)

func main() {
	// cobra already printed the error.
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
