// Package main is the papertransctl binary: server-less translation runs and
// read access to the glossary and paper stores.
package main

import (
	"os"

	"github.com/papertrans/papertrans/cmd/papertransctl/cmd"
)

func main() {
	if err := cmd.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
