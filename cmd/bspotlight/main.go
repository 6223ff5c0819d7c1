// Package main provides the entry point for the bspotlight CLI.
package main

import (
	"os"

	"github.com/betterspotlight/bspotlight/cmd/bspotlight/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
