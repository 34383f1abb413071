// Package main is the entry point for the convertarr application.
package main

import (
	"os"

	"github.com/jmylchreest/convertarr/cmd/convertarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
