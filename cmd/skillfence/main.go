// Package main is the entry point for the skillfence CLI.
package main

import (
	"os"

	"github.com/skillfence/skillfence/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
