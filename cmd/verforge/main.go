// Package main is the verforge command.
package main

import (
	"os"

	"github.com/verforge/verforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
