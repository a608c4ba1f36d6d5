// Package main is the smelt CLI: a single binary that can run commands
// in-process or serve the command graph service over a socket for other
// clients, grounded on cmd/devopsclaw's cobra_cli.go root command shape.
package main

import (
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "smelt: %v\n", err)
		os.Exit(1)
	}
}
