// Package main is the revlink command.
package main

import (
	"fmt"
	"os"

	"github.com/Ning0612/revlink/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
