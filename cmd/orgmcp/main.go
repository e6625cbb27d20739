// Package main provides the entry point for the orgmcp CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/orgmcp/cmd/orgmcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
