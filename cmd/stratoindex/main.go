// Package main provides the entry point for the stratoindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/stratoindex/cmd/stratoindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
