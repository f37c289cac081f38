// Package main provides the entry point for the corpusindex CLI.
package main

import (
	"os"

	"github.com/corpusindex/corpusindex/cmd/corpusindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
