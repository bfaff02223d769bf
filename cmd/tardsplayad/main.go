// Package main is the entry point for the tardsplayad application.
package main

import (
	"os"

	"github.com/tardsplaya/tardsplayad/cmd/tardsplayad/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
