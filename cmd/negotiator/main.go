// Package main is the entry point for the negotiator CLI.
package main

import (
	"os"

	"github.com/dealbroker/negotiator/cmd/negotiator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
