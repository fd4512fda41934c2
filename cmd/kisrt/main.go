package main

import (
	"os"

	"github.com/wonny/aegis/kisrt/cmd/kisrt/commands"
)

// main is the entry point for the realtime CLI
// ⭐ CLI 진입점: go run ./cmd/kisrt [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
