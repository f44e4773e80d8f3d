package main

import (
	"os"

	"github.com/wonny/aegis-metrics/cmd/metrics/commands"
)

// main is the entry point for the metrics CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/metrics [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
