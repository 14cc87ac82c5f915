// Package main is the hassws demo CLI entrypoint binary.
//
// It delegates startup to the internal app package to keep main small and
// testable.
package main

import (
	"log/slog"
	"os"

	"hassws/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("hassws.exit", "err", err)
		os.Exit(1)
	}
}
