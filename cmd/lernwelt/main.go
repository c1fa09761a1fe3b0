package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/lernbegleiter/lernwelt-cli/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx, version); err != nil {
		os.Exit(1)
	}
}
