// Package main is the backtestlab entry point.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"backtest-lab/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
