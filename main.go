package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/laserman120/discord-bridge/internal/cli"
	"github.com/laserman120/discord-bridge/internal/log"
)

func main() {
	logger := log.NewLogger()
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCommand(logger).ExecuteContext(ctx); err != nil {
		logger.Errorw("Command failed", "error", err)
		cancel()
		os.Exit(1)
	}
}
