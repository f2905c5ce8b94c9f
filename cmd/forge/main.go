package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/dohr-michael/forge/cmd/commands"
	"github.com/dohr-michael/forge/internal/config"
	"github.com/dohr-michael/forge/internal/secrets"
)

func main() {
	if keys, err := config.LoadDotenv(config.DotenvPath()); err != nil {
		slog.Warn("failed to load .env", "error", err)
	} else if len(keys) > 0 {
		slog.Debug("loaded .env", "keys", len(keys))
	}
	if _, err := os.Stat(config.KeyPath()); err == nil {
		identity, err := secrets.LoadIdentity(config.KeyPath())
		if err != nil {
			slog.Warn("failed to load age key", "error", err)
		} else if failed := secrets.DecryptEnv(identity); len(failed) > 0 {
			slog.Warn("some secrets could not be decrypted", "keys", failed)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := commands.NewRootCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
