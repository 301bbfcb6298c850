// Package cli is the command line surface: a long-running serve command and
// one-shot commands for each periodic job.
package cli

import (
	"context"

	"github.com/laserman120/discord-bridge/internal/config"
	"github.com/laserman120/discord-bridge/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// RootOptions holds what every command needs before it runs.
type RootOptions struct {
	Logger *log.Logger
	// Load reads the configuration. Replaced in tests.
	Load func(*log.Logger) (*config.Config, error)
	// Registerer receives the metrics. Defaults to the global registry.
	Registerer prometheus.Registerer
}

// NewRootCommand creates the root command.
func NewRootCommand(logger *log.Logger) *cobra.Command {
	opts := &RootOptions{Logger: logger, Load: config.Load, Registerer: prometheus.DefaultRegisterer}

	cmd := &cobra.Command{
		Use:           "discord-bridge",
		Short:         "Mirror subreddit moderation activity into Discord webhooks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewWorkCommand(opts))
	cmd.AddCommand(NewPruneCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	return cmd
}

// withApp loads the configuration, wires the app and runs fn with it.
func withApp(ctx context.Context, opts *RootOptions, fn func(context.Context, *app) error) error {
	cfg, err := opts.Load(opts.Logger)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, opts.Registerer, opts.Logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
