package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewWorkCommand runs one worker batch.
func NewWorkCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Process one batch of queued tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				return a.worker.RunOnce(ctx)
			})
		},
	}
}

// NewPruneCommand runs one pruner pass.
func NewPruneCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Delete messages and links past their retention",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				n, err := a.pruner.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d links\n", n)
				return nil
			})
		},
	}
}

var sweepKinds = []string{"spam", "modqueue", "modmail"}

// NewSweepCommand runs one consistency sweep.
func NewSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "sweep <spam|modqueue|modmail>",
		Short:     "Run one consistency sweep",
		ValidArgs: sweepKinds,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app) error {
				n, err := a.sweep(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s sweep: %d\n", args[0], n)
				return nil
			})
		},
	}
}

func (a *app) sweep(ctx context.Context, kind string) (int, error) {
	switch kind {
	case "spam":
		return a.sweeper.Spam(ctx)
	case "modqueue":
		return a.sweeper.ModQueue(ctx)
	case "modmail":
		return a.sweeper.ModMail(ctx)
	}
	return 0, fmt.Errorf("unknown sweep %q", kind)
}
