package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/lobby"
	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/stats"
	"github.com/roach88/ghostchat/internal/store"
)

// StatsOptions holds flags for the stats command.
type StatsOptions struct {
	*RootOptions
	Database string
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print user, lobby, match and referral statistics",
		Long: `Print a summary of the database.

Example:
  ghostchat stats --db ghostchat.db
  ghostchat stats --db ghostchat.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runStats(opts *StatsOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	if _, err := os.Stat(opts.Database); err != nil {
		_ = out.Error(CodeDatabase, "database not found", opts.Database)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		_ = out.Error(CodeDatabase, "failed to open database", err.Error())
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	c := clock.System{}
	report, err := stats.Collect(ctx, st,
		lobby.New(st, c, logger),
		membership.New(st, c, notify.Discard{}, logger),
	)
	if err != nil {
		_ = out.Error(CodeDatabase, "failed to read statistics", err.Error())
		return WrapExitError(ExitCommandError, "failed to read statistics", err)
	}
	return out.Success(report, report.String())
}
