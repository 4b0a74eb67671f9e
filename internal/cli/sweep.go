package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ghostchat/internal/transport"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	ConfigPath string
	EnvFile    string

	// Gateway overrides the Telegram client (for testing).
	Gateway transport.Gateway
}

// SweepResult is the sweep command output.
type SweepResult struct {
	Downgraded int `json:"downgraded"`
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Downgrade expired VIP memberships once",
		Long: `Run one expiry sweep and exit.

Every membership past its expiry is removed, the user is set back to Free
and told about it. Notifications are delivered before the command exits.

Example:
  ghostchat sweep --config ghostchat.cue
  ghostchat sweep --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to the CUE or JSON config file")
	cmd.Flags().StringVar(&opts.EnvFile, "env", ".env", "dotenv file with secrets (ignored when missing)")

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.EnvFile, opts.Gateway == nil)
	if err != nil {
		return err
	}
	svc, err := openServices(cfg, opts.RootOptions, opts.Gateway, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	n, sweepErr := svc.members.SweepExpiries(ctx)

	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := svc.close(drainCtx); err != nil {
		svc.logger.Error("shutdown incomplete", "error", err)
	}

	if sweepErr != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("sweep stopped after %d downgrades", n), sweepErr)
	}
	return opts.formatter(cmd).Success(SweepResult{Downgraded: n}, fmt.Sprintf("Downgraded: %d", n))
}
