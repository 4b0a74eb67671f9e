package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ghostchat/internal/httpapi"
	"github.com/roach88/ghostchat/internal/stats"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/transport"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	EnvFile    string

	// Gateway overrides the Telegram client (for testing).
	Gateway transport.Gateway
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the admin HTTP server",
		Long: `Run the GhostChat service.

Starts the single-writer scheduler loop (poll updates, handle them, run a
match pass, sweep expired memberships) and the admin HTTP server with
/healthz, /metrics and /stats. With telegram.webhook set, updates arrive on
POST /telegram/webhook instead of being polled. Stops on SIGINT or SIGTERM
after queued notifications are delivered.

Example:
  ghostchat serve --config ghostchat.cue --env .env
  GHOSTCHAT_TELEGRAM_TOKEN=... ghostchat serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to the CUE or JSON config file")
	cmd.Flags().StringVar(&opts.EnvFile, "env", ".env", "dotenv file with secrets (ignored when missing)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.ConfigPath, opts.EnvFile, opts.Gateway == nil)
	if err != nil {
		return err
	}

	svc, err := openServices(cfg, opts.RootOptions, opts.Gateway, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger := svc.logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := svc.close(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	b, eng, err := svc.app(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start", err)
	}

	if err := svc.gateway.SetCommands(ctx, b.Commands()); err != nil {
		logger.Warn("registering bot commands failed", "error", err)
	}
	if err := svc.registerWebhook(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to register webhook", err)
	}
	if err := markStarted(ctx, svc.store); err != nil {
		logger.Warn("recording start time failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.HTTP.Addr != "" {
		router := httpapi.NewRouter(svc.store.DB(), func(ctx context.Context) (stats.Report, error) {
			return stats.Collect(ctx, svc.store, svc.lobby, svc.members)
		}, logger)
		if cfg.Telegram.Webhook {
			httpapi.MountWebhook(router, cfg.Telegram.WebhookSecret, eng, logger)
		}
		srv := httpapi.NewServer(cfg.HTTP.Addr, router, logger)
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	logger.Info("ghostchat started", "db", cfg.Database, "http", cfg.HTTP.Addr)
	fmt.Fprintln(cmd.OutOrStdout(), "GhostChat running. Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "service error", err)
	}

	logger.Info("ghostchat stopped gracefully")
	return nil
}

// markStarted records the first start time in meta.
func markStarted(ctx context.Context, s *store.Store) error {
	_, ok, err := s.GetMeta(ctx, store.MetaBotStarted)
	if err != nil || ok {
		return err
	}
	return s.SetMeta(ctx, store.MetaBotStarted, time.Now().UTC().Format(time.RFC3339))
}
