package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/ghostchat/internal/bot"
	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/config"
	"github.com/roach88/ghostchat/internal/engine"
	"github.com/roach88/ghostchat/internal/lobby"
	"github.com/roach88/ghostchat/internal/logging"
	"github.com/roach88/ghostchat/internal/matcher"
	"github.com/roach88/ghostchat/internal/matchstate"
	"github.com/roach88/ghostchat/internal/membership"
	"github.com/roach88/ghostchat/internal/notify"
	"github.com/roach88/ghostchat/internal/otp"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/transport"
	"github.com/roach88/ghostchat/internal/transport/telegram"
)

// services is the process object graph shared by serve and sweep.
type services struct {
	cfg        config.Config
	logger     *slog.Logger
	clock      clock.Clock
	store      *store.Store
	gateway    transport.Gateway
	dispatcher *notify.Dispatcher
	lobby      *lobby.Lobby
	pairs      *matchstate.State
	members    *membership.Engine

	closers []io.Closer
}

// loadConfig reads the config file and env file. The token is required
// unless a gateway is injected.
func loadConfig(path, envFile string, needToken bool) (config.Config, error) {
	cfg, err := config.Load(path, envFile)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if err := cfg.Validate(); err != nil && needToken {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// openServices builds the logger, store, gateway, dispatcher and the
// lobby and membership components. gw overrides the Telegram client.
func openServices(cfg config.Config, opts *RootOptions, gw transport.Gateway, stderr io.Writer) (*services, error) {
	logger, logCloser, err := logging.New(logging.Options{
		Level:  opts.logLevel(cfg.Log.Level),
		Dir:    cfg.Log.Dir,
		Stderr: stderr,
	})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to set up logging", err)
	}
	svc := &services{cfg: cfg, logger: logger, clock: clock.System{}}
	svc.closers = append(svc.closers, logCloser)

	st, recovered, err := store.OpenWithRecovery(cfg.Database, logger)
	if err != nil {
		svc.close(context.Background())
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	if recovered {
		logger.Warn("started with an empty database after recovery", "path", cfg.Database)
	}
	svc.store = st
	svc.closers = append(svc.closers, st)
	logger.Info("database ready", "path", cfg.Database)

	if gw == nil {
		gw = telegram.New(cfg.Telegram.APIURL, cfg.Telegram.Token)
	}
	svc.gateway = gw
	svc.dispatcher = notify.NewDispatcher(gw, notify.DispatcherConfig{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		SendTimeout:   cfg.Notify.SendTimeout.Std(),
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
	}, logger)

	svc.lobby = lobby.New(st, svc.clock, logger)
	svc.pairs = matchstate.New(st, logger)
	svc.members = membership.New(st, svc.clock, svc.dispatcher, logger,
		membership.WithVIPDays(cfg.Membership.VIPDays),
		membership.WithThreshold(cfg.Membership.ReferralThreshold),
	)
	return svc, nil
}

// verifier builds the OTP service: Redis-backed codes when an address is
// configured, SMTP delivery when a host is configured.
func (s *services) verifier(ctx context.Context) (*otp.Service, error) {
	var codes otp.CodeStore
	if s.cfg.OTP.RedisAddr != "" {
		rc := otp.NewRedisCodeStore(s.cfg.OTP.RedisAddr, s.cfg.OTP.RedisPassword, s.cfg.OTP.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			rc.Close()
			return nil, fmt.Errorf("redis %s: %w", s.cfg.OTP.RedisAddr, err)
		}
		s.closers = append(s.closers, rc)
		codes = rc
		s.logger.Info("otp codes in redis", "addr", s.cfg.OTP.RedisAddr)
	} else {
		codes = otp.NewMemoryCodeStore(s.clock)
		s.logger.Info("otp codes in memory")
	}

	var mailer otp.Mailer = otp.LogMailer{Logger: s.logger}
	if s.cfg.SMTP.Enabled() {
		mailer = otp.NewSMTPMailer(otp.SMTPConfig{
			Host:     s.cfg.SMTP.Host,
			Port:     s.cfg.SMTP.Port,
			Username: s.cfg.SMTP.Username,
			Password: s.cfg.SMTP.Password,
			From:     s.cfg.SMTP.From,
		})
	}

	return otp.NewService(codes, mailer, s.logger,
		otp.WithTTL(s.cfg.OTP.TTL.Std()),
		otp.WithPrefix(s.cfg.OTP.Prefix),
	), nil
}

type botIdentity interface {
	GetMe(ctx context.Context) (string, error)
}

type webhookSetter interface {
	SetWebhook(ctx context.Context, url, secret string) error
}

// registerWebhook tells Telegram where to deliver updates when a public
// URL is configured.
func (s *services) registerWebhook(ctx context.Context) error {
	tg := s.cfg.Telegram
	if !tg.Webhook || tg.WebhookURL == "" {
		return nil
	}
	ws, ok := s.gateway.(webhookSetter)
	if !ok {
		return nil
	}
	if err := ws.SetWebhook(ctx, tg.WebhookURL, tg.WebhookSecret); err != nil {
		return err
	}
	s.logger.Info("webhook registered", "url", tg.WebhookURL)
	return nil
}

// botUsername is the configured username, or the one the gateway reports.
func (s *services) botUsername(ctx context.Context) string {
	if s.cfg.Telegram.BotUsername != "" {
		return s.cfg.Telegram.BotUsername
	}
	if id, ok := s.gateway.(botIdentity); ok {
		name, err := id.GetMe(ctx)
		if err == nil {
			return name
		}
		s.logger.Warn("getMe failed, referral links will be incomplete", "error", err)
	}
	return ""
}

// app assembles the bot, matcher and scheduler on top of the services.
func (s *services) app(ctx context.Context) (*bot.Bot, *engine.Engine, error) {
	v, err := s.verifier(ctx)
	if err != nil {
		return nil, nil, err
	}
	b := bot.New(s.store, s.lobby, s.pairs, s.members, v, s.dispatcher, s.clock,
		bot.Config{BotUsername: s.botUsername(ctx)}, s.logger)

	m := matcher.New(s.store, s.lobby, s.members, s.clock, matcher.UUIDv7Generator{}, s.dispatcher, s.logger)

	eng := engine.New(s.store, s.gateway, b, m, s.members, s.clock, engine.Config{
		PollTimeout:   s.cfg.Telegram.PollTimeout.Std(),
		IdleDelay:     s.cfg.Loop.IdleDelay.Std(),
		ErrorBackoff:  s.cfg.Loop.ErrorBackoff.Std(),
		SweepInterval: s.cfg.Membership.SweepInterval.Std(),
		MinLobby:      s.cfg.Matching.MinLobby,
		Webhook:       s.cfg.Telegram.Webhook,
	}, s.logger)
	return b, eng, nil
}

// close drains the dispatcher, then closes everything else in reverse
// order of opening.
func (s *services) close(ctx context.Context) error {
	var errs []error
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Close(ctx))
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}
