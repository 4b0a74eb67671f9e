package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ghostchat/internal/clock"
	"github.com/roach88/ghostchat/internal/matcher"
	"github.com/roach88/ghostchat/internal/metrics"
	"github.com/roach88/ghostchat/internal/store"
	"github.com/roach88/ghostchat/internal/transport"
)

// Handler processes one inbound update.
type Handler interface {
	Handle(ctx context.Context, u transport.Update) error
}

// Matcher runs one matching pass.
type Matcher interface {
	RunPass(ctx context.Context) (matcher.PassResult, error)
}

// Sweeper downgrades expired memberships.
type Sweeper interface {
	SweepExpiries(ctx context.Context) (int, error)
}

// Config tunes the loop. Zero values take the defaults.
type Config struct {
	// PollTimeout is the long-poll timeout passed to the gateway. Default 10s.
	PollTimeout time.Duration
	// IdleDelay is the pause between iterations. Default 1s.
	IdleDelay time.Duration
	// ErrorBackoff is the pause after a failed poll. Default 5s.
	ErrorBackoff time.Duration
	// SweepInterval is the time between expiry sweeps. Default 1h.
	SweepInterval time.Duration
	// MinLobby is the lobby size that triggers a match pass. Default 2.
	MinLobby int
	// Webhook skips polling; updates arrive through Enqueue only.
	Webhook bool
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.IdleDelay <= 0 {
		c.IdleDelay = time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Hour
	}
	if c.MinLobby < 2 {
		c.MinLobby = 2
	}
	return c
}

// Engine is the single-writer scheduler loop.
//
// Each iteration polls the gateway, hands every update to the handler in
// order, runs a match pass when enough users wait, and sweeps expired
// memberships when the sweep interval has elapsed. The phases never overlap,
// so two match passes never run concurrently.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run(), Tick() and the phase methods: one goroutine only
type Engine struct {
	store   *store.Store
	gw      transport.Gateway
	handler Handler
	matcher Matcher
	sweeper Sweeper
	clock   clock.Clock
	cfg     Config
	logger  *slog.Logger

	queue     *updateQueue
	lastSweep time.Time
}

// New creates an Engine.
func New(
	s *store.Store,
	gw transport.Gateway,
	h Handler,
	m Matcher,
	sw Sweeper,
	c clock.Clock,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   s,
		gw:      gw,
		handler: h,
		matcher: m,
		sweeper: sw,
		clock:   c,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "engine"),
		queue:   newUpdateQueue(),
	}
}

// Enqueue submits an update for the next iteration without going through
// the gateway. Returns false once the engine has stopped.
func (e *Engine) Enqueue(u transport.Update) bool {
	return e.queue.Enqueue(u)
}

// Run drives the loop until ctx is cancelled.
//
// A failed poll is logged and followed by ErrorBackoff; everything else is
// logged inside its phase and the loop carries on.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"poll_timeout", e.cfg.PollTimeout,
		"sweep_interval", e.cfg.SweepInterval,
	)
	defer e.queue.Close()

	for {
		delay := e.cfg.IdleDelay
		if err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			e.logger.Error("loop iteration failed", "error", err, "backoff", e.cfg.ErrorBackoff)
			delay = e.cfg.ErrorBackoff
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Tick runs one iteration: poll, drain, match, sweep. A poll failure is
// returned after the remaining phases have run.
func (e *Engine) Tick(ctx context.Context) error {
	var pollErr error
	if !e.cfg.Webhook {
		pollErr = e.PollOnce(ctx)
	}
	e.Drain(ctx)

	if _, err := e.MatchOnce(ctx); err != nil {
		e.logger.Error("match pass failed", "error", err)
	}
	if _, err := e.SweepIfDue(ctx); err != nil {
		e.logger.Error("expiry sweep failed", "error", err)
	}
	return pollErr
}

// PollOnce fetches pending updates and queues them. The stored offset moves
// past every fetched update before any of them is handled, so an update
// that fails is never fetched again.
func (e *Engine) PollOnce(ctx context.Context) error {
	offset, err := e.store.GetMetaInt(ctx, store.MetaUpdateOffset)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}

	updates, err := e.gw.PollUpdates(ctx, offset, e.cfg.PollTimeout)
	if err != nil {
		return fmt.Errorf("poll: %w", err)
	}
	if len(updates) == 0 {
		return nil
	}

	next := offset
	for _, u := range updates {
		if u.ID >= next {
			next = u.ID + 1
		}
		e.queue.Enqueue(u)
	}
	if err := e.store.SetMetaInt(ctx, store.MetaUpdateOffset, next); err != nil {
		return fmt.Errorf("poll: save offset: %w", err)
	}
	return nil
}

// Drain handles every queued update in order. Handler errors are logged and
// counted; they never stop the drain.
func (e *Engine) Drain(ctx context.Context) int {
	n := 0
	for ctx.Err() == nil {
		u, ok := e.queue.TryDequeue()
		if !ok {
			break
		}
		n++
		if err := e.handle(ctx, u); err != nil {
			metrics.RecordUpdate(false)
			e.logger.Error("update failed", "update", u.ID, "error", err)
			continue
		}
		metrics.RecordUpdate(true)
	}
	return n
}

func (e *Engine) handle(ctx context.Context, u transport.Update) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return e.handler.Handle(ctx, u)
}

// MatchOnce runs a match pass when at least MinLobby users wait.
// Returns a zero result when the lobby is too small.
func (e *Engine) MatchOnce(ctx context.Context) (matcher.PassResult, error) {
	size, err := e.store.LobbySize(ctx)
	if err != nil {
		return matcher.PassResult{}, fmt.Errorf("lobby size: %w", err)
	}
	if size < e.cfg.MinLobby {
		return matcher.PassResult{Considered: size, Remaining: size}, nil
	}
	return e.matcher.RunPass(ctx)
}

// SweepIfDue runs the expiry sweep on the first call and then once per
// SweepInterval. Returns -1 when no sweep was due.
func (e *Engine) SweepIfDue(ctx context.Context) (int, error) {
	now := e.clock.Now()
	if !e.lastSweep.IsZero() && now.Sub(e.lastSweep) < e.cfg.SweepInterval {
		return -1, nil
	}
	e.lastSweep = now

	n, err := e.sweeper.SweepExpiries(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return n, fmt.Errorf("sweep: %w", err)
	}
	return n, nil
}
