package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roach88/ghostchat/internal/metrics"
	"github.com/roach88/ghostchat/internal/model"
	"github.com/roach88/ghostchat/internal/transport"
)

// DispatcherConfig tunes a Dispatcher. Zero values take the defaults.
type DispatcherConfig struct {
	// Workers is the number of delivery goroutines. Default 4.
	Workers int
	// QueueSize bounds each worker's backlog. Default 256.
	QueueSize int
	// SendTimeout caps each gateway call. Default 10s.
	SendTimeout time.Duration
	// RatePerSecond caps gateway calls across all workers. 0 means unlimited.
	RatePerSecond float64
	// Burst is the limiter burst. Default 1.
	Burst int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Dispatcher delivers notifications through a gateway.
//
// Thread-safety model:
//   - Notify(): safe from any goroutine, never blocks
//   - Close(): call once; later Notify calls are dropped
type Dispatcher struct {
	gw      transport.Gateway
	cfg     DispatcherConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	shards []chan Notification
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// ctx is cancelled by Close once draining gives up.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDispatcher starts the delivery workers.
func NewDispatcher(gw transport.Gateway, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		gw:      gw,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger.With("component", "notify"),
		shards:  make([]chan Notification, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := range d.shards {
		d.shards[i] = make(chan Notification, cfg.QueueSize)
		d.wg.Add(1)
		go d.work(d.shards[i])
	}
	return d
}

// Notify queues n on the worker that owns n.ChatID. A full queue drops n.
func (d *Dispatcher) Notify(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.RecordNotification(string(n.Kind), "dropped")
		d.logger.Warn("notification after close dropped", "chat", n.ChatID, "kind", n.Kind)
		return
	}

	select {
	case d.shards[d.shardFor(n.ChatID)] <- n:
	default:
		metrics.RecordNotification(string(n.Kind), "dropped")
		d.logger.Warn("notification queue full, dropped", "chat", n.ChatID, "kind", n.Kind)
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered. If ctx ends first, in-flight sends are cancelled and the
// remaining backlog is discarded.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, ch := range d.shards {
		close(ch)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return fmt.Errorf("notify drain: %w", ctx.Err())
	}
}

func (d *Dispatcher) shardFor(chatID string) int {
	h := fnv.New32a()
	h.Write([]byte(chatID))
	return int(h.Sum32() % uint32(len(d.shards)))
}

func (d *Dispatcher) work(ch <-chan Notification) {
	defer d.wg.Done()
	for n := range ch {
		if d.ctx.Err() != nil {
			metrics.RecordNotification(string(n.Kind), "dropped")
			continue
		}
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	if err := d.limiter.Wait(d.ctx); err != nil {
		metrics.RecordNotification(string(n.Kind), "dropped")
		return
	}

	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.SendTimeout)
	defer cancel()

	err := Send(ctx, d.gw, n)
	if err != nil {
		metrics.RecordNotification(string(n.Kind), "failed")
		d.logger.Warn("notification failed",
			"chat", n.ChatID,
			"kind", n.Kind,
			"error", model.Transient("send "+string(n.Kind), err),
		)
		return
	}
	metrics.RecordNotification(string(n.Kind), "sent")
}

// Send performs the gateway call for n synchronously.
func Send(ctx context.Context, gw transport.Gateway, n Notification) error {
	switch n.Kind {
	case KindText, "":
		return gw.SendText(ctx, n.ChatID, n.Text, n.Keyboard)
	case KindMedia:
		return gw.SendMedia(ctx, n.ChatID, n.Media, n.Text)
	case KindCopy:
		return gw.CopyMessage(ctx, n.ChatID, n.FromChatID, n.MessageID, n.Text)
	case KindAnswer:
		return gw.AnswerCallback(ctx, n.CallbackID)
	default:
		return errors.New("unknown notification kind " + string(n.Kind))
	}
}
