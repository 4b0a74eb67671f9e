// Package httpapi serves the admin endpoints (health, Prometheus metrics,
// the stats summary) and, in webhook mode, the Telegram update receiver.
package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/ghostchat/internal/stats"
	"github.com/roach88/ghostchat/internal/transport"
	"github.com/roach88/ghostchat/internal/transport/telegram"
)

// Webhook route and the header Telegram puts the secret token in.
const (
	WebhookPath  = "/telegram/webhook"
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

const maxUpdateBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StatsFunc produces the stats summary.
type StatsFunc func(ctx context.Context) (stats.Report, error)

// NewRouter builds the admin routes.
func NewRouter(db Pinger, statsFn StatsFunc, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := db.PingContext(req.Context()); err != nil {
			logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		report, err := statsFn(req.Context())
		if err != nil {
			logger.Error("stats failed", "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, report)
	})

	return r
}

// Enqueuer accepts updates for the scheduler loop.
type Enqueuer interface {
	Enqueue(u transport.Update) bool
}

// MountWebhook adds POST WebhookPath. When secret is set, deliveries
// without it in SecretHeader are rejected.
func MountWebhook(r chi.Router, secret string, q Enqueuer, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "webhook")

	r.Post(WebhookPath, func(w http.ResponseWriter, req *http.Request) {
		if secret != "" && subtle.ConstantTimeCompare([]byte(req.Header.Get(SecretHeader)), []byte(secret)) != 1 {
			logger.Warn("webhook call with bad secret", "remote", req.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad secret"})
			return
		}
		u, err := telegram.DecodeUpdate(http.MaxBytesReader(w, req.Body, maxUpdateBytes))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if !q.Enqueue(u) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "shutting down"})
			return
		}
		logger.Debug("update queued", "update", u.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued"})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server is the admin listener.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer creates a server for addr.
func NewServer(addr string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "http"),
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("admin http listening", "addr", ln.Addr().String())
		errc <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("admin http stopped")
	return nil
}
