// Package ops serves the daemon's operational endpoints: /healthz, /metrics
// and optionally /debug/pprof/.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "statusrelay/pkg/logx"
)

const defaultAddr = "127.0.0.1:9321"

// ErrExposed is returned when a non-loopback address is configured without a
// token and without AllowInsecure.
var ErrExposed = errors.New("ops: non-loopback addr requires token or allow_insecure")

// Config controls the ops HTTP server. Zero timeouts mean none.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// HealthFunc reports daemon state for /healthz. A non-nil error turns the
// response into 503.
type HealthFunc func() (any, error)

// Service runs at most one HTTP server and swaps it when the config changes.
type Service struct {
	log    logx.Logger
	health HealthFunc

	mu   sync.Mutex
	cfg  Config
	srv  *http.Server
	ln   net.Listener
	done chan struct{}
}

func New(cfg Config, health HealthFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, health: health, log: log.With(logx.String("comp", "ops"))}
}

// Addr returns the bound listen address, or "" when not serving.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure applies cfg, restarting the server only when cfg differs.
// Failures are logged; the ops server never stops the daemon.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) {
	s.mu.Lock()
	prev, running := s.cfg, s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	if running && prev == cfg {
		return
	}
	if running {
		s.Stop(ctx)
	}
	if !cfg.Enabled {
		return
	}
	if err := s.Start(ctx); err != nil {
		s.log.Error("ops server not started", logx.Err(err))
	}
}

// Start binds the configured address and serves in the background.
// It is a no-op when disabled or already running.
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	if !cfg.Enabled || s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	if cfg.Token == "" && !isLoopbackAddr(addr) {
		if !cfg.AllowInsecure {
			return fmt.Errorf("%w (%s)", ErrExposed, addr)
		}
		s.log.Warn("ops server has no token on a non-loopback addr", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ops listen %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:      s.Handler(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	done := make(chan struct{})
	s.srv, s.ln, s.done = srv, ln, done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("ops server failed", logx.Err(err))
		}
	}()
	s.log.Info("ops server started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cfg.Token != ""),
		logx.Bool("pprof", cfg.Pprof),
	)
	return nil
}

// Stop shuts the server down gracefully, forcing it closed when ctx ends first.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv, s.ln, s.done = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return
	}

	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("ops graceful shutdown failed, closing", logx.Err(err))
		_ = srv.Close()
	}
	<-done
	s.log.Info("ops server stopped")
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	switch h = strings.TrimSpace(h); {
	case h == "":
		// all interfaces
		return false
	case strings.EqualFold(h, "localhost"):
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
