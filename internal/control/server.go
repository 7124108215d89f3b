// Package control is the control-plane HTTP surface (spec §6.1, component
// G): /mcp tool-call protocol messages, /health, /events (SSE), and the
// read-only /api/* introspection endpoints. Start/shutdown follows the
// teacher's internal/web.Server.Start exactly: a *http.Server with the same
// three timeouts, a signal.Notify goroutine bounded to a 10s shutdown
// deadline, and http.ErrServerClosed treated as a clean exit.
package control

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/SpideXD/mcp-swarm/internal/eventbus"
	"github.com/SpideXD/mcp-swarm/internal/meta"
	"github.com/SpideXD/mcp-swarm/internal/session"
	"github.com/SpideXD/mcp-swarm/internal/supervisor"
	"github.com/SpideXD/mcp-swarm/internal/swarmconfig"
)

// SessionHeader is the protocol-defined header carrying a session id on
// requests, and echoed back on the response that mints one (spec §6.1).
const SessionHeader = "Mcp-Session-Id"

// Server is the HTTP control surface.
type Server struct {
	mux *http.ServeMux

	cfg      *swarmconfig.Config
	sessions *session.Store
	facade   *meta.Facade
	sup      *supervisor.Supervisor
	bus      *eventbus.Bus
	log      *zap.SugaredLogger

	startedAt time.Time
}

// NewServer builds the control surface and registers every route.
func NewServer(cfg *swarmconfig.Config, sessions *session.Store, facade *meta.Facade, sup *supervisor.Supervisor, bus *eventbus.Bus, log *zap.SugaredLogger) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		cfg:       cfg,
		sessions:  sessions,
		facade:    facade,
		sup:       sup,
		bus:       bus,
		log:       log,
		startedAt: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/mcp", s.withCORS(s.handleMCP))
	s.mux.HandleFunc("/health", s.withCORS(s.handleHealth))
	s.mux.HandleFunc("/events", s.withCORS(s.handleEvents))
	s.mux.HandleFunc("/api/sessions", s.withCORS(s.handleAPISessions))
	s.mux.HandleFunc("/api/logs/", s.withCORS(s.handleAPILogs))
	s.mux.HandleFunc("/api/config", s.withCORS(s.handleAPIConfig))
}

// Handler exposes the underlying mux, e.g. for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start binds cfg.BindHost:cfg.Port (or cfg.UnixSocket when set) and serves
// until SIGINT/SIGTERM, exactly mirroring internal/web.Server.Start's
// graceful-shutdown shape.
func (s *Server) Start() error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	listener, addr, err := s.listen()
	if err != nil {
		return err
	}
	srv.Addr = addr

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		s.log.Infow("control: received signal, shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Warnw("control: graceful shutdown error", "err", err)
		}
	}()

	s.log.Infow("control: listening", "addr", addr)
	err = srv.Serve(listener)
	if err == http.ErrServerClosed {
		s.log.Info("control: stopped gracefully")
		return nil
	}
	return err
}

func (s *Server) listen() (net.Listener, string, error) {
	if s.cfg.UnixSocket != "" {
		_ = os.Remove(s.cfg.UnixSocket)
		l, err := net.Listen("unix", s.cfg.UnixSocket)
		return l, s.cfg.UnixSocket, err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.Port)
	l, err := net.Listen("tcp", addr)
	return l, addr, err
}
