package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hookvibe/hookcode-sub000/hookcoded/core"
)

const shutdownGrace = 5 * time.Second

type Server struct {
	Base *core.BaseServer

	mu       sync.Mutex
	shutdown context.CancelFunc
}

func New(base *core.BaseServer) *Server {
	return &Server{Base: base}
}

// Run listens on the configured address and serves until ctx is done or a
// shutdown is requested over HTTP.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.Base.Env.LISTEN_ADDR)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve runs the queue workers and the HTTP API on listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.shutdown = cancel
	s.mu.Unlock()

	logger := s.Base.Logger
	if n, err := s.Base.RecoverQueued(ctx); err != nil {
		logger.Error("failed to recover queued tasks", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("recovered queued tasks", slog.Int("count", n))
	}

	httpServer := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Base.RunWorkers(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", listener.Addr().String()), slog.String("version", s.Base.Config.Version))
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops a running Serve. It is a no-op before Serve starts.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown == nil {
		s.Base.Logger.Warn("shutdown requested before the server started")
		return
	}
	s.shutdown()
}
