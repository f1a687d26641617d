package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Server runs the HTTP API plus the background workers (stream consumer,
// startup resync) that must finish before the process exits.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// a full resync can take a while on large rosters
		WriteTimeout: 5 * time.Minute,
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{httpServer: s, logger: logger, ctx: ctx, cancel: cancel}
}

// Go runs fn in the background; its context ends when Stop is called.
func (s *Server) Go(name string, fn func(ctx context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Background worker stopped", zap.String("worker", name), zap.Error(err))
		}
	}()
}

// Start blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("Starting secretariat-data HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains HTTP requests, then cancels the workers and waits for them
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping secretariat-data HTTP server")
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Background workers did not stop in time")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
