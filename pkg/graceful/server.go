// Package graceful wraps http.Server with context-driven shutdown.
package graceful

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Server wraps http.Server with graceful shutdown capabilities.
type Server struct {
	httpServer      *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
}

// NewServer constructs a graceful server wrapper.
func NewServer(log *slog.Logger, srv *http.Server, shutdownTimeout time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		httpServer:      srv,
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}
}

// ListenAndServe starts the HTTP server and drains in-flight requests when
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	var once sync.Once

	go func() {
		s.log.Info("http server listening", slog.String("addr", s.httpServer.Addr))

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", slog.Any("error", err))
		}

		once.Do(func() { errCh <- err })
	}()

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancelShutdown()

	s.log.Info("shutting down http server", slog.Duration("timeout", s.shutdownTimeout))

	shutdownErr := s.httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		s.log.Error("http server shutdown error", slog.Any("error", shutdownErr))
	}

	var listenErr error
	select {
	case listenErr = <-errCh:
	default:
	}

	if shutdownErr != nil {
		return shutdownErr
	}
	if listenErr != nil && errors.Is(listenErr, http.ErrServerClosed) {
		return nil
	}

	return listenErr
}
