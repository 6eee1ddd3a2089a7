package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"gpio-server/internal/logger"
	"gpio-server/internal/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server serves the router until /shutdown is requested or the run
// context ends.
type Server struct {
	ctrl     Controller
	router   *Router
	handler  http.Handler
	logger   *logger.Logger
	stop     chan struct{}
	stopOnce sync.Once
}

func NewServer(ctrl Controller, strict bool, l *logger.Logger) *Server {
	s := &Server{
		ctrl:   ctrl,
		logger: l,
		stop:   make(chan struct{}),
	}
	s.router = NewRouter(ctrl, strict, s.RequestStop, l.WithTag("Router"))
	s.handler = RequestLogger(l)(s.router)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// RequestStop asks Run to return. Safe to call more than once.
func (s *Server) RequestStop() {
	s.stopOnce.Do(func() {
		s.logger.Infof("Shutdown requested")
		close(s.stop)
	})
}

// Run serves on ln until a stop is requested or ctx is done. The request in
// progress is answered before Run returns. ln is closed on return.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          s.logger.StdLogger(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	srv.SetKeepAlivesEnabled(false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Infof("Listening on %s", ln.Addr())
	s.ctrl.SetServerState(types.StateRunning)

	select {
	case err := <-errCh:
		s.ctrl.SetServerState(types.StateStopped)
		return fmt.Errorf("serve: %w", err)
	case <-s.stop:
	case <-ctx.Done():
		s.logger.Infof("Stopping: %v", ctx.Err())
	}

	s.router.Stop()
	s.ctrl.SetServerState(types.StateShuttingDown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	s.ctrl.SetServerState(types.StateStopped)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Infof("Server stopped")
	return nil
}
